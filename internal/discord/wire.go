// ABOUTME: Wire format of interaction payloads and callback responses
// ABOUTME: Decodes inbound payloads into platform-neutral events and encodes outbound messages

package discord

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/policy"
)

// FrontendName tags events that arrive through this transport.
const FrontendName = "discord"

// Interaction types.
const (
	typePing               = 1
	typeApplicationCommand = 2
	typeMessageComponent   = 3
	typeAutocomplete       = 4
	typeModalSubmit        = 5
)

// Callback types.
const (
	callbackPong                   = 1
	callbackChannelMessage         = 4
	callbackDeferredChannelMessage = 5
	callbackDeferredUpdate         = 6
	callbackUpdateMessage          = 7
	callbackAutocompleteResult     = 8
	callbackModal                  = 9
)

const flagEphemeral = 1 << 6

// ErrUnsupportedType is returned for interaction types the gateway does not handle.
var ErrUnsupportedType = errors.New("unsupported interaction type")

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type memberPayload struct {
	User        userPayload `json:"user"`
	Roles       []string    `json:"roles"`
	Permissions string      `json:"permissions"`
}

type optionPayload struct {
	Name    string          `json:"name"`
	Type    int             `json:"type"`
	Value   any             `json:"value,omitempty"`
	Focused bool            `json:"focused,omitempty"`
	Options []optionPayload `json:"options,omitempty"`
}

type resolvedPayload struct {
	Roles map[string]struct {
		Name string `json:"name"`
	} `json:"roles"`
	Users map[string]userPayload `json:"users"`
}

type dataPayload struct {
	// Commands and autocomplete
	Name     string          `json:"name"`
	Options  []optionPayload `json:"options"`
	Resolved resolvedPayload `json:"resolved"`

	// Components and modals
	CustomID   string   `json:"custom_id"`
	Values     []string `json:"values"`
	Components []struct {
		Components []struct {
			CustomID string `json:"custom_id"`
			Value    string `json:"value"`
		} `json:"components"`
	} `json:"components"`
}

type interactionPayload struct {
	ID            string         `json:"id"`
	ApplicationID string         `json:"application_id"`
	Type          int            `json:"type"`
	Token         string         `json:"token"`
	GuildID       string         `json:"guild_id"`
	ChannelID     string         `json:"channel_id"`
	Member        *memberPayload `json:"member"`
	User          *userPayload   `json:"user"`
	Data          dataPayload    `json:"data"`
}

// Decode parses a request body. A ping returns a nil event and no error.
func Decode(body []byte) (*interaction.Event, error) {
	var p interactionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decoding interaction: %w", err)
	}
	if p.Type == typePing {
		return nil, nil
	}

	ev := &interaction.Event{
		ID:            p.ID,
		Token:         p.Token,
		ApplicationID: p.ApplicationID,
		Frontend:      FrontendName,
		WorkspaceID:   p.GuildID,
		ChannelID:     p.ChannelID,
	}

	switch {
	case p.Member != nil:
		perms, err := parsePermissions(p.Member.Permissions)
		if err != nil {
			return nil, err
		}
		ev.Member = interaction.Member{
			ID:          p.Member.User.ID,
			Username:    p.Member.User.Username,
			RoleIDs:     p.Member.Roles,
			Permissions: perms,
		}
	case p.User != nil:
		ev.Member = interaction.Member{ID: p.User.ID, Username: p.User.Username}
	}

	switch p.Type {
	case typeApplicationCommand:
		ev.Kind = interaction.KindCommand
		ev.CommandName = p.Data.Name
		ev.Options = convertOptions(p.Data.Options)
		ev.Resolved = resolvedNames(p.Data.Resolved)
	case typeAutocomplete:
		ev.Kind = interaction.KindAutocomplete
		ev.CommandName = p.Data.Name
		ev.Options = convertOptions(p.Data.Options)
	case typeMessageComponent:
		ev.Kind = interaction.KindComponent
		ev.CustomID = p.Data.CustomID
		ev.Values = p.Data.Values
	case typeModalSubmit:
		ev.Kind = interaction.KindComponent
		ev.CustomID = p.Data.CustomID
		ev.IsModal = true
		ev.Fields = map[string]string{}
		for _, row := range p.Data.Components {
			for _, c := range row.Components {
				ev.Fields[c.CustomID] = c.Value
			}
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedType, p.Type)
	}
	return ev, nil
}

func parsePermissions(s string) (policy.PermissionSet, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing member permissions %q: %w", s, err)
	}
	return policy.PermissionSet(v), nil
}

func convertOptions(in []optionPayload) []interaction.Option {
	if len(in) == 0 {
		return nil
	}
	out := make([]interaction.Option, len(in))
	for i, o := range in {
		out[i] = interaction.Option{
			Name:    o.Name,
			Type:    o.Type,
			Value:   o.Value,
			Focused: o.Focused,
			Options: convertOptions(o.Options),
		}
	}
	return out
}

func resolvedNames(r resolvedPayload) map[string]string {
	if len(r.Roles) == 0 && len(r.Users) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Roles)+len(r.Users))
	for id, role := range r.Roles {
		out[id] = role.Name
	}
	for id, u := range r.Users {
		out[id] = u.Username
	}
	return out
}

// callback is an initial interaction response.
type callback struct {
	Type int `json:"type"`
	Data any `json:"data,omitempty"`
}

// messageBody encodes a message for callbacks and webhook edits. A
// replacing message sends empty content, embeds and components explicitly
// so the platform clears them.
func messageBody(msg interaction.Message) map[string]any {
	body := map[string]any{}
	if msg.Content != "" || msg.Replace {
		body["content"] = msg.Content
	}
	if len(msg.Embeds) > 0 || msg.Replace {
		embeds := msg.Embeds
		if embeds == nil {
			embeds = []interaction.Embed{}
		}
		body["embeds"] = embeds
	}
	if len(msg.Components) > 0 || msg.Replace {
		rows := msg.Components
		if rows == nil {
			rows = []interaction.ActionRow{}
		}
		body["components"] = rows
	}
	if msg.Ephemeral {
		body["flags"] = flagEphemeral
	}
	return body
}

func deferredCallback(kind interaction.Kind, isModal, ephemeral bool) callback {
	switch {
	case kind == interaction.KindAutocomplete:
		return callback{Type: callbackAutocompleteResult, Data: map[string]any{"choices": []interaction.Choice{}}}
	case kind == interaction.KindComponent && !isModal:
		return callback{Type: callbackDeferredUpdate}
	}
	cb := callback{Type: callbackDeferredChannelMessage}
	if ephemeral {
		cb.Data = map[string]any{"flags": flagEphemeral}
	}
	return cb
}
