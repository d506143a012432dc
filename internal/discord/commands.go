// ABOUTME: Application command registration payloads built from the command registry
// ABOUTME: Bulk-overwrites global or per-workspace commands through the REST client

package discord

import (
	"context"
	"net/http"
	"strconv"

	"github.com/2389/stingray-gateway/internal/command"
)

const commandTypeChatInput = 1

// ApplicationCommand is the registration form of one slash command.
type ApplicationCommand struct {
	Name                     string               `json:"name"`
	Type                     int                  `json:"type"`
	Description              string               `json:"description"`
	Options                  []command.OptionSpec `json:"options,omitempty"`
	DefaultMemberPermissions *string              `json:"default_member_permissions"`
	DMPermission             bool                 `json:"dm_permission"`
}

// ApplicationCommands converts registry specs into registration payloads.
// A spec's DefaultPermission becomes the decimal bitfield the platform
// uses to hide the command from members who lack it.
func ApplicationCommands(specs []command.Spec) []ApplicationCommand {
	out := make([]ApplicationCommand, 0, len(specs))
	for _, s := range specs {
		ac := ApplicationCommand{
			Name:        s.Name,
			Type:        commandTypeChatInput,
			Description: s.Description,
			Options:     s.Options,
		}
		if bit := s.DefaultPermission.Bit(); bit != 0 {
			perms := strconv.FormatUint(uint64(bit), 10)
			ac.DefaultMemberPermissions = &perms
		}
		out = append(out, ac)
	}
	return out
}

// RegisterCommands replaces the application's command list. An empty
// workspaceID registers globally.
func (c *Client) RegisterCommands(ctx context.Context, workspaceID string, specs []command.Spec) ([]ApplicationCommand, error) {
	path := "/applications/" + c.appID + "/commands"
	if workspaceID != "" {
		path = "/applications/" + c.appID + "/guilds/" + workspaceID + "/commands"
	}
	var registered []ApplicationCommand
	if err := c.do(ctx, http.MethodPut, path, "", ApplicationCommands(specs), &registered); err != nil {
		return nil, err
	}
	c.logger.Info("registered application commands", "count", len(registered), "workspace_id", workspaceID)
	return registered, nil
}
