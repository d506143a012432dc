// ABOUTME: The help command: a paginated list of registered commands
// ABOUTME: Page buttons carry the invoker so only they can flip pages

package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
)

const helpPageSize = 9

// Help lists commands.
type Help struct {
	registry *command.Registry
}

// NewHelp creates the help command.
func NewHelp(registry *command.Registry) *Help {
	return &Help{registry: registry}
}

func (h *Help) Spec() command.Spec {
	return command.Spec{
		Name:        "help",
		Description: "List available commands.",
		Ephemeral:   true,
		Options: []command.OptionSpec{{
			Name:         "command",
			Description:  "Show details for one command",
			Type:         interaction.OptionString,
			Autocomplete: true,
		}},
	}
}

func (h *Help) Families() []command.Family {
	return []command.Family{{Name: "help_nav", Ownership: command.OwnerEmbedded}}
}

func (h *Help) Execute(ctx context.Context, req *command.Request) error {
	if name := interaction.StringOption(req.Event.Options, "command"); name != "" {
		return req.Reply(ctx, h.detail(name))
	}
	msg := h.page(req.UserID(), 1)
	msg.Ephemeral = true
	msg.Replace = false
	return req.Reply(ctx, msg)
}

func (h *Help) HandleComponent(ctx context.Context, req *command.Request) error {
	page, err := strconv.Atoi(req.Key.Arg(0))
	if err != nil {
		page = 1
	}
	return req.Update(ctx, h.page(req.UserID(), page))
}

func (h *Help) Autocomplete(ctx context.Context, req *command.Request) ([]interaction.Choice, error) {
	focused, _ := req.Event.Focused()
	prefix := strings.ToLower(focused.String())
	var out []interaction.Choice
	for _, spec := range h.visible() {
		if strings.HasPrefix(spec.Name, prefix) {
			out = append(out, interaction.Choice{Name: spec.Name, Value: spec.Name})
		}
		if len(out) == interaction.MaxChoices {
			break
		}
	}
	return out, nil
}

func (h *Help) visible() []command.Spec {
	var out []command.Spec
	for _, spec := range h.registry.Specs() {
		if !spec.Hidden {
			out = append(out, spec)
		}
	}
	return out
}

func (h *Help) detail(name string) interaction.Message {
	cmd, ok := h.registry.Command(name)
	if !ok || cmd.Spec().Hidden {
		return interaction.Ephemeral(fmt.Sprintf("❓ No command named `%s`.", name))
	}
	spec := cmd.Spec()

	embed := interaction.Embed{
		Title:       "/" + spec.Name,
		Description: spec.Description,
		Color:       colorPurple,
	}
	if spec.DefaultPermission != "" {
		embed.Fields = append(embed.Fields, interaction.EmbedField{Name: "Default permission", Value: "`" + string(spec.DefaultPermission) + "`"})
	}
	for _, opt := range spec.Options {
		value := opt.Description
		if value == "" {
			value = "-"
		}
		embed.Fields = append(embed.Fields, interaction.EmbedField{Name: opt.Name, Value: value, Inline: true})
	}
	return interaction.Message{Embeds: []interaction.Embed{embed}, Ephemeral: true}
}

func (h *Help) page(ownerID string, page int) interaction.Message {
	specs := h.visible()
	pages := (len(specs) + helpPageSize - 1) / helpPageSize
	if pages == 0 {
		pages = 1
	}
	page = min(max(page, 1), pages)

	start := (page - 1) * helpPageSize
	end := min(start+helpPageSize, len(specs))

	embed := interaction.Embed{
		Title:  "Command Index",
		Color:  colorPurple,
		Footer: &interaction.EmbedFooter{Text: fmt.Sprintf("Page %d of %d", page, pages)},
	}
	for _, spec := range specs[start:end] {
		embed.Fields = append(embed.Fields, interaction.EmbedField{
			Name:   "/" + spec.Name,
			Value:  clip(spec.Description, 100),
			Inline: true,
		})
	}
	if len(embed.Fields) == 0 {
		embed.Description = "No commands registered."
	}

	prev := interaction.Button(interaction.ButtonSecondary, "◀", interaction.OwnedKey("help_nav", ownerID, strconv.Itoa(page-1)))
	prev.Disabled = page <= 1
	next := interaction.Button(interaction.ButtonSecondary, "▶", interaction.OwnedKey("help_nav", ownerID, strconv.Itoa(page+1)))
	next.Disabled = page >= pages

	return interaction.Message{
		Replace:    true,
		Embeds:     []interaction.Embed{embed},
		Components: []interaction.ActionRow{interaction.Row(prev, next)},
	}
}
