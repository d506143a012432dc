// ABOUTME: Renders interaction messages as Matrix notices
// ABOUTME: Embeds become markdown sections and components become !press hints, then goldmark produces the HTML body

package matrix

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"maunium.net/go/mautrix/event"

	"github.com/2389/stingray-gateway/internal/interaction"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown flattens msg into markdown text. prefix is the command prefix
// shown in component hints.
func Markdown(prefix string, msg interaction.Message) string {
	var parts []string
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for _, e := range msg.Embeds {
		parts = append(parts, embedMarkdown(e))
	}
	if hints := componentHints(prefix, msg.Components); hints != "" {
		parts = append(parts, hints)
	}
	return strings.Join(parts, "\n\n")
}

func embedMarkdown(e interaction.Embed) string {
	var b strings.Builder
	if e.Title != "" {
		fmt.Fprintf(&b, "**%s**\n\n", e.Title)
	}
	if e.Description != "" {
		b.WriteString(e.Description)
		b.WriteString("\n\n")
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "**%s**  \n%s\n\n", f.Name, f.Value)
	}
	if e.Footer != nil && e.Footer.Text != "" {
		fmt.Fprintf(&b, "_%s_", e.Footer.Text)
	}
	return strings.TrimSpace(b.String())
}

func componentHints(prefix string, rows []interaction.ActionRow) string {
	var lines []string
	for _, row := range rows {
		for _, c := range row.Components {
			if c.Disabled {
				continue
			}
			switch c.Type {
			case interaction.ComponentButton:
				if c.Style == interaction.ButtonLink {
					lines = append(lines, fmt.Sprintf("- [%s](%s)", c.Label, c.URL))
					continue
				}
				lines = append(lines, fmt.Sprintf("- %s: `%s%s %s`", c.Label, prefix, verbPress, c.CustomID))
			case interaction.ComponentStringSelect:
				label := c.Placeholder
				if label == "" {
					label = "Choose"
				}
				values := make([]string, 0, len(c.Options))
				for _, o := range c.Options {
					values = append(values, fmt.Sprintf("`%s` (%s)", o.Value, o.Label))
				}
				lines = append(lines, fmt.Sprintf("- %s: `%s%s %s <value>...` from %s",
					label, prefix, verbPress, c.CustomID, strings.Join(values, ", ")))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// ModalMarkdown describes a form as a !submit hint.
func ModalMarkdown(prefix string, m interaction.Modal) string {
	var fields []string
	for _, row := range m.Components {
		for _, c := range row.Components {
			if c.Type == interaction.ComponentTextInput {
				fields = append(fields, c.CustomID+`="`+c.Label+`"`)
			}
		}
	}
	return fmt.Sprintf("**%s**\n\nReply with `%s%s %s %s`", m.Title, prefix, verbSubmit, m.CustomID, strings.Join(fields, " "))
}

// notice wraps markdown text into a notice with an HTML body. Rendering
// failures fall back to the plain body.
func notice(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err == nil {
		content.Format = event.FormatHTML
		content.FormattedBody = strings.TrimSpace(buf.String())
	}
	return content
}
