// ABOUTME: Outbound message model: content, embeds, buttons, selects, modals and choices
// ABOUTME: Component JSON matches the platform wire format so transports can embed it directly

package interaction

import "encoding/json"

// Message is a reply or an edit. Replace clears embeds and components the
// message does not set, which is how a flow neutralises its confirmation UI.
type Message struct {
	Content    string
	Embeds     []Embed
	Components []ActionRow
	Ephemeral  bool
	Replace    bool
}

// Text is a plain message.
func Text(content string) Message {
	return Message{Content: content}
}

// Ephemeral is a message only the invoker sees.
func Ephemeral(content string) Message {
	return Message{Content: content, Ephemeral: true}
}

// Final replaces the whole message with content, dropping embeds and components.
func Final(content string) Message {
	return Message{Content: content, Replace: true}
}

// Embed is a rich card.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is one name/value pair inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the small text under an embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// Component type codes.
const (
	ComponentActionRow    = 1
	ComponentButton       = 2
	ComponentStringSelect = 3
	ComponentTextInput    = 4
)

// Button styles.
const (
	ButtonPrimary   = 1
	ButtonSecondary = 2
	ButtonSuccess   = 3
	ButtonDanger    = 4
	ButtonLink      = 5
)

// Text input styles.
const (
	TextInputShort     = 1
	TextInputParagraph = 2
)

// Component is a button, select menu or text input.
type Component struct {
	Type        int            `json:"type"`
	Style       int            `json:"style,omitempty"`
	Label       string         `json:"label,omitempty"`
	CustomID    string         `json:"custom_id,omitempty"`
	URL         string         `json:"url,omitempty"`
	Disabled    bool           `json:"disabled,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	MinValues   *int           `json:"min_values,omitempty"`
	MaxValues   *int           `json:"max_values,omitempty"`
	Options     []SelectOption `json:"options,omitempty"`
	Required    *bool          `json:"required,omitempty"`
	MinLength   int            `json:"min_length,omitempty"`
	MaxLength   int            `json:"max_length,omitempty"`
	Value       string         `json:"value,omitempty"`
}

// SelectOption is one entry of a select menu.
type SelectOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// ActionRow groups up to five components on one line.
type ActionRow struct {
	Components []Component
}

// MarshalJSON writes the row in wire form.
func (r ActionRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       int         `json:"type"`
		Components []Component `json:"components"`
	}{ComponentActionRow, r.Components})
}

// Row builds an action row.
func Row(components ...Component) ActionRow {
	return ActionRow{Components: components}
}

// Button builds a button that routes to customID.
func Button(style int, label, customID string) Component {
	return Component{Type: ComponentButton, Style: style, Label: label, CustomID: customID}
}

// LinkButton builds a button that opens url.
func LinkButton(label, url string) Component {
	return Component{Type: ComponentButton, Style: ButtonLink, Label: label, URL: url}
}

// Select builds a string select menu.
func Select(customID, placeholder string, minValues, maxValues int, options ...SelectOption) Component {
	return Component{
		Type:        ComponentStringSelect,
		CustomID:    customID,
		Placeholder: placeholder,
		MinValues:   &minValues,
		MaxValues:   &maxValues,
		Options:     options,
	}
}

// TextInput builds a modal text field.
func TextInput(customID, label string, style int, required bool, maxLength int) Component {
	return Component{
		Type:      ComponentTextInput,
		CustomID:  customID,
		Label:     label,
		Style:     style,
		Required:  &required,
		MaxLength: maxLength,
	}
}

// Modal is a popup form. Submitting it produces a component event whose
// CustomID is the modal's and whose Fields hold the inputs.
type Modal struct {
	CustomID   string      `json:"custom_id"`
	Title      string      `json:"title"`
	Components []ActionRow `json:"components"`
}

// MaxChoices is the most autocomplete suggestions the platform accepts.
const MaxChoices = 25

// Choice is one autocomplete suggestion.
type Choice struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
