// ABOUTME: Platform-neutral interaction events produced by the chat transports
// ABOUTME: Carries the invoking member, command options, component values and modal fields

package interaction

import (
	"strconv"

	"github.com/2389/stingray-gateway/internal/policy"
)

// Kind is the classification of an inbound event.
type Kind string

const (
	KindCommand      Kind = "command"
	KindAutocomplete Kind = "autocomplete"
	KindComponent    Kind = "component"
)

// Member is the user behind an event, as seen in its workspace.
type Member struct {
	ID          string
	Username    string
	RoleIDs     []string
	Permissions policy.PermissionSet
	IsOwner     bool
}

// Invoker converts the member into the policy layer's view.
func (m Member) Invoker() policy.Invoker {
	return policy.Invoker{
		UserID:      m.ID,
		RoleIDs:     m.RoleIDs,
		Permissions: m.Permissions,
		IsOwner:     m.IsOwner,
	}
}

// Option type codes, matching the platform's application command option types.
const (
	OptionSubcommand      = 1
	OptionSubcommandGroup = 2
	OptionString          = 3
	OptionInteger         = 4
	OptionBoolean         = 5
	OptionUser            = 6
	OptionChannel         = 7
	OptionRole            = 8
	OptionNumber          = 10
)

// Option is one argument of a command invocation. Subcommands nest their
// own options.
type Option struct {
	Name    string
	Type    int
	Value   any
	Focused bool
	Options []Option
}

// Event is one inbound interaction. Exactly one of CommandName or CustomID
// is set, depending on Kind.
type Event struct {
	ID            string
	Token         string
	ApplicationID string
	Frontend      string
	Kind          Kind

	WorkspaceID string
	ChannelID   string
	Member      Member

	// Command and autocomplete
	CommandName string
	Options     []Option

	// Component and modal submit
	CustomID string
	Values   []string
	Fields   map[string]string // modal text inputs by custom id
	IsModal  bool

	// Resolved carries display data the platform attached to the event,
	// e.g. role names keyed by id.
	Resolved map[string]string
}

// Subcommand returns the invoked subcommand and its options, or "" and the
// top-level options when the command has none.
func (e *Event) Subcommand() (string, []Option) {
	for _, o := range e.Options {
		if o.Type == OptionSubcommand {
			return o.Name, o.Options
		}
		if o.Type == OptionSubcommandGroup && len(o.Options) > 0 {
			return o.Name + " " + o.Options[0].Name, o.Options[0].Options
		}
	}
	return "", e.Options
}

// Focused returns the option being typed during autocomplete.
func (e *Event) Focused() (Option, bool) {
	_, opts := e.Subcommand()
	for _, o := range opts {
		if o.Focused {
			return o, true
		}
	}
	return Option{}, false
}

// Lookup finds a named option in opts.
func Lookup(opts []Option, name string) (Option, bool) {
	for _, o := range opts {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// String returns the option's value as text.
func (o Option) String() string {
	switch v := o.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	}
	return ""
}

// Bool returns the option's value as a boolean. Text values "true", "yes",
// "on" and "1" count as true.
func (o Option) Bool() bool {
	switch v := o.Value.(type) {
	case bool:
		return v
	case string:
		switch v {
		case "true", "yes", "on", "1":
			return true
		}
	}
	return false
}

// StringOption returns a named option's text, or "" when absent.
func StringOption(opts []Option, name string) string {
	o, ok := Lookup(opts, name)
	if !ok {
		return ""
	}
	return o.String()
}
