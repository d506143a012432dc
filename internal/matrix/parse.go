// ABOUTME: Turns prefixed chat lines into interaction events
// ABOUTME: "!cmd sub key=value" is a command, "!press key [values]" a component, "!submit key field=value" a modal

package matrix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/2389/stingray-gateway/internal/interaction"
)

// ErrUsage is returned for lines that start with the prefix but cannot be
// turned into an event.
var ErrUsage = errors.New("malformed command line")

const (
	verbPress  = "press"
	verbSubmit = "submit"
)

// Parse converts one message body into an event. It returns nil and no
// error when body is not addressed to the bot.
func Parse(prefix, body string) (*interaction.Event, error) {
	body = strings.TrimSpace(body)
	if prefix == "" || !strings.HasPrefix(body, prefix) {
		return nil, nil
	}
	tokens, err := splitArgs(strings.TrimPrefix(body, prefix))
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	verb, rest := strings.ToLower(tokens[0]), tokens[1:]
	switch verb {
	case verbPress:
		if len(rest) == 0 {
			return nil, fmt.Errorf("%w: %spress needs a button key", ErrUsage, prefix)
		}
		return &interaction.Event{
			Kind:     interaction.KindComponent,
			CustomID: rest[0],
			Values:   rest[1:],
		}, nil

	case verbSubmit:
		if len(rest) == 0 {
			return nil, fmt.Errorf("%w: %ssubmit needs a form key", ErrUsage, prefix)
		}
		fields := make(map[string]string)
		for _, tok := range rest[1:] {
			k, v, ok := strings.Cut(tok, "=")
			if !ok {
				return nil, fmt.Errorf("%w: form fields look like name=value, got %q", ErrUsage, tok)
			}
			fields[k] = v
		}
		return &interaction.Event{
			Kind:     interaction.KindComponent,
			CustomID: rest[0],
			Fields:   fields,
			IsModal:  true,
		}, nil
	}

	opts, err := commandOptions(rest)
	if err != nil {
		return nil, err
	}
	return &interaction.Event{
		Kind:        interaction.KindCommand,
		CommandName: verb,
		Options:     opts,
	}, nil
}

// commandOptions reads leading bare words as a subcommand path (at most a
// group and a subcommand) and the key=value pairs as its options.
func commandOptions(tokens []string) ([]interaction.Option, error) {
	var path []string
	var named []interaction.Option
	for _, tok := range tokens {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			if len(named) > 0 {
				return nil, fmt.Errorf("%w: %q follows an option; quote values with spaces", ErrUsage, tok)
			}
			path = append(path, strings.ToLower(tok))
			continue
		}
		if k == "" {
			return nil, fmt.Errorf("%w: option without a name", ErrUsage)
		}
		named = append(named, interaction.Option{Name: k, Type: interaction.OptionString, Value: v})
	}

	switch len(path) {
	case 0:
		return named, nil
	case 1:
		return []interaction.Option{{Name: path[0], Type: interaction.OptionSubcommand, Options: named}}, nil
	case 2:
		return []interaction.Option{{
			Name: path[0],
			Type: interaction.OptionSubcommandGroup,
			Options: []interaction.Option{
				{Name: path[1], Type: interaction.OptionSubcommand, Options: named},
			},
		}}, nil
	}
	return nil, fmt.Errorf("%w: too many words before the options", ErrUsage)
}

// splitArgs splits on whitespace, keeping double-quoted runs together.
func splitArgs(s string) ([]string, error) {
	var out []string
	var cur strings.Builder
	inQuote, started := false, false

	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			if started {
				out = append(out, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated quote", ErrUsage)
	}
	if started {
		out = append(out, cur.String())
	}
	return out, nil
}
