// ABOUTME: Event classifier: decides which dispatch path an event takes
// ABOUTME: Commands and autocomplete route by name; components by decoded routing key

package interaction

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned for events that are none of the dispatchable kinds.
var ErrUnknownKind = errors.New("unknown interaction kind")

// Classification is the routing decision for one event.
type Classification struct {
	Kind        Kind
	CommandName string
	Key         RoutingKey
}

// Classify inspects an event. Classification is pure; it performs no I/O.
func Classify(e *Event) (Classification, error) {
	switch e.Kind {
	case KindCommand, KindAutocomplete:
		if e.CommandName == "" {
			return Classification{}, fmt.Errorf("%w: %s without command name", ErrUnknownKind, e.Kind)
		}
		return Classification{Kind: e.Kind, CommandName: e.CommandName}, nil
	case KindComponent:
		key, err := ParseRoutingKey(e.CustomID)
		if err != nil {
			return Classification{}, err
		}
		return Classification{Kind: KindComponent, Key: key}, nil
	}
	return Classification{}, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
}
