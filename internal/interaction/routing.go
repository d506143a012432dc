// ABOUTME: Routing keys embedded in interactive UI elements
// ABOUTME: Parses family|owner|args and family_action forms and builds them back

package interaction

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedKey is returned for routing keys that cannot be decoded.
var ErrMalformedKey = errors.New("malformed routing key")

// MaxKeyLength is the platform's limit on a component custom id.
const MaxKeyLength = 100

// RoutingKey is the decoded custom id of a component.
//
// Owner-bearing keys look like "confirm_role_create|<ownerID>|arg". Keys
// without a pipe are family-only: the family is the text before the first
// underscore and the remainder is the action ("audit_confirm_delete" is
// family "audit", action "confirm_delete").
type RoutingKey struct {
	Raw      string
	Family   string
	OwnerID  string
	HasOwner bool
	Args     []string
}

// Action returns the first argument, or "".
func (k RoutingKey) Action() string {
	if len(k.Args) == 0 {
		return ""
	}
	return k.Args[0]
}

// Arg returns the i-th argument, or "".
func (k RoutingKey) Arg(i int) string {
	if i < 0 || i >= len(k.Args) {
		return ""
	}
	return k.Args[i]
}

// ParseRoutingKey decodes a custom id.
func ParseRoutingKey(raw string) (RoutingKey, error) {
	if raw == "" {
		return RoutingKey{}, fmt.Errorf("%w: empty", ErrMalformedKey)
	}
	if len(raw) > MaxKeyLength {
		return RoutingKey{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformedKey, len(raw), MaxKeyLength)
	}

	key := RoutingKey{Raw: raw}

	if strings.Contains(raw, "|") {
		parts := strings.Split(raw, "|")
		key.Family = parts[0]
		key.OwnerID = parts[1]
		key.HasOwner = key.OwnerID != ""
		key.Args = parts[2:]
	} else if family, action, ok := strings.Cut(raw, "_"); ok {
		key.Family = family
		if action != "" {
			key.Args = []string{action}
		}
	} else {
		key.Family = raw
	}

	if key.Family == "" {
		return RoutingKey{}, fmt.Errorf("%w: missing family in %q", ErrMalformedKey, raw)
	}
	return key, nil
}

// OwnedKey builds an owner-bearing key.
func OwnedKey(family, ownerID string, args ...string) string {
	return strings.Join(append([]string{family, ownerID}, args...), "|")
}

// ActionKey builds a family-only key.
func ActionKey(family, action string) string {
	return family + "_" + action
}
