// ABOUTME: Component families: how a routing key family is authorized before its handler runs
// ABOUTME: Public, owner-embedded or session-scoped, optionally backed by a flow kind

package command

import (
	"slices"

	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/session"
)

// Ownership says who may act on a family's components.
type Ownership int

const (
	// OwnerEmbedded keys carry the invoker id; anyone else is refused.
	OwnerEmbedded Ownership = iota
	// Public components may be used by anyone.
	Public
	// SessionScoped keys carry no owner; the clicker's own session is the scope.
	SessionScoped
)

func (o Ownership) String() string {
	switch o {
	case OwnerEmbedded:
		return "owner"
	case Public:
		return "public"
	case SessionScoped:
		return "session"
	}
	return "unknown"
}

// Family declares one routing key family.
type Family struct {
	Name      string
	Ownership Ownership

	// Flow, when set, requires the clicker to hold a session of this kind.
	Flow session.Kind
	// SessionFree lists actions that may run without a session.
	SessionFree []string

	// RequiredPermission gates every action of the family. PermissionMessage,
	// when set, replaces the generic refusal.
	RequiredPermission policy.Permission
	PermissionMessage  string

	// ExpiredHint names the command to re-run, e.g. "/audit".
	ExpiredHint string

	// Deferred families get a deferred update before the handler runs.
	Deferred bool
}

// NeedsSession reports whether action requires a live session.
func (f Family) NeedsSession(action string) bool {
	if f.Flow == "" {
		return false
	}
	return !slices.Contains(f.SessionFree, action)
}
