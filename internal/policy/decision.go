// ABOUTME: Policy decisions: why an invocation is allowed or denied
// ABOUTME: Evaluates an effective rule against the invoking member and channel

package policy

import "slices"

// Reason names why an invocation was denied.
type Reason string

const (
	ReasonDisabled          Reason = "disabled"
	ReasonChannelNotAllowed Reason = "channel_not_allowed"
	ReasonChannelBlocked    Reason = "channel_blocked"
	ReasonMissingPermission Reason = "missing_permission"
	ReasonUnavailable       Reason = "policy_unavailable"
)

// Decision is the outcome of evaluating a command invocation. Denials are
// ordinary values; they are never surfaced as errors.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Required Permission // set when Reason is ReasonMissingPermission
}

// Allow is the zero-reason allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

func deny(r Reason) Decision {
	return Decision{Reason: r}
}

// Invoker is what the policy layer knows about the member invoking a command.
type Invoker struct {
	UserID      string
	RoleIDs     []string
	Permissions PermissionSet
	IsOwner     bool
}

// IsBypass reports whether the invoker is the workspace owner, holds the
// administrator flag, or carries the designated manager role.
func IsBypass(inv Invoker, bypassRoleID string) bool {
	if inv.IsOwner || inv.Permissions.IsAdministrator() {
		return true
	}
	return bypassRoleID != "" && slices.Contains(inv.RoleIDs, bypassRoleID)
}

// Evaluate checks, in order: enabled (unless exempt), channel allow list,
// channel block list, minimum permission. A bypass identity skips only the
// permission check.
func (r Resolution) Evaluate(channelID string, inv Invoker) Decision {
	if r.Unavailable {
		return deny(ReasonUnavailable)
	}
	if !r.Rule.Enabled && !r.Exempt {
		return deny(ReasonDisabled)
	}
	if ok, reason := r.Rule.ChannelAllowed(channelID); !ok {
		return deny(reason)
	}
	if required := r.Rule.MinPermission; required != "" {
		if !inv.Permissions.Has(required) && !IsBypass(inv, r.BypassRoleID) {
			return Decision{Reason: ReasonMissingPermission, Required: required}
		}
	}
	return Allow()
}
