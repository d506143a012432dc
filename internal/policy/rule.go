// ABOUTME: Effective command rules and the overlay of stored overrides onto defaults
// ABOUTME: Effective rules are derived per invocation and never written back

package policy

import (
	"slices"

	"github.com/2389/stingray-gateway/internal/store"
)

// Rule is the fully-resolved policy for one command in one workspace.
type Rule struct {
	Enabled       bool
	MinPermission Permission
	AllowChannels []string
	BlockChannels []string
}

// Unrestricted is the rule for a command with neither default nor override.
func Unrestricted() Rule {
	return Rule{Enabled: true}
}

// Overlay copies every field the override sets onto def.
func Overlay(def Rule, o store.CommandRule) Rule {
	out := def.clone()
	if o.Enabled != nil {
		out.Enabled = *o.Enabled
	}
	if o.MinPerm != nil {
		out.MinPermission = permissionFromStored(*o.MinPerm)
	}
	if o.AllowChannels != nil {
		out.AllowChannels = slices.Clone(o.AllowChannels)
	}
	if o.BlockChannels != nil {
		out.BlockChannels = slices.Clone(o.BlockChannels)
	}
	return out
}

// permissionFromStored canonicalizes a stored token. Unknown tokens are kept
// verbatim; they match no permission bit, so only bypass identities pass.
func permissionFromStored(raw string) Permission {
	if raw == "" {
		return ""
	}
	if p, ok := ParsePermission(raw); ok {
		return p
	}
	return Permission(raw)
}

// ChannelAllowed applies the allow list (when non-empty) and then the block list.
func (r Rule) ChannelAllowed(channelID string) (bool, Reason) {
	if len(r.AllowChannels) > 0 && !slices.Contains(r.AllowChannels, channelID) {
		return false, ReasonChannelNotAllowed
	}
	if slices.Contains(r.BlockChannels, channelID) {
		return false, ReasonChannelBlocked
	}
	return true, ""
}

func (r Rule) clone() Rule {
	r.AllowChannels = slices.Clone(r.AllowChannels)
	r.BlockChannels = slices.Clone(r.BlockChannels)
	return r
}
