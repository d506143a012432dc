// ABOUTME: User-facing refusal texts produced by the dispatcher
// ABOUTME: Every denial is ephemeral and decided before a handler runs

package dispatch

import (
	"fmt"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/policy"
)

const (
	msgNotYours       = "This isn't your interaction."
	msgCancelled      = "Action cancelled."
	msgExpired        = "❌ Session expired. Please run the command again."
	msgUnavailable    = "⚠️ Command settings are unavailable right now. Please try again shortly."
	msgUnknownCommand = "❓ That command is not available."
	msgStaleComponent = "❓ This interaction is no longer available."
)

func denialMessage(cmd string, d policy.Decision) string {
	switch d.Reason {
	case policy.ReasonDisabled:
		return fmt.Sprintf("⛔ `/%s` is disabled in this server.", cmd)
	case policy.ReasonChannelNotAllowed, policy.ReasonChannelBlocked:
		return fmt.Sprintf("🚫 `/%s` can't be used in this channel.", cmd)
	case policy.ReasonMissingPermission:
		return fmt.Sprintf("🚫 **Access Denied.** You need the `%s` permission to use this command.", d.Required.Readable())
	case policy.ReasonUnavailable:
		return msgUnavailable
	}
	return "🚫 You can't use this command."
}

func familyPermissionMessage(f command.Family) string {
	if f.PermissionMessage != "" {
		return f.PermissionMessage
	}
	return fmt.Sprintf("🚫 You need the `%s` permission to use this.", f.RequiredPermission.Readable())
}

func expiredHintMessage(f command.Family) string {
	if f.ExpiredHint == "" {
		return msgExpired
	}
	return fmt.Sprintf("❌ Session expired. Please run `%s` again.", f.ExpiredHint)
}
