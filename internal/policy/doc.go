// Package policy decides whether a command may run.
//
// A workspace's stored overrides (store.CommandRule) are overlaid field by
// field onto the compiled-in default table (defaults.toml) to produce an
// effective Rule. Evaluation checks, in order: enabled, channel allow list,
// channel block list, minimum permission. Bypass identities (workspace
// owner, administrator flag, the designated manager role) skip only the
// permission check; a disabled command stays disabled for everyone unless
// it belongs to the configuration surface.
//
// When settings cannot be read, Resolver.Resolve degrades according to its
// StoreErrorMode. The default, OnStoreErrorAllow, fails open.
package policy
