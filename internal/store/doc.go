// Package store provides persistent storage for the gateway.
//
// # Architecture
//
// The store package uses an interface-driven architecture with small
// interfaces composed into Store:
//
//   - SettingsStore: per-workspace command rule overrides and the manager role
//   - SessionBackend: in-flight multi-step flows, one per user
//   - CustomRoleStore: personal roles created by the custom command
//   - BoardStore: the anonymous board
//   - AuditStore: append-only record of policy changes
//
// SQLiteStore (modernc.org/sqlite) and PostgresStore (pgxpool) implement
// all of them over the same tables.
//
// # Settings row
//
// Every workspace has at most one guild_settings row. The command_rules
// column holds a JSON object keyed by command name; each value is a
// CommandRule whose absent fields inherit the compiled-in default. A
// policy resolution therefore costs a single round trip.
//
// Writes go through a read-modify-write on one scoped connection
// (sql.Conn or pgxpool.Conn) that is released on every exit path.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests; set Err to simulate an unreachable
// database. Use NewSQLiteStore(t.TempDir()+"/x.db") for integration tests.
// PostgresStore tests run only when STINGRAY_TEST_POSTGRES_URL is set.
package store
