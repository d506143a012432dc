// ABOUTME: Audit log entity and store methods for tracking policy changes
// ABOUTME: Records who changed which command rule in which workspace

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditToggleCommand  AuditAction = "toggle_command"
	AuditSetChannels    AuditAction = "set_channels"
	AuditSetPermission  AuditAction = "set_permission"
	AuditSetManagerRole AuditAction = "set_manager_role"
	AuditReplaceRule    AuditAction = "replace_rule"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID          string         // UUID v4
	WorkspaceID string         // workspace the change applies to
	ActorID     string         // user or admin token subject
	Action      AuditAction    // what action was performed
	Target      string         // command name, or "workspace" for settings-wide changes
	Timestamp   time.Time      // when it happened
	Detail      map[string]any // additional context
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	WorkspaceID string     // required
	Since       *time.Time // entries after this time
	Target      *string    // filter by command
	Limit       int        // max results (default 50, max 500)
}

// prepareAuditEntry fills in the generated fields and encodes the detail.
func prepareAuditEntry(e *AuditEntry) (*string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Detail == nil {
		return nil, nil
	}
	data, err := json.Marshal(e.Detail)
	if err != nil {
		return nil, fmt.Errorf("marshaling audit detail: %w", err)
	}
	str := string(data)
	return &str, nil
}

// SaveAuditEntry appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) SaveAuditEntry(ctx context.Context, e *AuditEntry) error {
	detailJSON, err := prepareAuditEntry(e)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, workspace_id, actor_id, action, target, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.WorkspaceID,
		e.ActorID,
		string(e.Action),
		e.Target,
		e.Timestamp.UTC().Format(timeLayout),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"workspace_id", e.WorkspaceID,
		"actor", e.ActorID,
		"action", e.Action,
		"target", e.Target,
	)
	return nil
}

// scanAuditEntry scans a row into an AuditEntry.
func scanAuditEntry(scanner interface{ Scan(dest ...any) error }) (*AuditEntry, error) {
	var e AuditEntry
	var actionStr, tsStr string
	var detailJSON *string

	if err := scanner.Scan(&e.ID, &e.WorkspaceID, &e.ActorID, &actionStr, &e.Target, &tsStr, &detailJSON); err != nil {
		return nil, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Action = AuditAction(actionStr)
	var err error
	e.Timestamp, err = time.Parse(timeLayout, tsStr)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}

	if detailJSON != nil {
		if err := decodeDetail(*detailJSON, &e); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func decodeDetail(detailJSON string, e *AuditEntry) error {
	if err := json.Unmarshal([]byte(detailJSON), &e.Detail); err != nil {
		return fmt.Errorf("unmarshaling detail: %w", err)
	}
	return nil
}

const auditLogQuery = `
	SELECT audit_id, workspace_id, actor_id, action, target, ts, detail_json
	FROM audit_log
	WHERE workspace_id = ?
	  AND (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR target = ?)
	ORDER BY ts DESC
	LIMIT ?
`

// ListAuditEntries returns audit entries matching the filter criteria.
// Results are returned newest first.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	limit := normalizeLimit(f.Limit, 50, 500)

	var since *string
	if f.Since != nil {
		str := f.Since.UTC().Format(timeLayout)
		since = &str
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		f.WorkspaceID,
		since, since,
		f.Target, f.Target,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []*AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
