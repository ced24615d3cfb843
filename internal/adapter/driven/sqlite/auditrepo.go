package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/tembovault/internal/domain/model"
	"github.com/kestrelworks/tembovault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditStore = (*AuditRepo)(nil)

// AuditRepo is the SQLite implementation of the AuditStore port interface.
// The audit_events table is append-only: rows are never updated or deleted,
// and events for an identity outlive its credential record.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new AuditRepo backed by the given DB.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Append records an audit event, assigning it a fresh ID and timestamp.
// Failures are logged and swallowed; the audit trail never fails the
// operation it describes.
func (r *AuditRepo) Append(ctx context.Context, event model.AuditEvent) {
	const query = `
		INSERT INTO audit_events (id, identity, event_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		slog.Warn("append audit event failed", "identity", event.Identity, "event_type", event.EventType, "error", err)
		return
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		uuid.New().String(), event.Identity, string(event.EventType),
		string(metadataJSON), time.Now().UnixMilli(),
	)
	if err != nil {
		slog.Warn("append audit event failed", "identity", event.Identity, "event_type", event.EventType, "error", err)
	}
}

// ListByIdentity returns up to limit events for the identity, newest first.
// limit <= 0 returns all events.
func (r *AuditRepo) ListByIdentity(ctx context.Context, identity string, limit int) ([]model.AuditEvent, error) {
	// rowid breaks ties between events in the same millisecond.
	const query = `
		SELECT id, identity, event_type, metadata, created_at
		FROM audit_events
		WHERE identity = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var (
			event        model.AuditEvent
			eventType    string
			metadataJSON string
			createdAt    int64
		)
		if err := rows.Scan(&event.ID, &event.Identity, &eventType, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.EventType = model.AuditEventType(eventType)
		if err := json.Unmarshal([]byte(metadataJSON), &event.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
		event.CreatedAt = time.UnixMilli(createdAt).UTC()

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
