package driven

import (
	"context"

	"github.com/kestrelworks/tembovault/internal/domain/model"
)

// AuditStore defines the driven port for the append-only credential audit
// trail. Events are never mutated or deleted.
type AuditStore interface {
	// Append records an audit event. Best-effort: the adapter logs failures
	// and never returns them.
	Append(ctx context.Context, event model.AuditEvent)

	// ListByIdentity returns up to limit events for the identity, newest
	// first.
	ListByIdentity(ctx context.Context, identity string, limit int) ([]model.AuditEvent, error)
}
