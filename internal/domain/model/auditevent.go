package model

import "time"

// AuditEvent is one append-only entry in the credential audit trail.
// Metadata carries small descriptive values (a failure reason, a Tembo user
// ID) and must never contain credential material.
type AuditEvent struct {
	ID        string
	Identity  string
	EventType AuditEventType
	Metadata  map[string]string
	CreatedAt time.Time
}
