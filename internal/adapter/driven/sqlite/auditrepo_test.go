package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/tembovault/internal/domain/model"
)

func TestAuditRepo_AppendAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	repo.Append(ctx, model.AuditEvent{
		Identity:  "user-42",
		EventType: model.AuditEventRegister,
		Metadata:  map[string]string{"tembo_user_id": "U1"},
	})

	events, err := repo.ListByIdentity(ctx, "user-42", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "user-42", event.Identity)
	assert.Equal(t, model.AuditEventRegister, event.EventType)
	assert.Equal(t, map[string]string{"tembo_user_id": "U1"}, event.Metadata)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, time.Minute)
}

func TestAuditRepo_ListNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	repo.Append(ctx, model.AuditEvent{Identity: "user-42", EventType: model.AuditEventRegister})
	repo.Append(ctx, model.AuditEvent{Identity: "user-42", EventType: model.AuditEventValidationSuccess})
	repo.Append(ctx, model.AuditEvent{Identity: "user-42", EventType: model.AuditEventUnregister})

	events, err := repo.ListByIdentity(ctx, "user-42", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, model.AuditEventUnregister, events[0].EventType)
	assert.Equal(t, model.AuditEventValidationSuccess, events[1].EventType)
	assert.Equal(t, model.AuditEventRegister, events[2].EventType)
}

func TestAuditRepo_ListLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	for range 5 {
		repo.Append(ctx, model.AuditEvent{Identity: "user-42", EventType: model.AuditEventValidationSuccess})
	}

	events, err := repo.ListByIdentity(ctx, "user-42", 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestAuditRepo_ListFiltersByIdentity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	repo.Append(ctx, model.AuditEvent{Identity: "user-42", EventType: model.AuditEventRegister})
	repo.Append(ctx, model.AuditEvent{Identity: "user-43", EventType: model.AuditEventRegister})

	events, err := repo.ListByIdentity(ctx, "user-42", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "user-42", events[0].Identity)

	events, err = repo.ListByIdentity(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAuditRepo_AppendNilMetadata(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	repo.Append(ctx, model.AuditEvent{Identity: "user-42", EventType: model.AuditEventAuthFailure})

	events, err := repo.ListByIdentity(ctx, "user-42", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Metadata)
}

func TestAuditRepo_EventsOutliveCredentialRecord(t *testing.T) {
	db := setupTestDB(t)
	credRepo := NewCredentialRepo(db)
	auditRepo := NewAuditRepo(db)
	ctx := context.Background()

	require.NoError(t, credRepo.InsertRecord(ctx, testRecord("user-42")))
	auditRepo.Append(ctx, model.AuditEvent{Identity: "user-42", EventType: model.AuditEventRegister})

	require.NoError(t, credRepo.DeleteRecord(ctx, "user-42"))
	auditRepo.Append(ctx, model.AuditEvent{Identity: "user-42", EventType: model.AuditEventUnregister})

	events, err := auditRepo.ListByIdentity(ctx, "user-42", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
