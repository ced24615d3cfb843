package driven

import (
	"context"
	"errors"

	"github.com/kestrelworks/tembovault/internal/domain/model"
)

// ErrCredentialRejected is returned when Tembo refuses the presented
// credential (401/403) or reports claims too incomplete to trust.
var ErrCredentialRejected = errors.New("tembo rejected credential")

// ErrTemboUnavailable is returned when Tembo cannot be reached or answers
// with a server error. It says nothing about whether the credential is
// valid.
var ErrTemboUnavailable = errors.New("tembo unavailable")

// TemboClient defines the driven port for the Tembo task API, bound to a
// single credential.
type TemboClient interface {
	// Whoami returns the identity claims Tembo associates with the
	// credential. Claims missing a user or org ID are reported as
	// ErrCredentialRejected.
	Whoami(ctx context.Context) (model.TemboIdentity, error)

	// ListTasks returns the tasks visible to the credential. status filters
	// by task status when non-empty.
	ListTasks(ctx context.Context, status string) ([]model.Task, error)

	// CreateTask creates a task and returns it as Tembo stored it.
	CreateTask(ctx context.Context, draft model.TaskDraft) (model.Task, error)
}

// TemboClientFactory mints a TemboClient bound to one bearer token. The
// orchestrator calls it with freshly decrypted credentials; implementations
// must not retain the token beyond the returned client.
type TemboClientFactory func(token string) TemboClient
