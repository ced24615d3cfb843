package driven

import (
	"context"
	"errors"

	"github.com/kestrelworks/tembovault/internal/domain/model"
)

// ErrAlreadyRegistered is returned by InsertRecord when a credential row
// already exists for the identity.
var ErrAlreadyRegistered = errors.New("identity already registered")

// CredentialStore defines the driven port for encrypted credential
// persistence. Payloads crossing this interface are already encrypted; the
// store never sees plaintext.
type CredentialStore interface {
	// GetRecord returns the stored record for the identity, or (nil, nil)
	// when no record exists.
	GetRecord(ctx context.Context, identity string) (*model.CredentialRecord, error)

	// InsertRecord stores a new credential record. Returns
	// ErrAlreadyRegistered if a record for the identity already exists.
	InsertRecord(ctx context.Context, rec model.CredentialRecord) error

	// UpdateCiphertext replaces the encrypted payload for the identity,
	// resets the validation status to pending, and bumps last_used_at.
	UpdateCiphertext(ctx context.Context, identity string, payload model.EncryptedPayload) error

	// UpdateValidationStatus records a validation outcome and sets
	// last_validated_at. Claims columns are rewritten only when claims is
	// non-nil. Updating an absent identity is not an error.
	UpdateValidationStatus(ctx context.Context, identity string, status model.ValidationStatus, claims *model.TemboIdentity) error

	// TouchLastUsed bumps last_used_at. Best-effort: the adapter logs
	// failures and never returns them.
	TouchLastUsed(ctx context.Context, identity string)

	// DeleteRecord removes the record for the identity. Deleting an absent
	// record is not an error.
	DeleteRecord(ctx context.Context, identity string) error

	// GetStatus returns the registration summary for the identity. An
	// absent record yields a zero view with Registered=false, not an error.
	GetStatus(ctx context.Context, identity string) (model.StatusView, error)
}
