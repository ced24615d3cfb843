package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelworks/tembovault/internal/crypto"
	"github.com/kestrelworks/tembovault/internal/domain/model"
	"github.com/kestrelworks/tembovault/internal/domain/port/driven"
)

// RegisterOutcome classifies the result of a registration attempt.
type RegisterOutcome string

const (
	RegisterOutcomeCreated  RegisterOutcome = "created"  // First registration for the identity.
	RegisterOutcomeUpdated  RegisterOutcome = "updated"  // Re-registration replaced the stored credential.
	RegisterOutcomeRejected RegisterOutcome = "rejected" // Tembo refused the presented credential.
	RegisterOutcomeFailed   RegisterOutcome = "failed"
)

// AuthOutcome classifies the result of an authentication attempt.
type AuthOutcome string

const (
	AuthOutcomeAuthenticated AuthOutcome = "authenticated"
	AuthOutcomeNotRegistered AuthOutcome = "not_registered" // The router should start onboarding.
	AuthOutcomeFailed        AuthOutcome = "failed"
)

// FailureReason narrows a failed outcome for the router's user messaging.
type FailureReason string

const (
	FailureCredentialRejected   FailureReason = "credential_rejected"   // Re-registration required.
	FailureCredentialUnreadable FailureReason = "credential_unreadable" // Stored payload cannot be decrypted; re-registration required.
	FailureServiceUnavailable   FailureReason = "service_unavailable"   // Tembo outage; retry later, stored status untouched.
	FailureStorage              FailureReason = "storage_error"
	FailureInternal             FailureReason = "internal_error"
)

// RegisterResult is the outcome of Register. Claims is set only when the
// credential validated successfully.
type RegisterResult struct {
	Outcome RegisterOutcome
	Reason  FailureReason
	Claims  *model.TemboIdentity
}

// AuthResult is the outcome of Authenticate. Client and Claims are set only
// when Outcome is AuthOutcomeAuthenticated; Client is ready to use with the
// caller's decrypted credential.
type AuthResult struct {
	Outcome AuthOutcome
	Reason  FailureReason
	Client  driven.TemboClient
	Claims  *model.TemboIdentity
}

// AuthService orchestrates credential registration, authentication, and
// unregistration for router identities. Credentials pass through it only as
// transient plaintext between the envelope cipher and the Tembo client; they
// never reach logs, audit metadata, or returned errors.
type AuthService struct {
	envelope    *crypto.Envelope
	credentials driven.CredentialStore
	audit       driven.AuditStore
	newClient   driven.TemboClientFactory
}

// NewAuthService creates a new AuthService with all required dependencies.
func NewAuthService(
	envelope *crypto.Envelope,
	credentials driven.CredentialStore,
	audit driven.AuditStore,
	newClient driven.TemboClientFactory,
) *AuthService {
	return &AuthService{
		envelope:    envelope,
		credentials: credentials,
		audit:       audit,
		newClient:   newClient,
	}
}

// Register validates token against Tembo and stores it encrypted for the
// identity. A rejected or unreachable validation leaves storage untouched:
// a credential is only ever stored in the same call that proved it works.
// Re-registration replaces the previous payload in place.
func (s *AuthService) Register(ctx context.Context, identity, token string) (RegisterResult, error) {
	claims, err := s.newClient(token).Whoami(ctx)
	if err != nil {
		switch {
		case errors.Is(err, driven.ErrCredentialRejected):
			slog.Info("registration rejected", "identity", identity)
			s.audit.Append(ctx, model.AuditEvent{
				Identity:  identity,
				EventType: model.AuditEventValidationFailure,
				Metadata:  map[string]string{"reason": string(FailureCredentialRejected)},
			})
			return RegisterResult{Outcome: RegisterOutcomeRejected, Reason: FailureCredentialRejected}, nil
		default:
			slog.Warn("registration validation unavailable", "identity", identity, "error", err)
			return RegisterResult{Outcome: RegisterOutcomeFailed, Reason: FailureServiceUnavailable}, nil
		}
	}

	payload, err := s.envelope.Encrypt(token, identity)
	if err != nil {
		return RegisterResult{Outcome: RegisterOutcomeFailed, Reason: FailureInternal},
			fmt.Errorf("encrypt credential for %q: %w", identity, err)
	}

	existing, err := s.credentials.GetRecord(ctx, identity)
	if err != nil {
		return RegisterResult{Outcome: RegisterOutcomeFailed, Reason: FailureStorage},
			fmt.Errorf("register %q: %w", identity, err)
	}

	created := existing == nil
	if created {
		now := time.Now().UTC()
		err := s.credentials.InsertRecord(ctx, model.CredentialRecord{
			Identity:        identity,
			Ciphertext:      payload.Ciphertext,
			IV:              payload.IV,
			Salt:            payload.Salt,
			Status:          model.ValidationValid,
			Claims:          &claims,
			RegisteredAt:    now,
			LastUsedAt:      now,
			LastValidatedAt: &now,
		})
		if errors.Is(err, driven.ErrAlreadyRegistered) {
			// Lost a concurrent register race; fall through to the update
			// path. Last writer wins and both credentials validated.
			created = false
		} else if err != nil {
			return RegisterResult{Outcome: RegisterOutcomeFailed, Reason: FailureStorage},
				fmt.Errorf("register %q: %w", identity, err)
		}
	}

	if !created {
		if err := s.credentials.UpdateCiphertext(ctx, identity, payload); err != nil {
			return RegisterResult{Outcome: RegisterOutcomeFailed, Reason: FailureStorage},
				fmt.Errorf("register %q: %w", identity, err)
		}
		if err := s.credentials.UpdateValidationStatus(ctx, identity, model.ValidationValid, &claims); err != nil {
			return RegisterResult{Outcome: RegisterOutcomeFailed, Reason: FailureStorage},
				fmt.Errorf("register %q: %w", identity, err)
		}
	}

	eventType := model.AuditEventRegister
	outcome := RegisterOutcomeCreated
	if !created {
		eventType = model.AuditEventUpdate
		outcome = RegisterOutcomeUpdated
	}
	s.audit.Append(ctx, model.AuditEvent{
		Identity:  identity,
		EventType: eventType,
		Metadata:  map[string]string{"tembo_user_id": claims.UserID},
	})

	slog.Info("credential registered",
		"identity", identity,
		"tembo_user_id", claims.UserID,
		"created", created,
	)

	return RegisterResult{Outcome: outcome, Claims: &claims}, nil
}

// Authenticate decrypts the stored credential for the identity and
// revalidates it against Tembo. Every authentication revalidates; a stored
// "valid" status is never trusted on its own. On success the returned
// client is bound to the decrypted credential and ready for task calls.
func (s *AuthService) Authenticate(ctx context.Context, identity string) (AuthResult, error) {
	rec, err := s.credentials.GetRecord(ctx, identity)
	if err != nil {
		return AuthResult{Outcome: AuthOutcomeFailed, Reason: FailureStorage},
			fmt.Errorf("authenticate %q: %w", identity, err)
	}
	if rec == nil {
		return AuthResult{Outcome: AuthOutcomeNotRegistered}, nil
	}

	token, err := s.envelope.Decrypt(model.EncryptedPayload{
		Ciphertext: rec.Ciphertext,
		IV:         rec.IV,
		Salt:       rec.Salt,
	}, identity)
	if err != nil {
		slog.Warn("stored credential unreadable", "identity", identity)
		s.audit.Append(ctx, model.AuditEvent{
			Identity:  identity,
			EventType: model.AuditEventAuthFailure,
			Metadata:  map[string]string{"reason": string(FailureCredentialUnreadable)},
		})
		return AuthResult{Outcome: AuthOutcomeFailed, Reason: FailureCredentialUnreadable}, nil
	}

	client := s.newClient(token)
	claims, err := client.Whoami(ctx)
	if err != nil {
		switch {
		case errors.Is(err, driven.ErrCredentialRejected):
			// The stored credential no longer works. Mark it invalid; only
			// a fresh registration brings it back to valid.
			if err := s.credentials.UpdateValidationStatus(ctx, identity, model.ValidationInvalid, nil); err != nil {
				slog.Error("mark credential invalid failed", "identity", identity, "error", err)
			}
			s.audit.Append(ctx, model.AuditEvent{
				Identity:  identity,
				EventType: model.AuditEventAuthFailure,
				Metadata:  map[string]string{"reason": string(FailureCredentialRejected)},
			})
			slog.Info("authentication rejected", "identity", identity)
			return AuthResult{Outcome: AuthOutcomeFailed, Reason: FailureCredentialRejected}, nil
		default:
			// Outage, not a verdict: leave the stored status alone so a
			// Tembo incident cannot flip users to invalid.
			slog.Warn("authentication validation unavailable", "identity", identity, "error", err)
			return AuthResult{Outcome: AuthOutcomeFailed, Reason: FailureServiceUnavailable}, nil
		}
	}

	s.credentials.TouchLastUsed(ctx, identity)
	s.audit.Append(ctx, model.AuditEvent{
		Identity:  identity,
		EventType: model.AuditEventValidationSuccess,
		Metadata:  map[string]string{"tembo_user_id": claims.UserID},
	})

	return AuthResult{Outcome: AuthOutcomeAuthenticated, Client: client, Claims: &claims}, nil
}

// Unregister removes the identity's credential. Idempotent: unregistering
// an identity that was never registered succeeds and is still audited.
func (s *AuthService) Unregister(ctx context.Context, identity string) error {
	if err := s.credentials.DeleteRecord(ctx, identity); err != nil {
		return fmt.Errorf("unregister %q: %w", identity, err)
	}

	s.audit.Append(ctx, model.AuditEvent{
		Identity:  identity,
		EventType: model.AuditEventUnregister,
	})
	slog.Info("credential unregistered", "identity", identity)

	return nil
}

// IsRegistered reports whether the identity has a stored credential. It
// does not validate the credential.
func (s *AuthService) IsRegistered(ctx context.Context, identity string) (bool, error) {
	rec, err := s.credentials.GetRecord(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("check registration %q: %w", identity, err)
	}
	return rec != nil, nil
}

// GetStatus returns the registration summary for the identity. Claims shown
// for an invalid credential are the ones captured at the last successful
// validation and may be stale.
func (s *AuthService) GetStatus(ctx context.Context, identity string) (model.StatusView, error) {
	view, err := s.credentials.GetStatus(ctx, identity)
	if err != nil {
		return model.StatusView{}, fmt.Errorf("get status %q: %w", identity, err)
	}
	return view, nil
}
