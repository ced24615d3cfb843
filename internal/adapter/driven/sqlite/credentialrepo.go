package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelworks/tembovault/internal/domain/model"
	"github.com/kestrelworks/tembovault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port
// interface. Rows hold envelope-encrypted payloads only; this package never
// sees credential plaintext.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// GetRecord returns the stored record for the identity.
// Returns nil, nil if no record exists.
func (r *CredentialRepo) GetRecord(ctx context.Context, identity string) (*model.CredentialRecord, error) {
	const query = `
		SELECT identity, ciphertext, iv, salt, validation_status,
		       tembo_user_id, tembo_org_id, tembo_email,
		       registered_at, last_used_at, last_validated_at
		FROM credentials
		WHERE identity = ?
	`

	rec, err := scanRecord(r.db.Reader.QueryRowContext(ctx, query, identity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential record %q: %w", identity, err)
	}

	return rec, nil
}

// InsertRecord stores a new credential record. Returns
// driven.ErrAlreadyRegistered if a row for the identity already exists.
func (r *CredentialRepo) InsertRecord(ctx context.Context, rec model.CredentialRecord) error {
	const query = `
		INSERT INTO credentials (
			identity, ciphertext, iv, salt, validation_status,
			tembo_user_id, tembo_org_id, tembo_email,
			registered_at, last_used_at, last_validated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO NOTHING
	`

	var userID, orgID, email string
	if rec.Claims != nil {
		userID, orgID, email = rec.Claims.UserID, rec.Claims.OrgID, rec.Claims.Email
	}

	var lastValidatedAt any
	if rec.LastValidatedAt != nil {
		lastValidatedAt = rec.LastValidatedAt.UnixMilli()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		rec.Identity, rec.Ciphertext, rec.IV, rec.Salt, string(rec.Status),
		userID, orgID, email,
		rec.RegisteredAt.UnixMilli(), rec.LastUsedAt.UnixMilli(), lastValidatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credential record %q: %w", rec.Identity, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("insert credential record %q: %w", rec.Identity, driven.ErrAlreadyRegistered)
	}

	return nil
}

// UpdateCiphertext replaces the encrypted payload for the identity, resets
// the validation status to pending, and bumps last_used_at.
func (r *CredentialRepo) UpdateCiphertext(ctx context.Context, identity string, payload model.EncryptedPayload) error {
	const query = `
		UPDATE credentials
		SET ciphertext = ?, iv = ?, salt = ?, validation_status = ?, last_used_at = ?
		WHERE identity = ?
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		payload.Ciphertext, payload.IV, payload.Salt,
		string(model.ValidationPending), time.Now().UnixMilli(), identity,
	)
	if err != nil {
		return fmt.Errorf("update ciphertext %q: %w", identity, err)
	}

	return nil
}

// UpdateValidationStatus records a validation outcome and sets
// last_validated_at. Claims columns are rewritten only when claims is
// non-nil, so a rejection does not erase the claims captured at the last
// successful validation.
func (r *CredentialRepo) UpdateValidationStatus(ctx context.Context, identity string, status model.ValidationStatus, claims *model.TemboIdentity) error {
	now := time.Now().UnixMilli()

	if claims != nil {
		const query = `
			UPDATE credentials
			SET validation_status = ?, tembo_user_id = ?, tembo_org_id = ?, tembo_email = ?, last_validated_at = ?
			WHERE identity = ?
		`
		_, err := r.db.Writer.ExecContext(ctx, query,
			string(status), claims.UserID, claims.OrgID, claims.Email, now, identity,
		)
		if err != nil {
			return fmt.Errorf("update validation status %q: %w", identity, err)
		}
		return nil
	}

	const query = `
		UPDATE credentials
		SET validation_status = ?, last_validated_at = ?
		WHERE identity = ?
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, string(status), now, identity); err != nil {
		return fmt.Errorf("update validation status %q: %w", identity, err)
	}

	return nil
}

// TouchLastUsed bumps last_used_at. Failures are logged and swallowed;
// a stale usage timestamp must never fail an authentication.
func (r *CredentialRepo) TouchLastUsed(ctx context.Context, identity string) {
	const query = `UPDATE credentials SET last_used_at = ? WHERE identity = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, time.Now().UnixMilli(), identity); err != nil {
		slog.Warn("touch last_used_at failed", "identity", identity, "error", err)
	}
}

// DeleteRecord removes the record for the identity. Deleting an absent
// record is not an error.
func (r *CredentialRepo) DeleteRecord(ctx context.Context, identity string) error {
	const query = `DELETE FROM credentials WHERE identity = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, identity); err != nil {
		return fmt.Errorf("delete credential record %q: %w", identity, err)
	}

	return nil
}

// GetStatus returns the registration summary for the identity. An absent
// record yields the zero view with Registered=false.
func (r *CredentialRepo) GetStatus(ctx context.Context, identity string) (model.StatusView, error) {
	const query = `
		SELECT validation_status, tembo_user_id, tembo_org_id, tembo_email,
		       registered_at, last_used_at, last_validated_at
		FROM credentials
		WHERE identity = ?
	`

	var (
		view            model.StatusView
		status          string
		registeredAt    int64
		lastUsedAt      int64
		lastValidatedAt sql.NullInt64
	)
	err := r.db.Reader.QueryRowContext(ctx, query, identity).Scan(
		&status, &view.TemboUserID, &view.TemboOrgID, &view.TemboEmail,
		&registeredAt, &lastUsedAt, &lastValidatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StatusView{}, nil
	}
	if err != nil {
		return model.StatusView{}, fmt.Errorf("get status %q: %w", identity, err)
	}

	view.Registered = true
	view.Status = model.ValidationStatus(status)
	view.RegisteredAt = time.UnixMilli(registeredAt).UTC()
	view.LastUsedAt = time.UnixMilli(lastUsedAt).UTC()
	if lastValidatedAt.Valid {
		t := time.UnixMilli(lastValidatedAt.Int64).UTC()
		view.LastValidatedAt = &t
	}

	return view, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.CredentialRecord, error) {
	var (
		rec             model.CredentialRecord
		status          string
		userID          string
		orgID           string
		email           string
		registeredAt    int64
		lastUsedAt      int64
		lastValidatedAt sql.NullInt64
	)

	err := s.Scan(
		&rec.Identity, &rec.Ciphertext, &rec.IV, &rec.Salt, &status,
		&userID, &orgID, &email,
		&registeredAt, &lastUsedAt, &lastValidatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = model.ValidationStatus(status)
	if userID != "" {
		rec.Claims = &model.TemboIdentity{UserID: userID, OrgID: orgID, Email: email}
	}
	rec.RegisteredAt = time.UnixMilli(registeredAt).UTC()
	rec.LastUsedAt = time.UnixMilli(lastUsedAt).UTC()
	if lastValidatedAt.Valid {
		t := time.UnixMilli(lastValidatedAt.Int64).UTC()
		rec.LastValidatedAt = &t
	}

	return &rec, nil
}
