package model

import "time"

// CredentialRecord is the stored form of one user's Tembo credential. The
// Ciphertext, IV, and Salt fields are base64-encoded and opaque to everything
// except the envelope cipher. Identity is the router-issued user identifier
// and is unique per record.
type CredentialRecord struct {
	Identity        string
	Ciphertext      string
	IV              string
	Salt            string
	Status          ValidationStatus
	Claims          *TemboIdentity
	RegisteredAt    time.Time
	LastUsedAt      time.Time
	LastValidatedAt *time.Time
}

// EncryptedPayload is the output of one envelope encryption: ciphertext plus
// the fresh IV and salt that were generated for it, all base64-encoded.
type EncryptedPayload struct {
	Ciphertext string
	IV         string
	Salt       string
}

// StatusView is the read-only registration summary exposed to callers. It
// never contains credential material.
type StatusView struct {
	Registered      bool
	Status          ValidationStatus
	TemboUserID     string
	TemboOrgID      string
	TemboEmail      string
	RegisteredAt    time.Time
	LastUsedAt      time.Time
	LastValidatedAt *time.Time
}
