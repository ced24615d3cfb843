// Package crypto implements the envelope encryption used for stored Tembo
// credentials: a per-operation key derived from the master secret with
// PBKDF2, then AES-256-GCM with the owning identity as additional
// authenticated data.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/kestrelworks/tembovault/internal/domain/model"
)

// ErrInvalidMasterKey is returned by NewEnvelope when the master secret is
// missing, not valid base64, or shorter than 32 decoded bytes.
var ErrInvalidMasterKey = errors.New("invalid master key")

// ErrDecryptFailed is the single error returned for every decryption
// failure. Wrong identity, tampered ciphertext, and malformed encoding are
// deliberately indistinguishable.
var ErrDecryptFailed = errors.New("decryption failed")

const (
	saltSize   = 16
	keySize    = 32
	iterations = 100_000

	minMasterKeySize = 32
)

// Envelope encrypts and decrypts credentials under a master secret. Every
// call derives a fresh AES-256 key from the master secret and a random salt,
// so the master secret itself never touches a cipher. The master secret is
// read-only after construction; an Envelope is safe for concurrent use.
type Envelope struct {
	master []byte
}

// NewEnvelope decodes the base64 master secret and validates it. The decoded
// secret must be at least 32 bytes.
func NewEnvelope(encodedSecret string) (*Envelope, error) {
	if encodedSecret == "" {
		return nil, fmt.Errorf("master key not set: %w", ErrInvalidMasterKey)
	}
	master, err := base64.StdEncoding.DecodeString(encodedSecret)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid base64: %w", ErrInvalidMasterKey)
	}
	if len(master) < minMasterKeySize {
		return nil, fmt.Errorf("master key is %d bytes, need at least %d: %w", len(master), minMasterKeySize, ErrInvalidMasterKey)
	}
	return &Envelope{master: master}, nil
}

// Encrypt seals plaintext for the given identity. Each call draws a fresh
// salt and IV, so encrypting the same inputs twice never yields the same
// payload. The identity is bound as AAD: the payload can only be opened by
// Decrypt with the same identity.
func (e *Envelope) Encrypt(plaintext, identity string) (model.EncryptedPayload, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return model.EncryptedPayload{}, fmt.Errorf("rand salt: %w", err)
	}

	gcm, err := e.aead(salt)
	if err != nil {
		return model.EncryptedPayload{}, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return model.EncryptedPayload{}, fmt.Errorf("rand iv: %w", err)
	}

	ciphertext := gcm.Seal(nil, iv, []byte(plaintext), []byte(identity))

	return model.EncryptedPayload{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// Decrypt opens a payload sealed by Encrypt under the same identity. Any
// failure returns ErrDecryptFailed with no further detail.
func (e *Envelope) Decrypt(payload model.EncryptedPayload, identity string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	iv, err := base64.StdEncoding.DecodeString(payload.IV)
	if err != nil {
		return "", ErrDecryptFailed
	}
	salt, err := base64.StdEncoding.DecodeString(payload.Salt)
	if err != nil {
		return "", ErrDecryptFailed
	}

	gcm, err := e.aead(salt)
	if err != nil {
		return "", ErrDecryptFailed
	}
	// gcm.Open panics on a wrong-sized nonce, so reject it here.
	if len(iv) != gcm.NonceSize() {
		return "", ErrDecryptFailed
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, []byte(identity))
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// aead derives the per-operation key for salt and wraps it in AES-256-GCM.
// The derived key is never retained.
func (e *Envelope) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.master, salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
