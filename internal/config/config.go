// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	MasterKey    string
	DBPath       string
	ListenAddr   string
	TemboBaseURL string
	TemboTimeout time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. TEMBOVAULT_MASTER_KEY is required: it is the base64-encoded secret
// every stored credential is encrypted under. Decoding and length validation
// happen in the crypto package so the key material stays out of this layer.
// Optional variables with defaults: TEMBOVAULT_DB_PATH (tembovault.db),
// TEMBOVAULT_LISTEN_ADDR (127.0.0.1:8080), TEMBOVAULT_TEMBO_BASE_URL
// (https://api.tembo.dev), TEMBOVAULT_TEMBO_TIMEOUT (10s).
func Load() (*Config, error) {
	masterKey := os.Getenv("TEMBOVAULT_MASTER_KEY")
	if masterKey == "" {
		return nil, errors.New("TEMBOVAULT_MASTER_KEY is required")
	}

	dbPath := "tembovault.db"
	if v, ok := os.LookupEnv("TEMBOVAULT_DB_PATH"); ok {
		dbPath = v
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("TEMBOVAULT_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	temboBaseURL := "https://api.tembo.dev"
	if v, ok := os.LookupEnv("TEMBOVAULT_TEMBO_BASE_URL"); ok && v != "" {
		temboBaseURL = v
	}

	temboTimeout := 10 * time.Second
	if v, ok := os.LookupEnv("TEMBOVAULT_TEMBO_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("TEMBOVAULT_TEMBO_TIMEOUT has invalid duration %q: %w", v, err)
		}
		temboTimeout = parsed
	}

	return &Config{
		MasterKey:    masterKey,
		DBPath:       dbPath,
		ListenAddr:   listenAddr,
		TemboBaseURL: temboBaseURL,
		TemboTimeout: temboTimeout,
	}, nil
}
