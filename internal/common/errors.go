// Package common defines shared constants and sentinel errors used across
// the search and key-management layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Request validation errors (empty tokens, missing fields).
	ErrValidation = errors.New("validation error")

	// Authorization errors (access verification failed).
	ErrUnauthorized = errors.New("unauthorized")

	// Cryptographic errors (decrypt/verify failure, KMS transport failure).
	// Never carries key material or plaintext in its wrapping context.
	ErrCrypto = errors.New("crypto error")

	// ErrMasterKeyUnavailable is returned when an operation requires the
	// process master key and none is configured. It is never substituted
	// with a fallback key.
	ErrMasterKeyUnavailable = errors.New("master key unavailable")

	// ErrBackendUnavailable marks database, KMS or ledger transport
	// failures. No retry happens at this layer.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
