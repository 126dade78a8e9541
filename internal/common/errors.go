// Package common defines shared constants and sentinel errors used across
// client and server layers of eFIND capture. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Request validation errors. Rejected immediately and never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// Lookup errors. Callers fall back to the manual entry flow.
	ErrNotFound = errors.New("not found")
	ErrExpired  = errors.New("expired")

	// Transport errors (presign call, storage PUT). Retried with backoff.
	ErrTransient = errors.New("transient network failure")

	// Relay connect/send failure. Never surfaced to the end user, polling covers it.
	ErrRelayUnavailable = errors.New("relay unavailable")

	// Gating decision returned by the duplicate engine.
	ErrDuplicate = errors.New("duplicate detected")

	// Single-use upload token replayed.
	ErrAlreadyUsed = errors.New("already used")

	// Every file of a batch failed.
	ErrAllFilesFailed = errors.New("all files failed")

	// State machine / status transition rejected.
	ErrVersionConflict = errors.New("version conflict")

	ErrInternal = errors.New("internal error")
)
