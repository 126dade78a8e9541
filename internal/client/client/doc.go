// Package client talks to the eFIND capture server over HTTP.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface):
//     CreateSession, CheckSession, Presign, Upload, Confirm and Ping.
//  2. A concrete HTTP implementation (see HTTPClient) that speaks the JSON
//     payloads of the protocol package and PUTs file bytes straight to the
//     presigned storage URL.
//
// # Error Handling
//
// Non-2xx answers surface as *ResponseError, which unwraps to the sentinel
// errors of the common package, so callers match with errors.Is:
// 400 → ErrInvalidRequest, 404 → ErrNotFound, 410 → ErrExpired,
// 409 → ErrDuplicate / ErrAlreadyUsed / ErrVersionConflict, 5xx and network
// failures → ErrTransient.
//
// Concurrency & Contexts
//
// HTTPClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation.
package client
