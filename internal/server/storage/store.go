// Package storage issues presigned upload URLs and reads uploaded objects.
//
// Two backends implement Store: S3Store signs URLs for an S3-compatible
// bucket, LocalStore serves a built-in object gateway on disk with signed
// single-use upload tokens.
package storage

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// Presigned is a time-boxed authorization for one PUT of one object key.
// Header lists headers the client must send verbatim.
type Presigned struct {
	URL       string
	Method    string
	Header    http.Header
	ExpiresAt time.Time
}

// Store is the object storage seen by the capture server.
type Store interface {
	// PresignPut authorizes a single PUT of key with the given content type.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (Presigned, error)
	// Open streams an uploaded object; a missing object yields common.ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether key has been uploaded.
	Exists(ctx context.Context, key string) (bool, error)
	// PublicURL is the URL under which key is served to browsers.
	PublicURL(key string) string
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
