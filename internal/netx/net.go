// Package netx performs direct-to-storage transfers against presigned URLs
// and classifies their failures.
package netx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
)

// StatusError is returned when storage answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload failed: %d %s; body: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Unwrap maps the status onto the shared error taxonomy: 5xx is transient,
// 409/412 means the presigned URL was already consumed, other 4xx are
// invalid requests.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code >= 500:
		return common.ErrTransient
	case e.Code == http.StatusConflict || e.Code == http.StatusPreconditionFailed:
		return common.ErrAlreadyUsed
	default:
		return common.ErrInvalidRequest
	}
}

// UploadToPresignedURL PUTs file to url with the given content type. Any 2xx
// is success. The PUT carries If-None-Match: * so a replay against an already
// written key is refused by storage.
func UploadToPresignedURL(ctx context.Context, client *http.Client, url, contentType string, file []byte) error {
	header := http.Header{}
	header.Set(common.ContentTypeHeader, contentType)
	return PutPresigned(ctx, client, url, header, file)
}

// PutPresigned PUTs file to url sending header verbatim. If-None-Match: * is
// added when the issuer did not sign it.
func PutPresigned(ctx context.Context, client *http.Client, url string, header http.Header, file []byte) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(file))
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	if req.Header.Get(common.IfNoneMatchHeader) == "" {
		req.Header.Set(common.IfNoneMatchHeader, "*")
	}
	req.ContentLength = int64(len(file))

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", common.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, common.ErrTransient)
}
