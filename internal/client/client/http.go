package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/netx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

const maxResponseBytes = 1 << 20

var _ Client = (*HTTPClient)(nil)

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient talks to the capture server at baseURL. A zero timeout leaves
// deadlines to the caller's context.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, protocol.PathHealth, nil, nil)
}

func (c *HTTPClient) CreateSession(ctx context.Context, docType protocol.DocType) (protocol.CreateSessionResponse, error) {
	var resp protocol.CreateSessionResponse
	err := c.do(ctx, http.MethodPost, protocol.PathMobileSession, protocol.CreateSessionRequest{DocType: string(docType)}, &resp)
	return resp, err
}

// CheckSession polls the session status. An unknown session comes back as
// status expired together with an error wrapping common.ErrNotFound.
func (c *HTTPClient) CheckSession(ctx context.Context, sessionID string) (protocol.StatusResponse, error) {
	q := url.Values{}
	q.Set("action", "check")
	q.Set("session", sessionID)

	var resp protocol.StatusResponse
	err := c.do(ctx, http.MethodGet, protocol.PathMobileSession+"?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *HTTPClient) Presign(ctx context.Context, req protocol.PresignRequest) (protocol.PresignResponse, error) {
	var resp protocol.PresignResponse
	err := c.do(ctx, http.MethodPost, protocol.PathPresignedURL, req, &resp)
	return resp, err
}

// Upload PUTs data to the intent's presigned URL with the signed headers.
func (c *HTTPClient) Upload(ctx context.Context, intent protocol.PresignResponse, data []byte) error {
	header := http.Header{}
	for k, v := range intent.Headers {
		header.Set(k, v)
	}
	if header.Get(common.ContentTypeHeader) == "" {
		header.Set(common.ContentTypeHeader, intent.ContentType)
	}
	return netx.PutPresigned(ctx, c.http, intent.PresignedURL, header, data)
}

// Confirm reports finished uploads. A duplicate verdict returns the decoded
// response (with its match report) and an error wrapping common.ErrDuplicate.
func (c *HTTPClient) Confirm(ctx context.Context, req protocol.ConfirmRequest) (protocol.ConfirmResponse, error) {
	var resp protocol.ConfirmResponse
	err := c.do(ctx, http.MethodPost, protocol.PathConfirmUpload, req, &resp)
	return resp, err
}

// do sends one JSON request. out is filled for error statuses too when the
// body decodes, so callers can read structured failure payloads.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", common.ErrInvalidRequest, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	if in != nil {
		req.Header.Set(common.ContentTypeHeader, "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", common.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", common.ErrTransient, err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && ok {
			return fmt.Errorf("%w: decode response: %v", common.ErrInternal, err)
		}
	}
	if ok {
		return nil
	}

	var e protocol.ErrorResponse
	if json.Unmarshal(raw, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(raw))
	}
	return &ResponseError{Code: resp.StatusCode, Message: e.Error}
}
