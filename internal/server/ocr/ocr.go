// Package ocr talks to the external text-extraction service. The engine
// itself is a black box: image bytes in, text and confidence out.
package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
)

// Result is the extracted text of one image.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Extractor turns an image into text.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, contentType string) (Result, error)
}

// Noop extracts nothing. Used when no OCR endpoint is configured.
type Noop struct{}

func (Noop) Extract(context.Context, io.Reader, string) (Result, error) { return Result{}, nil }

// HTTPExtractor posts the raw image to an OCR endpoint and expects a JSON
// body {"text": "...", "confidence": 0.93}.
type HTTPExtractor struct {
	endpoint string
	client   *http.Client
}

// NewHTTPExtractor returns an extractor for endpoint. A nil client gets a
// default with a generous timeout, since OCR of a full page is slow.
func NewHTTPExtractor(endpoint string, client *http.Client) *HTTPExtractor {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPExtractor{endpoint: endpoint, client: client}
}

// New picks HTTPExtractor when endpoint is set and Noop otherwise.
func New(endpoint string) Extractor {
	if strings.TrimSpace(endpoint) == "" {
		return Noop{}
	}
	return NewHTTPExtractor(endpoint, nil)
}

func (e *HTTPExtractor) Extract(ctx context.Context, r io.Reader, contentType string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, r)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set(common.ContentTypeHeader, contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: ocr: %v", common.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("ocr: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("ocr: decode response: %w", err)
	}
	return res, nil
}
