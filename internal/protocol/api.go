package protocol

import "time"

// Endpoint paths served by the capture server.
const (
	PathMobileSession = "/mobile-session"
	PathPresignedURL  = "/presigned-url"
	PathConfirmUpload = "/confirm-upload"
	PathRelay         = "/relay"
	PathObjects       = "/objects/"
	PathHealth        = "/health"
	PathDocuments     = "/documents"
)

type CreateSessionRequest struct {
	DocType string `json:"doc_type"`
}

type CreateSessionResponse struct {
	Success   bool      `json:"success"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PresignRequest struct {
	DocType     string `json:"doc_type"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SessionID   string `json:"session_id,omitempty"`
}

// PresignResponse carries one upload intent. Headers must be sent verbatim
// with the PUT.
type PresignResponse struct {
	Success      bool              `json:"success"`
	PresignedURL string            `json:"presigned_url,omitempty"`
	ObjectKey    string            `json:"object_key,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	ExpiresAt    time.Time         `json:"expires_at,omitzero"`
	Error        string            `json:"error,omitempty"`
}

// ConfirmRequest reports finished uploads. Title, UploadedBy and Content are
// the document metadata entered on the mobile device; they may be empty when
// DeferToDesktop is set.
type ConfirmRequest struct {
	DocType              string   `json:"doc_type"`
	ObjectKeys           []string `json:"object_keys"`
	SessionID            string   `json:"session_id,omitempty"`
	DeferToDesktop       bool     `json:"defer_to_desktop"`
	Title                string   `json:"title,omitempty"`
	UploadedBy           string   `json:"uploaded_by,omitempty"`
	Content              string   `json:"content,omitempty"`
	AllowDuplicateImages bool     `json:"allow_duplicate_images,omitempty"`
	ExcludeDocumentID    *int64   `json:"exclude_document_id,omitempty"`
}

type ConfirmResponse struct {
	Success           bool             `json:"success"`
	ID                *int64           `json:"id,omitempty"`
	ObjectKeys        []string         `json:"object_keys,omitempty"`
	ImageURLs         []string         `json:"image_urls,omitempty"`
	DeferredToDesktop bool             `json:"deferred_to_desktop"`
	AlreadyConfirmed  bool             `json:"already_confirmed,omitempty"`
	Error             string           `json:"error,omitempty"`
	Duplicates        *DuplicateReport `json:"duplicates,omitempty"`
}

// DuplicateReport lists stored documents the upload resembles.
type DuplicateReport struct {
	Images []ImageMatch `json:"images,omitempty"`
	Text   []TextMatch  `json:"text,omitempty"`
}

type ImageMatch struct {
	ObjectKey  string `json:"object_key"`
	DocumentID int64  `json:"document_id"`
	Path       string `json:"path"`
	Distance   int    `json:"distance"`
}

type TextMatch struct {
	DocumentID int64   `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Similarity float64 `json:"similarity"`
	Exact      bool    `json:"exact"`
}

// StatusResponse answers the polling endpoint.
type StatusResponse struct {
	Success           bool          `json:"success"`
	Status            SessionStatus `json:"status"`
	ResultID          *int64        `json:"result_id,omitempty"`
	ObjectKeys        []string      `json:"object_keys,omitempty"`
	ImageURLs         []string      `json:"image_urls,omitempty"`
	DeferredToDesktop bool          `json:"deferred_to_desktop,omitempty"`
	Title             string        `json:"title,omitempty"`
	UploadedBy        string        `json:"uploaded_by,omitempty"`
	Error             string        `json:"error,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
