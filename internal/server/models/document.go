// Package models defines server-side data models persisted in the database.
package models

import "time"

// Document statuses.
const (
	DocumentActive = "active"
	DocumentDraft  = "draft"
)

// Document is the record of a resolution, minute or ordinance. The capture
// subsystem creates it and appends image references; the record screens own
// everything else about it.
type Document struct {
	ID               int64
	DocType          string
	Title            string
	UploadedBy       string
	Content          string
	ContentSignature string
	Status           string
	CreatedAt        time.Time
}

// DocumentImage links an uploaded object to its document. ObjectKey is unique
// so one object can never be attached twice.
type DocumentImage struct {
	ID         int64
	DocumentID int64
	ObjectKey  string
	PublicURL  string
	Position   int
	CreatedAt  time.Time
}

// ImageFingerprint is the perceptual hash of one accepted image. Rows are
// never updated and go away with their document.
type ImageFingerprint struct {
	ID           int64
	DocumentID   int64
	DocumentType string
	Hash         string
	Path         string
	CreatedAt    time.Time
}

// TextCandidate is a stored document's text loaded for duplicate comparison.
type TextCandidate struct {
	DocumentID int64
	Title      string
	Content    string
	Signature  string
}

// Completion guards confirmation idempotency: one row per completed session
// or object key set.
type Completion struct {
	IdempotencyKey string
	DocumentID     *int64
	ObjectKeys     []string
	CreatedAt      time.Time
}
