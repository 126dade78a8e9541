// Package dedup decides whether an upload duplicates stored paperwork.
//
// Two independent checks run against documents of the same type: a
// perceptual match of image fingerprints and a match of normalized text.
// Both only report candidates; Report.Blocks applies the policy that text
// duplicates always block while image duplicates may be overridden.
package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
)

// FingerprintSource lists stored image fingerprints of a document type,
// optionally skipping one document.
type FingerprintSource interface {
	ListByType(ctx context.Context, docType string, excludeID *int64) ([]models.ImageFingerprint, error)
}

// TextSource lists stored document texts of a document type, optionally
// skipping one document.
type TextSource interface {
	ListTextCandidates(ctx context.Context, docType string, excludeID *int64) ([]models.TextCandidate, error)
}

// ImageMatch is a stored fingerprint close to an incoming image.
type ImageMatch struct {
	// Index of the incoming image in the checked batch.
	Index      int
	DocumentID int64
	Path       string
	Distance   int
}

// TextMatch is a stored document whose text matches the incoming text.
type TextMatch struct {
	DocumentID int64
	Title      string
	Similarity float64
	Exact      bool
}

// Report collects both checks.
type Report struct {
	Images []ImageMatch
	Text   []TextMatch
}

// Empty reports whether nothing matched.
func (r Report) Empty() bool {
	return len(r.Images) == 0 && len(r.Text) == 0
}

// Blocks applies the gating policy: any text match blocks, an image match
// blocks unless the operator allowed duplicate images.
func (r Report) Blocks(allowDuplicateImages bool) bool {
	if len(r.Text) > 0 {
		return true
	}
	return len(r.Images) > 0 && !allowDuplicateImages
}

// Engine runs duplicate checks with configured thresholds.
type Engine struct {
	images         FingerprintSource
	texts          TextSource
	imageThreshold int
	textThreshold  float64
	logger         logging.Logger
}

// NewEngine builds an engine. Image hashes at Hamming distance ≤
// imageThreshold are flagged; texts with similarity ≥ textThreshold are
// flagged, and identical signatures always are.
func NewEngine(images FingerprintSource, texts TextSource, imageThreshold int, textThreshold float64, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Engine{
		images:         images,
		texts:          texts,
		imageThreshold: imageThreshold,
		textThreshold:  textThreshold,
		logger:         logger,
	}
}

// CheckImages compares hashes against every stored fingerprint of docType.
func (e *Engine) CheckImages(ctx context.Context, docType string, hashes []Hash, excludeID *int64) ([]ImageMatch, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	stored, err := e.images.ListByType(ctx, docType, excludeID)
	if err != nil {
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}

	var matches []ImageMatch
	for _, fp := range stored {
		h, err := ParseHash(fp.Hash)
		if err != nil {
			e.logger.Warn(ctx, "skipping malformed fingerprint", "document_id", fp.DocumentID, "hash", fp.Hash)
			continue
		}
		for i, in := range hashes {
			if d := Distance(in, h); d <= e.imageThreshold {
				matches = append(matches, ImageMatch{Index: i, DocumentID: fp.DocumentID, Path: fp.Path, Distance: d})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].DocumentID < matches[j].DocumentID
	})
	return matches, nil
}

// CheckText compares text against stored texts of docType. Empty text is
// never a duplicate.
func (e *Engine) CheckText(ctx context.Context, docType, text string, excludeID *int64) ([]TextMatch, error) {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil, nil
	}
	sig := Signature(normalized)

	stored, err := e.texts.ListTextCandidates(ctx, docType, excludeID)
	if err != nil {
		return nil, fmt.Errorf("load texts: %w", err)
	}

	var matches []TextMatch
	for _, c := range stored {
		candSig := c.Signature
		if candSig == "" {
			candSig = Signature(c.Content)
		}
		if candSig != "" && candSig == sig {
			matches = append(matches, TextMatch{DocumentID: c.DocumentID, Title: c.Title, Similarity: 1, Exact: true})
			continue
		}
		if s := Similarity(normalized, c.Content); s >= e.textThreshold {
			matches = append(matches, TextMatch{DocumentID: c.DocumentID, Title: c.Title, Similarity: s})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches, nil
}

// Check runs both checks.
func (e *Engine) Check(ctx context.Context, docType string, hashes []Hash, text string, excludeID *int64) (Report, error) {
	images, err := e.CheckImages(ctx, docType, hashes, excludeID)
	if err != nil {
		return Report{}, err
	}
	texts, err := e.CheckText(ctx, docType, text, excludeID)
	if err != nil {
		return Report{}, err
	}
	return Report{Images: images, Text: texts}, nil
}
