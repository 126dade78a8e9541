package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/cryptox"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/dbx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
	sc "github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/config"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/dedup"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/ocr"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/relay"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/repomanager"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/sessions"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/storage"
)

// maxObjectBytes bounds how much of one object is read for fingerprinting.
const maxObjectBytes = 32 << 20

// SessionCompleter is the part of the session registry confirmation needs.
type SessionCompleter interface {
	SessionReader
	Complete(id string, fn func(sessions.Session) (sessions.Result, error)) (sessions.Session, bool, error)
}

// EventPublisher delivers relay messages to the desktop.
type EventPublisher interface {
	Publish(ctx context.Context, msg protocol.Message) (relay.Delivery, error)
}

// DuplicateChecker runs the duplicate engine.
type DuplicateChecker interface {
	Check(ctx context.Context, docType string, hashes []dedup.Hash, text string, excludeID *int64) (dedup.Report, error)
}

// ConfirmDeps wires a ConfirmService. Events and OCR are optional.
type ConfirmDeps struct {
	DB        *sql.DB
	Repos     repomanager.RepositoryManager
	Store     storage.Store
	Sessions  SessionCompleter
	Events    EventPublisher
	Checker   DuplicateChecker
	OCR       ocr.Extractor
	DeferMode string
	Logger    logging.Logger
}

type ConfirmService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	store     storage.Store
	sessions  SessionCompleter
	events    EventPublisher
	checker   DuplicateChecker
	ocr       ocr.Extractor
	deferMode string
	logger    logging.Logger
}

func NewConfirmService(d ConfirmDeps) *ConfirmService {
	s := &ConfirmService{
		db:        d.DB,
		repos:     d.Repos,
		store:     d.Store,
		sessions:  d.Sessions,
		events:    d.Events,
		checker:   d.Checker,
		ocr:       d.OCR,
		deferMode: d.DeferMode,
		logger:    d.Logger,
	}
	if s.ocr == nil {
		s.ocr = ocr.Noop{}
	}
	if s.deferMode == "" {
		s.deferMode = sc.DeferStage
	}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	s.logger = s.logger.With("module", "confirm")
	return s
}

// ConfirmResult is the outcome of a confirmation. When Blocked is set nothing
// was persisted and Duplicates explains why; otherwise Duplicates may still
// list image matches the operator chose to accept.
type ConfirmResult struct {
	DocumentID        *int64
	ObjectKeys        []string
	ImageURLs         []string
	DeferredToDesktop bool
	AlreadyConfirmed  bool
	Blocked           bool
	Duplicates        *dedup.Report
}

type blockedError struct {
	report dedup.Report
}

func (e *blockedError) Error() string { return "duplicate detected" }
func (e *blockedError) Unwrap() error { return common.ErrDuplicate }

var errAlreadyCompleted = errors.New("completion already recorded")

// persisted is what one successful persist produced.
type persisted struct {
	documentID *int64
	keys       []string
	deferred   bool
	already    bool
	report     *dedup.Report
}

// Confirm records finished uploads. Confirming the same session, or the same
// key set without a session, twice yields one document; the repeat is
// answered with the stored result and AlreadyConfirmed.
func (s *ConfirmService) Confirm(ctx context.Context, req protocol.ConfirmRequest) (ConfirmResult, error) {
	dt, err := protocol.ParseDocType(req.DocType)
	if err != nil {
		return ConfirmResult{}, err
	}
	keys, err := normalizeKeys(req.ObjectKeys, dt)
	if err != nil {
		return ConfirmResult{}, err
	}

	if req.SessionID == "" {
		p, err := s.persist(ctx, dt, keys, req, "keys:"+cryptox.SetDigest(keys))
		return s.result(p, keys, err)
	}
	return s.confirmSession(ctx, dt, keys, req)
}

func (s *ConfirmService) confirmSession(ctx context.Context, dt protocol.DocType, keys []string, req protocol.ConfirmRequest) (ConfirmResult, error) {
	ctx = logging.WithSession(ctx, req.SessionID, string(dt))
	var report *dedup.Report
	sess, already, err := s.sessions.Complete(req.SessionID, func(sess sessions.Session) (sessions.Result, error) {
		if sess.DocType != dt {
			return sessions.Result{}, fmt.Errorf("%w: session is for %s", common.ErrInvalidRequest, sess.DocType)
		}
		p, err := s.persist(ctx, dt, keys, req, "session:"+sess.ID)
		if err != nil {
			return sessions.Result{}, err
		}
		report = p.report
		return sessions.Result{
			DocumentID:        p.documentID,
			ObjectKeys:        p.keys,
			ImageURLs:         s.publicURLs(p.keys),
			Title:             req.Title,
			UploadedBy:        req.UploadedBy,
			DeferredToDesktop: p.deferred,
		}, nil
	})

	var blocked *blockedError
	if errors.As(err, &blocked) {
		return ConfirmResult{ObjectKeys: keys, Blocked: true, Duplicates: &blocked.report}, nil
	}
	if err != nil {
		return ConfirmResult{}, err
	}

	r := sess.Result
	res := ConfirmResult{
		DocumentID:        r.DocumentID,
		ObjectKeys:        r.ObjectKeys,
		ImageURLs:         r.ImageURLs,
		DeferredToDesktop: r.DeferredToDesktop,
		AlreadyConfirmed:  already,
		Duplicates:        report,
	}
	if !already {
		s.publish(ctx, sess)
	}
	return res, nil
}

func (s *ConfirmService) result(p persisted, keys []string, err error) (ConfirmResult, error) {
	var blocked *blockedError
	if errors.As(err, &blocked) {
		return ConfirmResult{ObjectKeys: keys, Blocked: true, Duplicates: &blocked.report}, nil
	}
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{
		DocumentID:        p.documentID,
		ObjectKeys:        p.keys,
		ImageURLs:         s.publicURLs(p.keys),
		DeferredToDesktop: p.deferred,
		AlreadyConfirmed:  p.already,
		Duplicates:        p.report,
	}, nil
}

func (s *ConfirmService) publish(ctx context.Context, sess sessions.Session) {
	if s.events == nil {
		return
	}
	ev, ok := sess.CompletionEvent()
	if !ok {
		return
	}
	d, err := s.events.Publish(ctx, ev)
	if err != nil {
		s.logger.Warn(ctx, "publish upload_complete failed", "error", err)
		return
	}
	s.logger.Debug(ctx, "upload_complete published", "delivery", d.String())
}

// persist runs the duplicate check, then in one transaction claims the
// completion guard and writes the document with its images and fingerprints.
// Deferred uploads in stage mode only check that the objects exist.
func (s *ConfirmService) persist(ctx context.Context, dt protocol.DocType, keys []string, req protocol.ConfirmRequest, idemKey string) (persisted, error) {
	deferred := req.DeferToDesktop
	if deferred && s.deferMode != sc.DeferDraft {
		if err := s.ensureUploaded(ctx, keys); err != nil {
			return persisted{}, err
		}
		return persisted{keys: keys, deferred: true}, nil
	}

	if p, ok, err := s.lookupCompletion(ctx, idemKey, deferred); err != nil || ok {
		return p, err
	}

	hashes, text, err := s.inspect(ctx, keys, req.Content)
	if err != nil {
		return persisted{}, err
	}

	report, err := s.checker.Check(ctx, string(dt), hashes, text, req.ExcludeDocumentID)
	if err != nil {
		return persisted{}, fmt.Errorf("duplicate check: %w", err)
	}
	if report.Blocks(req.AllowDuplicateImages) {
		s.logger.Info(ctx, "upload blocked as duplicate",
			"doc_type", dt, "image_matches", len(report.Images), "text_matches", len(report.Text))
		return persisted{}, &blockedError{report: report}
	}

	status := models.DocumentActive
	if deferred {
		status = models.DocumentDraft
	}

	var docID int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Claim first: a concurrent confirm of the same keys waits here and
		// then backs off, instead of colliding on the image rows.
		completions := s.repos.Completions(tx)
		ok, err := completions.Insert(ctx, &models.Completion{
			IdempotencyKey: idemKey,
			ObjectKeys:     keys,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyCompleted
		}

		id, err := s.repos.Documents(tx).Create(ctx, &models.Document{
			DocType:          string(dt),
			Title:            req.Title,
			UploadedBy:       req.UploadedBy,
			Content:          text,
			ContentSignature: dedup.Signature(text),
			Status:           status,
		})
		if err != nil {
			return err
		}
		docID = id

		imgRepo := s.repos.Images(tx)
		fpRepo := s.repos.Fingerprints(tx)
		for i, key := range keys {
			if err := imgRepo.Create(ctx, &models.DocumentImage{
				DocumentID: id,
				ObjectKey:  key,
				PublicURL:  s.store.PublicURL(key),
				Position:   i,
			}); err != nil {
				return err
			}
			if err := fpRepo.Create(ctx, &models.ImageFingerprint{
				DocumentID:   id,
				DocumentType: string(dt),
				Hash:         hashes[i].String(),
				Path:         key,
			}); err != nil {
				return err
			}
		}

		return completions.AttachDocument(ctx, idemKey, id)
	})
	if errors.Is(err, errAlreadyCompleted) {
		p, ok, err := s.lookupCompletion(ctx, idemKey, deferred)
		if err == nil && !ok {
			err = fmt.Errorf("%w: completion %s vanished", common.ErrInternal, idemKey)
		}
		return p, err
	}
	if err != nil {
		return persisted{}, err
	}

	s.logger.Info(ctx, "document stored", "document_id", docID, "doc_type", dt, "images", len(keys), "status", status)
	var rep *dedup.Report
	if !report.Empty() {
		rep = &report
	}
	return persisted{documentID: &docID, keys: keys, deferred: deferred, report: rep}, nil
}

func (s *ConfirmService) lookupCompletion(ctx context.Context, idemKey string, deferred bool) (persisted, bool, error) {
	c, err := s.repos.Completions(s.db).Get(ctx, idemKey)
	if errors.Is(err, common.ErrNotFound) {
		return persisted{}, false, nil
	}
	if err != nil {
		return persisted{}, false, err
	}
	return persisted{documentID: c.DocumentID, keys: c.ObjectKeys, deferred: deferred, already: true}, true, nil
}

func (s *ConfirmService) ensureUploaded(ctx context.Context, keys []string) error {
	for _, key := range keys {
		ok, err := s.store.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("stat %s: %w", key, err)
		}
		if !ok {
			return fmt.Errorf("%w: object %s was not uploaded", common.ErrInvalidRequest, key)
		}
	}
	return nil
}

// inspect reads every object once, fingerprints it and, when no text was
// supplied, extracts text from it.
func (s *ConfirmService) inspect(ctx context.Context, keys []string, content string) ([]dedup.Hash, string, error) {
	wantText := strings.TrimSpace(content) == ""
	hashes := make([]dedup.Hash, 0, len(keys))
	var texts []string

	for _, key := range keys {
		data, err := s.read(ctx, key)
		if err != nil {
			return nil, "", err
		}
		h, err := dedup.HashReader(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("%w: object %s: %v", common.ErrInvalidRequest, key, err)
		}
		hashes = append(hashes, h)

		if !wantText {
			continue
		}
		res, err := s.ocr.Extract(ctx, bytes.NewReader(data), storage.ContentTypeForKey(key))
		if err != nil {
			s.logger.Warn(ctx, "ocr failed", "object_key", key, "error", err)
			continue
		}
		if t := strings.TrimSpace(res.Text); t != "" {
			texts = append(texts, t)
		}
	}

	if !wantText {
		return hashes, content, nil
	}
	return hashes, strings.Join(texts, "\n"), nil
}

func (s *ConfirmService) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.store.Open(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: object %s was not uploaded", common.ErrInvalidRequest, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxObjectBytes))
}

func (s *ConfirmService) publicURLs(keys []string) []string {
	urls := make([]string, len(keys))
	for i, k := range keys {
		urls[i] = s.store.PublicURL(k)
	}
	return urls
}

// DeleteDocument removes a document together with its images and
// fingerprints.
func (s *ConfirmService) DeleteDocument(ctx context.Context, id int64) error {
	if err := s.repos.Documents(s.db).Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "document deleted", "document_id", id)
	return nil
}

// normalizeKeys validates keys against docType and drops repeats, keeping
// the first occurrence.
func normalizeKeys(keys []string, dt protocol.DocType) ([]string, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: object_keys is empty", common.ErrInvalidRequest)
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := storage.ValidateKey(k, dt); err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}

// DuplicatePayload renders a report for the wire, naming incoming images by
// their object key.
func DuplicatePayload(r *dedup.Report, keys []string) *protocol.DuplicateReport {
	if r == nil {
		return nil
	}
	out := &protocol.DuplicateReport{}
	for _, m := range r.Images {
		key := ""
		if m.Index >= 0 && m.Index < len(keys) {
			key = keys[m.Index]
		}
		out.Images = append(out.Images, protocol.ImageMatch{
			ObjectKey:  key,
			DocumentID: m.DocumentID,
			Path:       m.Path,
			Distance:   m.Distance,
		})
	}
	for _, m := range r.Text {
		out.Text = append(out.Text, protocol.TextMatch{
			DocumentID: m.DocumentID,
			Title:      m.Title,
			Similarity: m.Similarity,
			Exact:      m.Exact,
		})
	}
	return out
}
