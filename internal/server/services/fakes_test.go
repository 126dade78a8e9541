package services

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/dbx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/dedup"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/models"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/ocr"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/relay"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/completions"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/documents"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/fingerprints"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/images"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/storage"
)

// -------- test fakes --------

type fakeStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	presignErr error
	presigned  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

func (f *fakeStore) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (storage.Presigned, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presignErr != nil {
		return storage.Presigned{}, f.presignErr
	}
	f.presigned = append(f.presigned, key)
	return storage.Presigned{
		URL:       "http://store.test/" + key,
		Method:    http.MethodPut,
		Header:    http.Header{"Content-Type": {contentType}},
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (f *fakeStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) PublicURL(key string) string { return "http://cdn.test/" + key }

// fakeDB is the shared state behind the fake repositories. It does not roll
// back; tests assert on what was attempted.
type fakeDB struct {
	mu           sync.Mutex
	nextID       int64
	docs         []models.Document
	images       []models.DocumentImage
	fps          []models.ImageFingerprint
	completions  map[string]models.Completion
	conflictWith *models.Completion
	deleteErr    error
	deleted      []int64
}

func newFakeDB() *fakeDB {
	return &fakeDB{nextID: 100, completions: map[string]models.Completion{}}
}

type fakeRepos struct{ s *fakeDB }

func (m fakeRepos) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m fakeRepos) Documents(dbx.DBTX) documents.Repository       { return &fakeDocs{s: m.s} }
func (m fakeRepos) Images(dbx.DBTX) images.Repository             { return &fakeImages{s: m.s} }
func (m fakeRepos) Fingerprints(dbx.DBTX) fingerprints.Repository { return &fakeFingerprints{s: m.s} }
func (m fakeRepos) Completions(dbx.DBTX) completions.Repository   { return &fakeCompletions{s: m.s} }

type fakeDocs struct {
	documents.Repository
	s *fakeDB
}

func (f *fakeDocs) Create(_ context.Context, d *models.Document) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.nextID++
	d.ID = f.s.nextID
	f.s.docs = append(f.s.docs, *d)
	return d.ID, nil
}

func (f *fakeDocs) Delete(_ context.Context, id int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.deleteErr != nil {
		return f.s.deleteErr
	}
	f.s.deleted = append(f.s.deleted, id)
	return nil
}

type fakeImages struct {
	images.Repository
	s *fakeDB
}

func (f *fakeImages) Create(_ context.Context, img *models.DocumentImage) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.images = append(f.s.images, *img)
	return nil
}

type fakeFingerprints struct {
	fingerprints.Repository
	s *fakeDB
}

func (f *fakeFingerprints) Create(_ context.Context, fp *models.ImageFingerprint) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.fps = append(f.s.fps, *fp)
	return nil
}

type fakeCompletions struct {
	s *fakeDB
}

func (f *fakeCompletions) Insert(_ context.Context, c *models.Completion) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.conflictWith != nil {
		f.s.completions[c.IdempotencyKey] = *f.s.conflictWith
		return false, nil
	}
	if _, ok := f.s.completions[c.IdempotencyKey]; ok {
		return false, nil
	}
	f.s.completions[c.IdempotencyKey] = *c
	return true, nil
}

func (f *fakeCompletions) Get(_ context.Context, key string) (*models.Completion, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.completions[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &c, nil
}

func (f *fakeCompletions) AttachDocument(_ context.Context, key string, documentID int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.completions[key]
	if !ok {
		return common.ErrNotFound
	}
	c.DocumentID = &documentID
	f.s.completions[key] = c
	return nil
}

type fakeChecker struct {
	mu     sync.Mutex
	report dedup.Report
	err    error
	calls  int
	texts  []string
}

func (f *fakeChecker) Check(_ context.Context, _ string, _ []dedup.Hash, text string, _ *int64) (dedup.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, text)
	return f.report, f.err
}

type fakeEvents struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (f *fakeEvents) Publish(_ context.Context, msg protocol.Message) (relay.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return relay.Delivered, nil
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) Extract(context.Context, io.Reader, string) (ocr.Result, error) {
	return ocr.Result{Text: f.text, Confidence: 0.9}, f.err
}

func pngBytes(t *testing.T, seed int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*seed + y*8) % 256)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}
