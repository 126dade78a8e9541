// Package orchestrator drives the mobile side of a capture: one upload
// intent and one direct-to-storage PUT per file, then a single confirmation.
//
// Each file moves through an explicit state machine (see State). Files of a
// batch run concurrently and fail independently; the batch fails only when
// every file failed, and even then the entered metadata is kept so the
// operator can pick files again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/netx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// intentSkew is how close to its expiry an intent is treated as lapsed.
const intentSkew = 5 * time.Second

// API is the part of the capture server client the orchestrator uses.
type API interface {
	Presign(ctx context.Context, req protocol.PresignRequest) (protocol.PresignResponse, error)
	Upload(ctx context.Context, intent protocol.PresignResponse, data []byte) error
	Confirm(ctx context.Context, req protocol.ConfirmRequest) (protocol.ConfirmResponse, error)
}

// Publisher sends relay messages. Optional.
type Publisher interface {
	Send(ctx context.Context, m protocol.Message) error
}

// File is one selected image.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Metadata is what the operator typed on the mobile device.
type Metadata struct {
	Title                string
	UploadedBy           string
	Content              string
	DeferToDesktop       bool
	AllowDuplicateImages bool
}

type Config struct {
	// IntentRetries is the number of extra presign attempts after a
	// transient failure.
	IntentRetries int
	// UploadRetries is the number of extra PUT attempts after a transient
	// failure. 4xx answers from storage are never retried.
	UploadRetries int
	// Parallelism bounds concurrent files. Values below one mean one.
	Parallelism int
	// Backoff is the base of the exponential retry delay.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// FileResult is a snapshot of one file's progress.
type FileResult struct {
	Name      string
	State     State
	ObjectKey string
	Attempts  int
	Err       error
}

// Batch summarizes one Run.
type Batch struct {
	// Keys of uploaded files in selection order.
	Keys  []string
	Files []FileResult
	// Errs aggregates the failures of individual files.
	Errs error
}

type task struct {
	file     File
	state    State
	intent   protocol.PresignResponse
	attempts int
	err      error
}

type Orchestrator struct {
	api       API
	relay     Publisher
	docType   protocol.DocType
	sessionID string
	cfg       Config
	logger    logging.Logger
	now       func() time.Time

	mu    sync.Mutex
	meta  Metadata
	tasks []*task
}

// New builds an orchestrator for one document type. sessionID may be empty
// for a detached upload that no desktop waits for.
func New(api API, docType protocol.DocType, sessionID string, cfg Config, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop{}
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Orchestrator{
		api:       api,
		docType:   docType,
		sessionID: sessionID,
		cfg:       cfg,
		logger:    logger.With("module", "orchestrator", "session_id", sessionID),
		now:       time.Now,
	}
}

// SetRelay attaches the relay used to announce completion.
func (o *Orchestrator) SetRelay(p Publisher) { o.relay = p }

func (o *Orchestrator) SetMetadata(m Metadata) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.meta = m
}

func (o *Orchestrator) Metadata() Metadata {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.meta
}

// Select replaces the current file selection.
func (o *Orchestrator) Select(files ...File) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks = make([]*task, 0, len(files))
	for _, f := range files {
		o.tasks = append(o.tasks, &task{file: f, state: NeedsIntent})
	}
}

// Reset returns to file selection. Metadata is kept.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks = nil
}

// Files returns the progress of every selected file.
func (o *Orchestrator) Files() []FileResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() []FileResult {
	out := make([]FileResult, len(o.tasks))
	for i, t := range o.tasks {
		out[i] = FileResult{
			Name:     t.file.Name,
			State:    t.state,
			Attempts: t.attempts,
			Err:      t.err,
		}
		if t.state == Uploaded {
			out[i].ObjectKey = t.intent.ObjectKey
		}
	}
	return out
}

// Run uploads every selected file that is not uploaded yet. Failed files of
// an earlier Run are tried again. The error wraps common.ErrAllFilesFailed
// when no file is uploaded.
func (o *Orchestrator) Run(ctx context.Context) (Batch, error) {
	o.mu.Lock()
	tasks := append([]*task(nil), o.tasks...)
	o.mu.Unlock()

	if len(tasks) == 0 {
		return Batch{}, fmt.Errorf("%w: no files selected", common.ErrInvalidRequest)
	}

	var (
		errMu sync.Mutex
		errs  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)
	for _, t := range tasks {
		if o.stateOf(t) == Uploaded {
			continue
		}
		g.Go(func() error {
			if err := o.process(gctx, t); err != nil {
				errMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", t.file.Name, err))
				errMu.Unlock()
			}
			// Failures stay with their file.
			return nil
		})
	}
	_ = g.Wait()

	o.mu.Lock()
	b := Batch{Files: o.snapshotLocked(), Errs: errs}
	o.mu.Unlock()
	for _, f := range b.Files {
		if f.State == Uploaded {
			b.Keys = append(b.Keys, f.ObjectKey)
		}
	}

	if ctx.Err() != nil {
		return b, ctx.Err()
	}
	if len(b.Keys) == 0 {
		return b, fmt.Errorf("%w: %w", common.ErrAllFilesFailed, errs)
	}
	if errs != nil {
		o.logger.Warn(ctx, "some files failed", "uploaded", len(b.Keys), "failed", len(multierr.Errors(errs)))
	}
	return b, nil
}

func (o *Orchestrator) process(ctx context.Context, t *task) error {
	if o.stateOf(t) == Failed {
		if err := o.move(t, NeedsIntent); err != nil {
			return err
		}
	}
	if err := o.obtainIntent(ctx, t); err != nil {
		return o.fail(t, err)
	}

	err := retry.Do(ctx, o.backoff(o.cfg.UploadRetries), func(ctx context.Context) error {
		if o.intentLapsed(t) {
			o.logger.Debug(ctx, "intent lapsed, requesting a fresh one", "file", t.file.Name)
			if err := o.move(t, NeedsIntent); err != nil {
				return err
			}
			if err := o.obtainIntent(ctx, t); err != nil {
				return err
			}
		}

		o.mu.Lock()
		t.attempts++
		attempt, intent := t.attempts, t.intent
		o.mu.Unlock()

		err := o.api.Upload(ctx, intent, t.file.Data)
		switch {
		case err == nil:
			return nil
		case attempt > 1 && errors.Is(err, common.ErrAlreadyUsed):
			// An earlier attempt landed but its answer was lost.
			o.logger.Debug(ctx, "object already stored by previous attempt", "file", t.file.Name, "key", intent.ObjectKey)
			return nil
		case netx.IsTransient(err):
			o.logger.Debug(ctx, "upload attempt failed", "file", t.file.Name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		default:
			return err
		}
	})
	if err != nil {
		return o.fail(t, err)
	}

	if err := o.move(t, Uploaded); err != nil {
		return err
	}
	o.logger.Info(ctx, "file uploaded", "file", t.file.Name, "key", t.intent.ObjectKey)
	return nil
}

func (o *Orchestrator) obtainIntent(ctx context.Context, t *task) error {
	if err := o.move(t, AwaitingIntent); err != nil {
		return err
	}

	req := protocol.PresignRequest{
		DocType:     string(o.docType),
		FileName:    t.file.Name,
		ContentType: t.file.ContentType,
		SessionID:   o.sessionID,
	}
	var intent protocol.PresignResponse
	err := retry.Do(ctx, o.backoff(o.cfg.IntentRetries), func(ctx context.Context) error {
		var err error
		intent, err = o.api.Presign(ctx, req)
		if netx.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	t.intent = intent
	o.mu.Unlock()
	return o.move(t, Uploading)
}

func (o *Orchestrator) intentLapsed(t *task) bool {
	o.mu.Lock()
	exp := t.intent.ExpiresAt
	o.mu.Unlock()
	return !exp.IsZero() && !o.now().Before(exp.Add(-intentSkew))
}

func (o *Orchestrator) backoff(retries int) retry.Backoff {
	if retries < 0 {
		retries = 0
	}
	b := retry.NewExponential(o.cfg.Backoff)
	b = retry.WithCappedDuration(o.cfg.MaxBackoff, b)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(uint64(retries), b)
}

func (o *Orchestrator) stateOf(t *task) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return t.state
}

func (o *Orchestrator) move(t *task, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	next, err := transition(t.state, to)
	if err != nil {
		return err
	}
	t.state = next
	if next != Failed {
		t.err = nil
	}
	return nil
}

func (o *Orchestrator) fail(t *task, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if next, err := transition(t.state, Failed); err == nil {
		t.state = next
	}
	t.err = cause
	return cause
}

// Submit uploads the selection, confirms it and announces completion on the
// relay. A duplicate verdict comes back as the server's response together
// with an error wrapping common.ErrDuplicate. Relay failures are logged and
// otherwise ignored: the desktop's poller sees the same completion.
func (o *Orchestrator) Submit(ctx context.Context) (protocol.ConfirmResponse, Batch, error) {
	batch, err := o.Run(ctx)
	if err != nil {
		return protocol.ConfirmResponse{}, batch, err
	}

	meta := o.Metadata()
	req := protocol.ConfirmRequest{
		DocType:              string(o.docType),
		ObjectKeys:           batch.Keys,
		SessionID:            o.sessionID,
		DeferToDesktop:       meta.DeferToDesktop,
		Title:                meta.Title,
		UploadedBy:           meta.UploadedBy,
		Content:              meta.Content,
		AllowDuplicateImages: meta.AllowDuplicateImages,
	}

	// Confirmation is idempotent server side, so transient failures retry.
	var resp protocol.ConfirmResponse
	err = retry.Do(ctx, o.backoff(o.cfg.IntentRetries), func(ctx context.Context) error {
		var err error
		resp, err = o.api.Confirm(ctx, req)
		if netx.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return resp, batch, err
	}
	o.logger.Info(ctx, "upload confirmed", "objects", len(batch.Keys), "deferred", resp.DeferredToDesktop)

	o.announce(ctx, resp)
	return resp, batch, nil
}

func (o *Orchestrator) announce(ctx context.Context, resp protocol.ConfirmResponse) {
	if o.relay == nil || o.sessionID == "" || len(resp.ObjectKeys) == 0 {
		return
	}
	meta := o.Metadata()
	err := o.relay.Send(ctx, protocol.UploadComplete{
		SessionID:         o.sessionID,
		DocType:           string(o.docType),
		Title:             meta.Title,
		UploadedBy:        meta.UploadedBy,
		ResultID:          resp.ID,
		ObjectKeys:        resp.ObjectKeys,
		ImageURLs:         resp.ImageURLs,
		DeferredToDesktop: resp.DeferredToDesktop,
	})
	if err != nil {
		o.logger.Warn(ctx, "relay announce failed, desktop will poll", "error", err)
	}
}
