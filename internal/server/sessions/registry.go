// Package sessions tracks capture sessions: the short-lived tokens binding a
// mobile uploader to a waiting desktop.
//
// Status only moves forward (pending → live → complete, or → expired). Each
// session is guarded by its own mutex, so mutations of one session are
// serialized while different sessions proceed independently. Completion
// work runs outside that mutex so readers never wait on it. Expiry is
// enforced lazily on every access and sessions are dropped by Sweep once
// their grace period has passed as well.
package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// Session is a snapshot of a capture session.
type Session struct {
	ID        string
	DocType   protocol.DocType
	Status    protocol.SessionStatus
	CreatedAt time.Time
	ExpiresAt time.Time
	// Result is set once the session is complete.
	Result *Result
}

// Result is what a completed session hands to the desktop.
type Result struct {
	DocumentID        *int64
	ObjectKeys        []string
	ImageURLs         []string
	Title             string
	UploadedBy        string
	DeferredToDesktop bool
	CompletedAt       time.Time
}

func (s Session) clone() Session {
	if s.Result != nil {
		res := *s.Result
		res.ObjectKeys = append([]string(nil), res.ObjectKeys...)
		res.ImageURLs = append([]string(nil), res.ImageURLs...)
		s.Result = &res
	}
	return s
}

type entry struct {
	// complete serializes Complete calls and is held while fn runs.
	complete sync.Mutex

	mu         sync.Mutex
	s          Session
	completing bool
}

// Registry is an in-memory session store safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl    time.Duration
	grace  time.Duration
	now    func() time.Time
	newID  func() (string, error)
	logger logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithGrace sets how long an expired session stays visible (as expired)
// before Sweep removes it.
func WithGrace(d time.Duration) Option {
	return func(r *Registry) { r.grace = d }
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithIDGenerator replaces the random token source.
func WithIDGenerator(f func() (string, error)) Option {
	return func(r *Registry) { r.newID = f }
}

// NewRegistry creates an empty registry whose sessions live for ttl.
func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
		newID:   func() (string, error) { return common.MakeRandHexString(common.SessionIDBytes) },
		logger:  logging.Nop{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create starts a pending session for docType.
func (r *Registry) Create(docType protocol.DocType) (Session, error) {
	if !docType.Valid() {
		return Session{}, fmt.Errorf("%w: unknown doc_type %q", common.ErrInvalidRequest, docType)
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		var err error
		id, err = r.newID()
		if err != nil {
			return Session{}, fmt.Errorf("session id: %w", err)
		}
		if _, taken := r.entries[id]; !taken {
			break
		}
	}

	e := &entry{s: Session{
		ID:        id,
		DocType:   docType,
		Status:    protocol.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}}
	r.entries[id] = e

	r.logger.Info(context.Background(), "session created", "session_id", id, "doc_type", docType)
	return e.s, nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	if !protocol.ValidSessionID(id) {
		return nil, common.ErrNotFound
	}
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, common.ErrNotFound
	}
	return e, nil
}

// expireLocked applies lazy expiry. Completed sessions keep their result
// until swept, and a session whose completion is in flight does not lapse
// under it. Caller holds e.mu.
func (r *Registry) expireLocked(e *entry) {
	if e.s.Status.Terminal() || e.completing {
		return
	}
	if !r.now().Before(e.s.ExpiresAt) {
		e.s.Status = protocol.StatusExpired
	}
}

// Get returns a snapshot of the session. Unknown or malformed ids yield
// common.ErrNotFound; a lapsed session yields the snapshot with status
// expired together with common.ErrExpired.
func (r *Registry) Get(id string) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.expireLocked(e)

	if e.s.Status == protocol.StatusExpired {
		return e.s.clone(), common.ErrExpired
	}
	return e.s.clone(), nil
}

// MarkLive records that the mobile device is streaming. It is a no-op on a
// live session and rejected on a terminal one.
func (r *Registry) MarkLive(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.expireLocked(e)

	switch e.s.Status {
	case protocol.StatusLive:
		return nil
	case protocol.StatusExpired:
		return common.ErrExpired
	}
	return advanceLocked(e, protocol.StatusLive)
}

// advanceLocked moves e to status, refusing anything that is not forward
// motion. Caller holds e.mu.
func advanceLocked(e *entry, status protocol.SessionStatus) error {
	if status.Rank() <= e.s.Status.Rank() {
		return fmt.Errorf("%w: session is %s", common.ErrVersionConflict, e.s.Status)
	}
	e.s.Status = status
	return nil
}

// Complete runs fn at most once per session. If the session is already
// complete the stored snapshot is returned with already set and fn is not
// called. If fn fails the session is left unchanged.
//
// Concurrent Complete calls for one session wait for each other, but Get and
// MarkLive do not wait for fn. While fn runs the session does not expire.
// fn must not call Complete for the same id.
func (r *Registry) Complete(id string, fn func(Session) (Result, error)) (s Session, already bool, err error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, false, err
	}

	e.complete.Lock()
	defer e.complete.Unlock()

	e.mu.Lock()
	r.expireLocked(e)
	switch e.s.Status {
	case protocol.StatusComplete:
		defer e.mu.Unlock()
		return e.s.clone(), true, nil
	case protocol.StatusExpired:
		defer e.mu.Unlock()
		return e.s.clone(), false, common.ErrExpired
	}
	e.completing = true
	snap := e.s.clone()
	e.mu.Unlock()

	res, fnErr := fn(snap)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.completing = false
	if fnErr != nil {
		return e.s.clone(), false, fnErr
	}
	if err := advanceLocked(e, protocol.StatusComplete); err != nil {
		return e.s.clone(), false, err
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = r.now()
	}
	e.s.Result = &res

	r.logger.Info(context.Background(), "session complete", "session_id", id, "objects", len(res.ObjectKeys))
	return e.s.clone(), false, nil
}

// MarkComplete stores result and moves the session to complete.
func (r *Registry) MarkComplete(id string, result Result) (Session, bool, error) {
	return r.Complete(id, func(Session) (Result, error) { return result, nil })
}

// Sweep drops sessions whose expiry plus grace has passed and returns how
// many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.grace)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.entries {
		e.mu.Lock()
		stale := !e.completing && !cutoff.Before(e.s.ExpiresAt)
		e.mu.Unlock()
		if stale {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked sessions, swept or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug(ctx, "sessions swept", "removed", n)
			}
		}
	}
}

// CompletionEvent renders a complete session as the relay's terminal event.
// ok is false while the session is not complete.
func (s Session) CompletionEvent() (msg protocol.UploadComplete, ok bool) {
	if s.Status != protocol.StatusComplete || s.Result == nil {
		return protocol.UploadComplete{}, false
	}
	return protocol.UploadComplete{
		SessionID:         s.ID,
		DocType:           string(s.DocType),
		Title:             s.Result.Title,
		UploadedBy:        s.Result.UploadedBy,
		ResultID:          s.Result.DocumentID,
		ObjectKeys:        s.Result.ObjectKeys,
		ImageURLs:         s.Result.ImageURLs,
		DeferredToDesktop: s.Result.DeferredToDesktop,
	}, true
}
