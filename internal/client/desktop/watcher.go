// Package desktop waits on the desktop side for a capture session to finish.
//
// Two paths watch the same session: a relay subscription (push) and a
// status poller (pull). Whichever observes completion first delivers the
// outcome; the other path's observation is dropped. Relay trouble is never
// fatal because polling alone is enough, only slower.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/relayclient"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// Paths an outcome can arrive on.
const (
	ViaRelay = "relay"
	ViaPoll  = "poll"
)

// Poller reads session status from the capture server.
type Poller interface {
	CheckSession(ctx context.Context, sessionID string) (protocol.StatusResponse, error)
}

// RelayConn is one relay connection.
type RelayConn interface {
	Subscribe(ctx context.Context, sessionID string, docType protocol.DocType) error
	Messages() <-chan protocol.Message
	Err() error
	Close() error
}

// Dialer opens relay connections.
type Dialer func(ctx context.Context) (RelayConn, error)

// RelayDialer dials the relay at endpoint.
func RelayDialer(endpoint string, logger logging.Logger) Dialer {
	return func(ctx context.Context) (RelayConn, error) {
		c, err := relayclient.Dial(ctx, endpoint, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Outcome is a completed session as the desktop applies it.
type Outcome struct {
	SessionID         string
	ResultID          *int64
	ObjectKeys        []string
	ImageURLs         []string
	DeferredToDesktop bool
	Title             string
	UploadedBy        string
	Via               string
}

type Config struct {
	PollInterval    time.Duration
	ResubscribeBase time.Duration
	ResubscribeMax  time.Duration
}

type Watcher struct {
	poller Poller
	dial   Dialer
	cfg    Config
	logger logging.Logger

	// OnFrame and OnCamera receive live previews. Optional.
	OnFrame  func(protocol.CameraFrame)
	OnCamera func(protocol.CameraStatus)
}

// NewWatcher builds a watcher. dial may be nil to poll only.
func NewWatcher(poller Poller, dial Dialer, cfg Config, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Nop{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ResubscribeBase <= 0 {
		cfg.ResubscribeBase = 500 * time.Millisecond
	}
	if cfg.ResubscribeMax <= 0 {
		cfg.ResubscribeMax = 15 * time.Second
	}
	return &Watcher{
		poller: poller,
		dial:   dial,
		cfg:    cfg,
		logger: logger.With("module", "desktop"),
	}
}

// Wait blocks until the session completes, expires or ctx ends. apply runs
// exactly once, for the first path that sees completion. An expired or
// unknown session returns an error wrapping common.ErrExpired, the cue for
// the manual entry flow.
func (w *Watcher) Wait(ctx context.Context, sessionID string, docType protocol.DocType, apply func(Outcome)) (Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		won    atomic.Bool
		result = make(chan Outcome, 1)
	)
	deliver := func(o Outcome) bool {
		if !won.CompareAndSwap(false, true) {
			w.logger.Debug(ctx, "completion already applied", "session_id", sessionID, "via", o.Via)
			return false
		}
		if apply != nil {
			apply(o)
		}
		result <- o
		cancel()
		return true
	}

	g, gctx := errgroup.WithContext(ctx)
	if w.dial != nil {
		g.Go(func() error {
			w.relayLoop(gctx, sessionID, docType, deliver)
			return nil
		})
	}
	g.Go(func() error {
		return w.pollLoop(gctx, sessionID, deliver)
	})
	err := g.Wait()

	select {
	case o := <-result:
		return o, nil
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return Outcome{}, err
	}
	return Outcome{}, context.Cause(ctx)
}

func (w *Watcher) pollLoop(ctx context.Context, sessionID string, deliver func(Outcome) bool) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		resp, err := w.poller.CheckSession(ctx, sessionID)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrExpired):
			return fmt.Errorf("%w: session %s", common.ErrExpired, sessionID)
		case err != nil:
			w.logger.Debug(ctx, "status poll failed", "session_id", sessionID, "error", err)
		case resp.Status == protocol.StatusExpired:
			return fmt.Errorf("%w: session %s", common.ErrExpired, sessionID)
		case resp.Status == protocol.StatusComplete:
			deliver(Outcome{
				SessionID:         sessionID,
				ResultID:          resp.ResultID,
				ObjectKeys:        resp.ObjectKeys,
				ImageURLs:         resp.ImageURLs,
				DeferredToDesktop: resp.DeferredToDesktop,
				Title:             resp.Title,
				UploadedBy:        resp.UploadedBy,
				Via:               ViaPoll,
			})
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// errRelayDone stops resubscription: the relay has nothing more to offer.
var errRelayDone = errors.New("relay done")

func (w *Watcher) relayLoop(ctx context.Context, sessionID string, docType protocol.DocType, deliver func(Outcome) bool) {
	b := retry.NewExponential(w.cfg.ResubscribeBase)
	b = retry.WithCappedDuration(w.cfg.ResubscribeMax, b)
	b = retry.WithJitterPercent(20, b)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := w.watchRelay(ctx, sessionID, docType, deliver)
		if errors.Is(err, errRelayDone) || ctx.Err() != nil {
			return err
		}
		w.logger.Debug(ctx, "relay lost, resubscribing", "session_id", sessionID, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil && !errors.Is(err, errRelayDone) && ctx.Err() == nil {
		w.logger.Warn(ctx, "relay given up, polling only", "session_id", sessionID, "error", err)
	}
}

func (w *Watcher) watchRelay(ctx context.Context, sessionID string, docType protocol.DocType, deliver func(Outcome) bool) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Subscribe(ctx, sessionID, docType); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-conn.Messages():
			if !ok {
				if err := conn.Err(); err != nil {
					return err
				}
				return fmt.Errorf("%w: connection closed", common.ErrRelayUnavailable)
			}
			if done := w.handle(ctx, sessionID, m, deliver); done {
				return errRelayDone
			}
		}
	}
}

// handle reports whether the relay path is finished.
func (w *Watcher) handle(ctx context.Context, sessionID string, m protocol.Message, deliver func(Outcome) bool) bool {
	if m.Session() != "" && m.Session() != sessionID {
		return false
	}
	switch v := m.(type) {
	case protocol.Subscribed:
		w.logger.Debug(ctx, "relay subscribed", "session_id", sessionID, "status", v.Status)
	case protocol.CameraFrame:
		if w.OnFrame != nil {
			w.OnFrame(v)
		}
	case protocol.CameraStatus:
		if w.OnCamera != nil {
			w.OnCamera(v)
		}
	case protocol.UploadComplete:
		deliver(Outcome{
			SessionID:         sessionID,
			ResultID:          v.ResultID,
			ObjectKeys:        v.ObjectKeys,
			ImageURLs:         v.ImageURLs,
			DeferredToDesktop: v.DeferredToDesktop,
			Title:             v.Title,
			UploadedBy:        v.UploadedBy,
			Via:               ViaRelay,
		})
		return true
	case protocol.Notice:
		// The session is gone or another desktop took over; the poller
		// decides what happens next.
		w.logger.Info(ctx, "relay notice", "session_id", sessionID, "error", v.Error)
		return true
	}
	return false
}
