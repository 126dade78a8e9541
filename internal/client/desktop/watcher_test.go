package desktop

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/relay"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/sessions"
)

const sessionID = "0123456789abcdef0123456789abcdef"

type pollFunc func(n int) (protocol.StatusResponse, error)

type fakePoller struct {
	calls atomic.Int32
	fn    pollFunc
}

func (p *fakePoller) CheckSession(ctx context.Context, id string) (protocol.StatusResponse, error) {
	n := int(p.calls.Add(1))
	return p.fn(n)
}

func pending(int) (protocol.StatusResponse, error) {
	return protocol.StatusResponse{Success: true, Status: protocol.StatusPending}, nil
}

type fakeConn struct {
	msgs      chan protocol.Message
	subscribe error
	closed    atomic.Bool
}

func newFakeConn(msgs ...protocol.Message) *fakeConn {
	c := &fakeConn{msgs: make(chan protocol.Message, len(msgs)+1)}
	for _, m := range msgs {
		c.msgs <- m
	}
	return c
}

func (c *fakeConn) Subscribe(context.Context, string, protocol.DocType) error { return c.subscribe }
func (c *fakeConn) Messages() <-chan protocol.Message                       { return c.msgs }
func (c *fakeConn) Err() error                                              { return common.ErrRelayUnavailable }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// dialSeq hands out conns in order, then fails.
type dialSeq struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *dialSeq) dial(context.Context) (RelayConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, fmt.Errorf("%w: refused", common.ErrRelayUnavailable)
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *dialSeq) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func fastConfig() Config {
	return Config{PollInterval: 10 * time.Millisecond, ResubscribeBase: time.Millisecond, ResubscribeMax: 5 * time.Millisecond}
}

func completeMsg(id int64) protocol.UploadComplete {
	return protocol.UploadComplete{SessionID: sessionID, DocType: "minutes", ResultID: &id, ObjectKeys: []string{"minutes/2026/10/a.jpg"}}
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWait_RelayDelivers(t *testing.T) {
	conn := newFakeConn(protocol.Subscribed{SessionID: sessionID, Status: protocol.StatusPending}, completeMsg(5))
	d := &dialSeq{conns: []*fakeConn{conn}}
	w := NewWatcher(&fakePoller{fn: pending}, d.dial, fastConfig(), nil)

	var applied atomic.Int32
	out, err := w.Wait(waitCtx(t), sessionID, protocol.DocMinutes, func(Outcome) { applied.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, ViaRelay, out.Via)
	assert.Equal(t, int64(5), *out.ResultID)
	assert.Equal(t, int32(1), applied.Load())
	assert.True(t, conn.closed.Load())
}

func TestWait_PollFallbackWhenRelayDown(t *testing.T) {
	d := &dialSeq{}
	id := int64(8)
	p := &fakePoller{fn: func(n int) (protocol.StatusResponse, error) {
		if n < 3 {
			return pending(n)
		}
		return protocol.StatusResponse{Success: true, Status: protocol.StatusComplete, ResultID: &id, ObjectKeys: []string{"minutes/2026/10/b.png"}}, nil
	}}
	w := NewWatcher(p, d.dial, fastConfig(), nil)

	out, err := w.Wait(waitCtx(t), sessionID, protocol.DocMinutes, nil)
	require.NoError(t, err)
	assert.Equal(t, ViaPoll, out.Via)
	assert.Equal(t, []string{"minutes/2026/10/b.png"}, out.ObjectKeys)
	assert.GreaterOrEqual(t, d.count(), 1)
}

func TestWait_BothPathsApplyOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := int64(11)
		conn := newFakeConn(completeMsg(id))
		d := &dialSeq{conns: []*fakeConn{conn}}
		p := &fakePoller{fn: func(int) (protocol.StatusResponse, error) {
			return protocol.StatusResponse{Success: true, Status: protocol.StatusComplete, ResultID: &id}, nil
		}}
		w := NewWatcher(p, d.dial, fastConfig(), nil)

		var applied atomic.Int32
		_, err := w.Wait(waitCtx(t), sessionID, protocol.DocMinutes, func(Outcome) { applied.Add(1) })
		require.NoError(t, err)
		require.Equal(t, int32(1), applied.Load())
	}
}

func TestWait_Resubscribes(t *testing.T) {
	first := newFakeConn()
	close(first.msgs)
	second := newFakeConn(completeMsg(3))
	d := &dialSeq{conns: []*fakeConn{first, second}}
	w := NewWatcher(&fakePoller{fn: pending}, d.dial, fastConfig(), nil)

	out, err := w.Wait(waitCtx(t), sessionID, protocol.DocMinutes, nil)
	require.NoError(t, err)
	assert.Equal(t, ViaRelay, out.Via)
	assert.Equal(t, 2, d.count())
}

func TestWait_Expired(t *testing.T) {
	tests := []struct {
		name string
		fn   pollFunc
	}{
		{"unknown session", func(int) (protocol.StatusResponse, error) {
			return protocol.StatusResponse{Status: protocol.StatusExpired}, fmt.Errorf("server responded 404: %w", common.ErrNotFound)
		}},
		{"expired status", func(int) (protocol.StatusResponse, error) {
			return protocol.StatusResponse{Success: true, Status: protocol.StatusExpired}, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWatcher(&fakePoller{fn: tt.fn}, (&dialSeq{}).dial, fastConfig(), nil)
			_, err := w.Wait(waitCtx(t), sessionID, protocol.DocMinutes, nil)
			assert.ErrorIs(t, err, common.ErrExpired)
		})
	}
}

func TestWait_TransientPollErrorsIgnored(t *testing.T) {
	id := int64(1)
	p := &fakePoller{fn: func(n int) (protocol.StatusResponse, error) {
		if n == 1 {
			return protocol.StatusResponse{}, fmt.Errorf("%w: timeout", common.ErrTransient)
		}
		return protocol.StatusResponse{Success: true, Status: protocol.StatusComplete, ResultID: &id}, nil
	}}
	w := NewWatcher(p, nil, fastConfig(), nil)

	out, err := w.Wait(waitCtx(t), sessionID, protocol.DocMinutes, nil)
	require.NoError(t, err)
	assert.Equal(t, ViaPoll, out.Via)
}

func TestWait_ForwardsPreviews(t *testing.T) {
	frame := protocol.CameraFrame{SessionID: sessionID, DocType: "minutes", FrameData: "x", Width: 2, Height: 2}
	other := protocol.CameraFrame{SessionID: strings.Repeat("f", 32), DocType: "minutes", FrameData: "y"}
	conn := newFakeConn(protocol.CameraStatus{SessionID: sessionID, DocType: "minutes", Status: protocol.CameraLive}, other, frame, completeMsg(2))
	d := &dialSeq{conns: []*fakeConn{conn}}
	w := NewWatcher(&fakePoller{fn: pending}, d.dial, fastConfig(), nil)

	var frames []protocol.CameraFrame
	var cams []string
	w.OnFrame = func(f protocol.CameraFrame) { frames = append(frames, f) }
	w.OnCamera = func(s protocol.CameraStatus) { cams = append(cams, s.Status) }

	_, err := w.Wait(waitCtx(t), sessionID, protocol.DocMinutes, nil)
	require.NoError(t, err)
	require.Len(t, frames, 1, "frames of other sessions ignored")
	assert.Equal(t, "x", frames[0].FrameData)
	assert.Equal(t, []string{protocol.CameraLive}, cams)
}

func TestWait_ContextCancelled(t *testing.T) {
	w := NewWatcher(&fakePoller{fn: pending}, nil, fastConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := w.Wait(ctx, sessionID, protocol.DocMinutes, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestWait_RealRelay(t *testing.T) {
	reg := sessions.NewRegistry(10 * time.Minute)
	hub := relay.NewHub(nil)
	srv := relay.NewServer(hub, reg, relay.ServerConfig{MaxFrameBytes: 1024}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer func() {
		srv.Close()
		ts.Close()
	}()

	sess, err := reg.Create(protocol.DocMinutes)
	require.NoError(t, err)

	w := NewWatcher(&fakePoller{fn: pending}, RelayDialer("ws"+strings.TrimPrefix(ts.URL, "http"), nil), Config{PollInterval: time.Second}, nil)

	go func() {
		for deadline := time.Now().Add(2 * time.Second); hub.Sessions() == 0 && time.Now().Before(deadline); {
			time.Sleep(5 * time.Millisecond)
		}
		id := int64(77)
		s, _, err := reg.MarkComplete(sess.ID, sessions.Result{DocumentID: &id, ObjectKeys: []string{"minutes/2026/10/c.jpg"}})
		if err == nil {
			ev, _ := s.CompletionEvent()
			_, _ = hub.Publish(context.Background(), ev)
		}
	}()

	out, err := w.Wait(waitCtx(t), sess.ID, protocol.DocMinutes, nil)
	require.NoError(t, err)
	assert.Equal(t, ViaRelay, out.Via)
	assert.Equal(t, int64(77), *out.ResultID)
}
