package relayclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []protocol.CameraFrame
	err  error
}

func (s *recordingSender) Send(_ context.Context, m protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m.(protocol.CameraFrame))
	return nil
}

func (s *recordingSender) frames() []protocol.CameraFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.CameraFrame(nil), s.sent...)
}

func frame(ts int64) protocol.CameraFrame {
	return protocol.CameraFrame{SessionID: "0123456789abcdef0123456789abcdef", DocType: "minutes", FrameData: "x", TS: ts}
}

func TestFramePublisher_KeepsOnlyLatest(t *testing.T) {
	s := &recordingSender{}
	p := NewFramePublisher(s, 50*time.Millisecond)

	for i := int64(1); i <= 10; i++ {
		p.Offer(frame(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.frames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(10), s.frames()[0].TS)
	assert.Equal(t, int64(9), p.Replaced())

	p.Offer(frame(11))
	p.Offer(frame(12))
	require.Eventually(t, func() bool { return len(s.frames()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(12), s.frames()[1].TS)
	assert.Equal(t, int64(2), p.Sent())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFramePublisher_RespectsInterval(t *testing.T) {
	s := &recordingSender{}
	p := NewFramePublisher(s, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	start := time.Now()
	p.Offer(frame(1))
	require.Eventually(t, func() bool { return len(s.frames()) == 1 }, time.Second, time.Millisecond)
	p.Offer(frame(2))
	require.Eventually(t, func() bool { return len(s.frames()) == 2 }, time.Second, time.Millisecond)

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestFramePublisher_StopsOnSendError(t *testing.T) {
	boom := errors.New("relay gone")
	p := NewFramePublisher(&recordingSender{err: boom}, 0)
	p.Offer(frame(1))

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}
