package relayclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// Sender is the part of Conn the frame publisher needs.
type Sender interface {
	Send(ctx context.Context, m protocol.Message) error
}

// FramePublisher sends camera preview frames at most once per interval.
// Only the newest offered frame is kept; older unsent frames are replaced.
type FramePublisher struct {
	sender  Sender
	limiter *rate.Limiter

	mu     sync.Mutex
	latest *protocol.CameraFrame
	wake   chan struct{}

	sent     atomic.Int64
	replaced atomic.Int64
}

func NewFramePublisher(s Sender, interval time.Duration) *FramePublisher {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &FramePublisher{
		sender:  s,
		limiter: rate.NewLimiter(limit, 1),
		wake:    make(chan struct{}, 1),
	}
}

// Offer queues f, replacing any frame not yet sent. It never blocks.
func (p *FramePublisher) Offer(f protocol.CameraFrame) {
	p.mu.Lock()
	if p.latest != nil {
		p.replaced.Add(1)
	}
	p.latest = &f
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *FramePublisher) take() *protocol.CameraFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.latest
	p.latest = nil
	return f
}

// Run sends frames until ctx is done or a send fails.
func (p *FramePublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		f := p.take()
		if f == nil {
			continue
		}
		if err := p.sender.Send(ctx, *f); err != nil {
			return err
		}
		p.sent.Add(1)
	}
}

// Sent returns the number of frames written.
func (p *FramePublisher) Sent() int64 { return p.sent.Load() }

// Replaced returns the number of frames superseded before they were sent.
func (p *FramePublisher) Replaced() int64 { return p.replaced.Load() }
