// Package relay moves camera previews and completion events from a mobile
// device to the desktop waiting on the same capture session.
//
// The Hub routes by session id and performs no business logic. Every
// connection owns a Peer with two bounded outboxes: preview frames are
// dropped when the frame outbox is full, control messages are queued and a
// peer whose control outbox overflows is evicted. Nothing a slow peer does
// can block a publisher or another session.
package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// Outbox capacities per peer.
const (
	FrameBuffer   = 2
	ControlBuffer = 8
)

// Delivery is the outcome of a Publish.
type Delivery int

const (
	// Delivered means the message was queued for the subscriber.
	Delivered Delivery = iota
	// NoSubscriber means nobody watches the session.
	NoSubscriber
	// FrameDropped means the subscriber's frame outbox was full.
	FrameDropped
	// Evicted means the subscriber's control outbox was full and it was dropped.
	Evicted
)

func (d Delivery) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case NoSubscriber:
		return "no_subscriber"
	case FrameDropped:
		return "frame_dropped"
	case Evicted:
		return "evicted"
	}
	return "unknown"
}

var peerSeq atomic.Uint64

// Peer is the outbound side of one relay connection.
type Peer struct {
	id      uint64
	frames  chan []byte
	control chan []byte
	done    chan struct{}
	once    sync.Once

	// sessions this peer subscribes to; guarded by Hub.mu.
	sessions map[string]struct{}

	dropped atomic.Int64
}

// NewPeer allocates a peer with empty outboxes.
func NewPeer() *Peer {
	return &Peer{
		id:       peerSeq.Add(1),
		frames:   make(chan []byte, FrameBuffer),
		control:  make(chan []byte, ControlBuffer),
		done:     make(chan struct{}),
		sessions: make(map[string]struct{}),
	}
}

// Frames yields queued preview frames.
func (p *Peer) Frames() <-chan []byte { return p.frames }

// Control yields queued control messages.
func (p *Peer) Control() <-chan []byte { return p.control }

// Done is closed once the peer is closed or evicted.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Close marks the peer finished. Safe to call more than once.
func (p *Peer) Close() { p.once.Do(func() { close(p.done) }) }

// Dropped counts preview frames discarded for this peer.
func (p *Peer) Dropped() int64 { return p.dropped.Load() }

func (p *Peer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// offerFrame never blocks; the newest frame is discarded when full.
func (p *Peer) offerFrame(b []byte) bool {
	select {
	case p.frames <- b:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

func (p *Peer) offerControl(b []byte) bool {
	select {
	case p.control <- b:
		return true
	default:
		return false
	}
}

// Hub is the session-scoped subscriber table. Each session has at most one
// subscriber; a newer subscription replaces the older one.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Peer
	logger logging.Logger
}

// NewHub returns an empty hub.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Hub{subs: make(map[string]*Peer), logger: logger}
}

// Subscribe makes p the subscriber of sessionID and returns the peer it
// replaced, if any.
func (h *Hub) Subscribe(sessionID string, p *Peer) (replaced *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.subs[sessionID]; ok && old != p {
		delete(old.sessions, sessionID)
		replaced = old
	}
	h.subs[sessionID] = p
	p.sessions[sessionID] = struct{}{}
	return replaced
}

// Unsubscribe removes p from sessionID if it is still the subscriber.
func (h *Hub) Unsubscribe(sessionID string, p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(sessionID, p)
}

func (h *Hub) unsubscribeLocked(sessionID string, p *Peer) {
	if cur, ok := h.subs[sessionID]; ok && cur == p {
		delete(h.subs, sessionID)
	}
	delete(p.sessions, sessionID)
}

// Detach removes every subscription held by p. Called when its connection ends.
func (h *Hub) Detach(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range p.sessions {
		h.unsubscribeLocked(id, p)
	}
}

// Subscriber returns the current subscriber of sessionID.
func (h *Hub) Subscriber(sessionID string) (*Peer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.subs[sessionID]
	return p, ok
}

// Sessions returns the number of sessions with a subscriber.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish routes msg to the subscriber of its session. It never blocks.
func (h *Hub) Publish(ctx context.Context, msg protocol.Message) (Delivery, error) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return NoSubscriber, err
	}
	return h.publishRaw(ctx, msg.Session(), msg.Kind(), data), nil
}

func (h *Hub) publishRaw(ctx context.Context, sessionID string, kind protocol.Action, data []byte) Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.subs[sessionID]
	if !ok {
		return NoSubscriber
	}
	if p.closed() {
		h.unsubscribeLocked(sessionID, p)
		return NoSubscriber
	}

	if kind == protocol.ActionCameraFrame {
		if !p.offerFrame(data) {
			h.logger.Debug(ctx, "frame dropped", "session_id", sessionID, "peer", p.id)
			return FrameDropped
		}
		return Delivered
	}

	if !p.offerControl(data) {
		for id := range p.sessions {
			h.unsubscribeLocked(id, p)
		}
		p.Close()
		h.logger.Warn(ctx, "subscriber evicted", "session_id", sessionID, "peer", p.id)
		return Evicted
	}
	return Delivered
}

// Send queues msg on p directly, bypassing routing. Used for replies to the
// sender of a message. It reports false when p's control outbox is full.
func Send(p *Peer, msg protocol.Message) bool {
	data, err := protocol.Encode(msg)
	if err != nil {
		return false
	}
	return p.offerControl(data)
}
