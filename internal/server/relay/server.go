package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/sessions"
)

const (
	writeTimeout = 10 * time.Second
	// flushTimeout bounds how long a closing peer may take to receive the
	// control messages still queued for it.
	flushTimeout = time.Second
)

// SessionStore is the registry view the relay needs.
type SessionStore interface {
	Get(id string) (sessions.Session, error)
	MarkLive(id string) error
}

// ServerConfig bounds what a single connection may send.
type ServerConfig struct {
	// MaxFrameBytes bounds frame_data of a camera frame.
	MaxFrameBytes int
	// FrameRate is the number of camera frames per second accepted from one
	// connection; excess frames are discarded. Zero disables the limit.
	FrameRate float64
}

// Server accepts relay connections over websocket. Mutating messages are
// checked against the session registry: nothing is forwarded for unknown,
// expired or completed sessions, and camera_status live marks the session
// live. Subscribing to an already complete session replays its
// upload_complete immediately.
type Server struct {
	hub      *Hub
	sessions SessionStore
	cfg      ServerConfig
	logger   logging.Logger

	mu    sync.Mutex
	peers map[*Peer]struct{}
}

// NewServer wires a relay server to hub and the session registry.
func NewServer(hub *Hub, store SessionStore, cfg ServerConfig, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Server{
		hub:      hub,
		sessions: store,
		cfg:      cfg,
		logger:   logger.With("module", "relay"),
		peers:    make(map[*Peer]struct{}),
	}
}

// Handler returns the websocket endpoint. Origins are not checked: the
// session id is the only credential a mobile browser presents.
func (s *Server) Handler() http.Handler {
	return websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   s.serve,
	}
}

// Close ends every open relay connection.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.peers {
		p.Close()
	}
}

// Connections returns the number of open relay connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) track(p *Peer, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.peers[p] = struct{}{}
	} else {
		delete(s.peers, p)
	}
}

func (s *Server) serve(ws *websocket.Conn) {
	ctx := ws.Request().Context()
	// frame_data is base64 text inside JSON; leave room for the envelope.
	ws.MaxPayloadBytes = s.cfg.MaxFrameBytes + 4096

	peer := NewPeer()
	s.track(peer, true)
	var limiter *rate.Limiter
	if s.cfg.FrameRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.FrameRate), 1)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ws, peer)
	}()

	defer func() {
		s.track(peer, false)
		s.hub.Detach(peer)
		peer.Close()
		_ = ws.Close()
		<-writerDone
	}()

	for {
		var data []byte
		if err := websocket.Message.Receive(ws, &data); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				Send(peer, protocol.Notice{Error: "message too large"})
				continue
			}
			return
		}
		select {
		case <-peer.Done():
			return
		default:
		}

		msg, err := protocol.Decode(data, s.cfg.MaxFrameBytes)
		if err != nil {
			s.logger.Debug(ctx, "rejected relay message", "error", err)
			Send(peer, protocol.Notice{Error: err.Error()})
			continue
		}
		s.dispatch(ctx, peer, limiter, msg)
	}
}

// writeLoop drains the peer's outboxes, control messages first. Once the
// peer is closed no more frames are written, but queued control messages
// (a replacement notice, a final upload_complete) are flushed before the
// connection closes.
func (s *Server) writeLoop(ws *websocket.Conn, p *Peer) {
	write := func(b []byte) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := websocket.Message.Send(ws, string(b)); err != nil {
			p.Close()
			_ = ws.Close()
			return false
		}
		return true
	}

	for {
		select {
		case b := <-p.control:
			if !write(b) {
				return
			}
			continue
		case <-p.done:
			flushControl(ws, p)
			_ = ws.Close()
			return
		default:
		}

		select {
		case b := <-p.control:
			if !write(b) {
				return
			}
		case b := <-p.frames:
			if !write(b) {
				return
			}
		case <-p.done:
			flushControl(ws, p)
			_ = ws.Close()
			return
		}
	}
}

func flushControl(ws *websocket.Conn, p *Peer) {
	_ = ws.SetWriteDeadline(time.Now().Add(flushTimeout))
	for {
		select {
		case b := <-p.control:
			if err := websocket.Message.Send(ws, string(b)); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, peer *Peer, limiter *rate.Limiter, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Subscribe:
		s.subscribe(ctx, peer, m)
	case protocol.CameraFrame:
		if limiter != nil && !limiter.Allow() {
			return
		}
		if _, err := s.open(m.SessionID, m.DocType); err != nil {
			s.reject(peer, m.SessionID, err)
			return
		}
		_, _ = s.hub.Publish(ctx, m)
	case protocol.CameraStatus:
		if _, err := s.open(m.SessionID, m.DocType); err != nil {
			s.reject(peer, m.SessionID, err)
			return
		}
		if m.Status == protocol.CameraLive {
			if err := s.sessions.MarkLive(m.SessionID); err != nil {
				s.reject(peer, m.SessionID, err)
				return
			}
		}
		_, _ = s.hub.Publish(ctx, m)
	case protocol.UploadComplete:
		s.completeNudge(ctx, peer, m)
	default:
		Send(peer, protocol.Notice{SessionID: msg.Session(), Error: "unsupported action " + string(msg.Kind())})
	}
}

// open returns the session if it still accepts mutating messages.
func (s *Server) open(id, docType string) (sessions.Session, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return sess, err
	}
	if string(sess.DocType) != docType {
		return sess, common.ErrInvalidRequest
	}
	if sess.Status.Terminal() {
		return sess, common.ErrVersionConflict
	}
	return sess, nil
}

func (s *Server) subscribe(ctx context.Context, peer *Peer, m protocol.Subscribe) {
	ctx = logging.WithSession(ctx, m.SessionID, m.DocType)
	sess, err := s.sessions.Get(m.SessionID)
	if err != nil {
		s.reject(peer, m.SessionID, err)
		return
	}
	if string(sess.DocType) != m.DocType {
		s.reject(peer, m.SessionID, common.ErrInvalidRequest)
		return
	}

	if old := s.hub.Subscribe(m.SessionID, peer); old != nil {
		Send(old, protocol.Notice{SessionID: m.SessionID, Error: "subscription replaced"})
	}
	// Read again now that the peer is registered: a completion published
	// before Subscribe found no subscriber and is only visible here.
	if sess, err = s.sessions.Get(m.SessionID); err != nil {
		s.hub.Unsubscribe(m.SessionID, peer)
		s.reject(peer, m.SessionID, err)
		return
	}
	Send(peer, protocol.Subscribed{SessionID: m.SessionID, Status: sess.Status})
	s.logger.Info(ctx, "subscribed", "status", sess.Status)

	if ev, ok := sess.CompletionEvent(); ok {
		Send(peer, ev)
	}
}

// completeNudge handles upload_complete sent by a client. The payload is not
// trusted: the registry's own result is republished, and only for a
// session that really is complete.
func (s *Server) completeNudge(ctx context.Context, peer *Peer, m protocol.UploadComplete) {
	sess, err := s.sessions.Get(m.SessionID)
	if err != nil {
		s.reject(peer, m.SessionID, err)
		return
	}
	ev, ok := sess.CompletionEvent()
	if !ok {
		s.reject(peer, m.SessionID, errors.New("session not complete"))
		return
	}
	_, _ = s.hub.Publish(ctx, ev)
}

func (s *Server) reject(peer *Peer, sessionID string, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, common.ErrNotFound):
		msg = "session not found"
	case errors.Is(err, common.ErrExpired):
		msg = "session expired"
	case errors.Is(err, common.ErrVersionConflict):
		msg = "session closed"
	case errors.Is(err, common.ErrInvalidRequest):
		msg = "doc_type does not match session"
	}
	Send(peer, protocol.Notice{SessionID: sessionID, Error: msg})
}
