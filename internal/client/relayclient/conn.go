// Package relayclient connects capture and desktop clients to the relay hub.
//
// Every failure to reach or write to the relay wraps
// common.ErrRelayUnavailable. Callers treat it as a hint to fall back to
// polling, never as a user-visible error.
package relayclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

const (
	writeTimeout = 10 * time.Second
	inboxSize    = 16
)

// Conn is one relay connection. Incoming messages are decoded and delivered
// on Messages until the connection ends.
type Conn struct {
	ws     *websocket.Conn
	logger logging.Logger

	sendMu sync.Mutex
	msgs   chan protocol.Message
	done   chan struct{}
	once   sync.Once

	errMu sync.Mutex
	err   error
}

// Dial opens a relay connection to endpoint (ws:// or wss://).
func Dial(ctx context.Context, endpoint string, logger logging.Logger) (*Conn, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	origin, err := originFor(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRelayUnavailable, err)
	}
	cfg, err := websocket.NewConfig(endpoint, origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRelayUnavailable, err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", common.ErrRelayUnavailable, endpoint, err)
	}

	c := &Conn{
		ws:     ws,
		logger: logger.With("module", "relayclient"),
		msgs:   make(chan protocol.Message, inboxSize),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func originFor(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.Scheme + "://" + u.Host + "/", nil
}

func (c *Conn) readLoop() {
	defer close(c.msgs)
	ctx := context.Background()

	for {
		var data []byte
		if err := websocket.Message.Receive(c.ws, &data); err != nil {
			c.fail(err)
			return
		}
		msg, err := protocol.Decode(data, 0)
		if err != nil {
			c.logger.Debug(ctx, "dropping undecodable relay message", "error", err)
			continue
		}
		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		}
	}
}

// Messages yields decoded relay messages. The channel is closed when the
// connection ends; Err then reports why.
func (c *Conn) Messages() <-chan protocol.Message { return c.msgs }

// Done is closed once the connection is closed locally or lost.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection ended, or nil while it is open.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Subscribe asks the hub for the session's messages.
func (c *Conn) Subscribe(ctx context.Context, sessionID string, docType protocol.DocType) error {
	return c.Send(ctx, protocol.Subscribe{SessionID: sessionID, DocType: string(docType)})
}

// Send writes one message. Writes are serialized.
func (c *Conn) Send(ctx context.Context, m protocol.Message) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return fmt.Errorf("%w: connection closed", common.ErrRelayUnavailable)
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := websocket.Message.Send(c.ws, string(b)); err != nil {
		c.fail(err)
		return fmt.Errorf("%w: send %s: %v", common.ErrRelayUnavailable, m.Kind(), err)
	}
	return nil
}

// Close ends the connection.
func (c *Conn) Close() error {
	c.fail(nil)
	return nil
}

func (c *Conn) fail(err error) {
	c.once.Do(func() {
		c.errMu.Lock()
		if err == nil {
			err = errors.New("closed")
		}
		c.err = fmt.Errorf("%w: %v", common.ErrRelayUnavailable, err)
		c.errMu.Unlock()
		close(c.done)
		_ = c.ws.Close()
	})
}
