package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WSConn is a Conn over a websocket, one JSON envelope per text frame.
type WSConn struct {
	ws     *websocket.Conn
	peer   string
	frames chan wsFrame
	done   chan struct{}
	wmu    sync.Mutex
	once   sync.Once
}

type wsFrame struct {
	data []byte
	err  error
}

func newWSConn(ws *websocket.Conn, peer string) *WSConn {
	ws.SetReadLimit(MaxMessageSize)
	c := &WSConn{
		ws:     ws,
		peer:   peer,
		frames: make(chan wsFrame, pipeBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Accept upgrades an HTTP request. The handshake is refused when the
// request Origin fails policy; on success every received message carries
// that origin.
func Accept(w http.ResponseWriter, r *http.Request, policy OriginPolicy) (*WSConn, error) {
	origin := NormalizeOrigin(r.Header.Get("Origin"))
	up := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(*http.Request) bool {
			return policy != nil && policy.Allow(origin)
		},
	}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		if origin == "" || policy == nil || !policy.Allow(origin) {
			return nil, fmt.Errorf("%w: %q", ErrOriginRejected, r.Header.Get("Origin"))
		}
		return nil, fmt.Errorf("transport: upgrade: %w", err)
	}
	return newWSConn(ws, origin), nil
}

// Dial connects to a websocket endpoint presenting origin. Messages
// received on the returned Conn carry the origin of rawURL.
func Dial(ctx context.Context, rawURL, origin string) (*WSConn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	hdr := http.Header{}
	if origin != "" {
		hdr.Set("Origin", origin)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, hdr)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %s", ErrOriginRejected, rawURL)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", rawURL, err)
	}
	return newWSConn(ws, NormalizeOrigin(u.Scheme+"://"+u.Host)), nil
}

func (c *WSConn) readLoop() {
	defer close(c.frames)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case c.frames <- wsFrame{err: err}:
			case <-c.done:
			}
			return
		}
		if mt != websocket.TextMessage {
			data = nil
		}
		select {
		case c.frames <- wsFrame{data: data}:
		case <-c.done:
			return
		}
	}
}

// Send implements Conn.
func (c *WSConn) Send(ctx context.Context, env Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Receive implements Conn. A closed socket yields ErrClosed.
func (c *WSConn) Receive(ctx context.Context) (Message, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return Message{}, ErrClosed
		}
		if f.err != nil {
			var ce *websocket.CloseError
			if errors.As(f.err, &ce) || errors.Is(f.err, websocket.ErrCloseSent) {
				return Message{}, ErrClosed
			}
			return Message{}, fmt.Errorf("%w: %v", ErrClosed, f.err)
		}
		if f.data == nil {
			return Message{}, fmt.Errorf("%w: binary frame", ErrUnrecognizedShape)
		}
		env, err := Decode(f.data)
		if err != nil {
			return Message{}, err
		}
		return Message{Origin: c.peer, Envelope: env}, nil
	case <-c.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// PeerOrigin implements Conn.
func (c *WSConn) PeerOrigin() string { return c.peer }

// Close sends a close frame and releases the socket.
func (c *WSConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}
