package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/clonepages/idgen"
)

// DefaultReplyTimeout bounds Request when Config.ReplyTimeout is zero.
const DefaultReplyTimeout = 5 * time.Second

// Handler processes one inbound message. Handlers run one at a time on
// the Run goroutine, so they must not block on Request.
type Handler func(ctx context.Context, msg Message)

// Config configures an Endpoint.
type Config struct {
	// Source is stamped on every outgoing envelope.
	Source Source
	// Peer is the source expected on inbound envelopes. Others are
	// dropped. Empty accepts either.
	Peer Source
	// Policy filters inbound origins. A nil policy drops everything.
	Policy OriginPolicy
	// ReplyTimeout is the default Request timeout.
	ReplyTimeout time.Duration
	// IDs generates correlation ids.
	IDs    idgen.Generator
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultReplyTimeout
	}
	if c.IDs == nil {
		c.IDs = idgen.Prefixed("msg_", idgen.NanoID(16))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// DropStats counts inbound messages that were not processed.
type DropStats struct {
	Shape     uint64 `json:"shape"`
	Origin    uint64 `json:"origin"`
	LateReply uint64 `json:"late_reply"`
	Unhandled uint64 `json:"unhandled"`
}

// Endpoint dispatches messages received on a Conn to handlers and
// correlates replies with outstanding requests.
type Endpoint struct {
	cfg     Config
	conn    Conn
	pending *pending

	mu       sync.RWMutex
	handlers map[MessageType]Handler

	stopped  chan struct{}
	stopOnce sync.Once

	dropShape, dropOrigin, dropLate, dropUnhandled atomic.Uint64
}

// NewEndpoint wraps conn. Call Run to start receiving.
func NewEndpoint(conn Conn, cfg Config) *Endpoint {
	cfg.defaults()
	return &Endpoint{
		cfg:      cfg,
		conn:     conn,
		pending:  newPending(),
		handlers: make(map[MessageType]Handler),
		stopped:  make(chan struct{}),
	}
}

// Handle registers h for messages of type t, replacing any previous one.
func (e *Endpoint) Handle(t MessageType, h Handler) {
	e.mu.Lock()
	e.handlers[t] = h
	e.mu.Unlock()
}

// Run receives until ctx is done or the connection closes. Malformed,
// foreign-origin and late messages are dropped with a debug log.
func (e *Endpoint) Run(ctx context.Context) error {
	defer e.stop()
	log := e.cfg.Logger

	for {
		msg, err := e.conn.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrUnrecognizedShape):
			e.dropShape.Add(1)
			log.Debug("transport: dropped message", "reason", "shape", "error", err)
			continue
		case errors.Is(err, ErrClosed):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("transport: receive: %w", err)
		}

		if e.cfg.Policy == nil || !e.cfg.Policy.Allow(msg.Origin) {
			e.dropOrigin.Add(1)
			log.Debug("transport: dropped message", "reason", "origin", "origin", msg.Origin, "type", msg.Type)
			continue
		}
		if e.cfg.Peer != "" && msg.Source != e.cfg.Peer {
			e.dropShape.Add(1)
			log.Debug("transport: dropped message", "reason", "source", "source", msg.Source, "type", msg.Type)
			continue
		}

		if msg.ReplyTo != "" {
			if !e.pending.resolve(msg) {
				e.dropLate.Add(1)
				log.Debug("transport: dropped reply", "reason", "no waiter", "reply_to", msg.ReplyTo, "type", msg.Type)
			}
			continue
		}

		e.mu.RLock()
		h := e.handlers[msg.Type]
		e.mu.RUnlock()
		if h == nil {
			e.dropUnhandled.Add(1)
			log.Debug("transport: no handler", "type", msg.Type)
			continue
		}
		h(ctx, msg)
	}
}

func (e *Endpoint) stop() {
	e.stopOnce.Do(func() { close(e.stopped) })
}

// Done is closed when Run has returned.
func (e *Endpoint) Done() <-chan struct{} { return e.stopped }

// Send emits a fire-and-forget message.
func (e *Endpoint) Send(ctx context.Context, t MessageType, payload any) error {
	env, err := e.envelope(t, payload)
	if err != nil {
		return err
	}
	return e.SendEnvelope(ctx, env)
}

// SendEnvelope stamps Source and an id when missing, then sends env.
func (e *Endpoint) SendEnvelope(ctx context.Context, env Envelope) error {
	if env.Source == "" {
		env.Source = e.cfg.Source
	}
	if env.ID == "" {
		env.ID = e.cfg.IDs()
	}
	return e.conn.Send(ctx, env)
}

// Reply answers req with a message of type t.
func (e *Endpoint) Reply(ctx context.Context, req Message, t MessageType, payload any) error {
	env, err := e.envelope(t, payload)
	if err != nil {
		return err
	}
	env.ReplyTo = req.ID
	return e.SendEnvelope(ctx, env)
}

// Request sends a message and waits for the reply whose reply_to matches
// its id. It returns an empty Message and ErrCommsTimeout after timeout
// (Config.ReplyTimeout when zero). A reply arriving after that is
// dropped by Run.
func (e *Endpoint) Request(ctx context.Context, t MessageType, payload any, timeout time.Duration) (Message, error) {
	if timeout <= 0 {
		timeout = e.cfg.ReplyTimeout
	}
	env, err := e.envelope(t, payload)
	if err != nil {
		return Message{}, err
	}
	env.ID = e.cfg.IDs()

	ch := e.pending.add(env.ID)
	if err := e.SendEnvelope(ctx, env); err != nil {
		e.pending.cancel(env.ID)
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		return msg, nil
	case <-timer.C:
	case <-ctx.Done():
		if !e.pending.cancel(env.ID) {
			return <-ch, nil
		}
		return Message{}, ctx.Err()
	case <-e.stopped:
		if !e.pending.cancel(env.ID) {
			return <-ch, nil
		}
		return Message{}, ErrClosed
	}

	if !e.pending.cancel(env.ID) {
		// The reply won the race against the timer.
		return <-ch, nil
	}
	e.cfg.Logger.Debug("transport: request timed out", "type", t, "id", env.ID, "timeout", timeout)
	return Message{}, fmt.Errorf("%w: %s after %s", ErrCommsTimeout, t, timeout)
}

// Stats returns drop counters.
func (e *Endpoint) Stats() DropStats {
	return DropStats{
		Shape:     e.dropShape.Load(),
		Origin:    e.dropOrigin.Load(),
		LateReply: e.dropLate.Load(),
		Unhandled: e.dropUnhandled.Load(),
	}
}

// Close closes the underlying connection.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

func (e *Endpoint) envelope(t MessageType, payload any) (Envelope, error) {
	env := Envelope{Source: e.cfg.Source, Type: t}
	if payload == nil {
		return env, nil
	}
	return env.WithPayload(payload)
}
