package transport

import (
	"context"
	"sync"
)

// Conn is one side of an editor/frame channel. Messages sent on a Conn
// arrive at the peer in send order.
type Conn interface {
	// Send delivers env to the peer. It does not wait for processing.
	Send(ctx context.Context, env Envelope) error
	// Receive blocks until the next message arrives. A malformed message
	// yields an error wrapping ErrUnrecognizedShape; the Conn stays usable.
	Receive(ctx context.Context) (Message, error)
	// PeerOrigin is the origin attached to received messages.
	PeerOrigin() string
	Close() error
}

const pipeBuffer = 64

// PipeConn is an in-memory Conn. Envelopes cross the pipe encoded, so
// both sides see exactly what a network peer would.
type PipeConn struct {
	in     <-chan []byte
	out    chan<- []byte
	peer   string
	done   chan struct{}
	closer *sync.Once
}

// Pipe returns two connected ends. Messages received by b carry originA;
// messages received by a carry originB.
func Pipe(originA, originB string) (a, b *PipeConn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	a = &PipeConn{in: ba, out: ab, peer: originB, done: done, closer: once}
	b = &PipeConn{in: ab, out: ba, peer: originA, done: done, closer: once}
	return a, b
}

// Send implements Conn.
func (p *PipeConn) Send(ctx context.Context, env Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}
	return p.SendRaw(ctx, data)
}

// SendRaw puts bytes on the pipe without encoding or validation.
func (p *PipeConn) SendRaw(ctx context.Context, data []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Conn. Messages already buffered when the pipe is
// closed are still delivered.
func (p *PipeConn) Receive(ctx context.Context) (Message, error) {
	select {
	case data := <-p.in:
		return p.decode(data)
	default:
	}
	select {
	case data := <-p.in:
		return p.decode(data)
	case <-p.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *PipeConn) decode(data []byte) (Message, error) {
	env, err := Decode(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Origin: p.peer, Envelope: env}, nil
}

// PeerOrigin implements Conn.
func (p *PipeConn) PeerOrigin() string { return p.peer }

// Close closes both ends.
func (p *PipeConn) Close() error {
	p.closer.Do(func() { close(p.done) })
	return nil
}
