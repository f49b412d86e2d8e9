package transport

import "sync"

// pending tracks requests waiting for a reply. Each id resolves at most
// once: whichever of resolve or cancel runs first removes the entry, and
// the loser finds nothing.
type pending struct {
	mu      sync.Mutex
	waiters map[string]chan Message
}

func newPending() *pending {
	return &pending{waiters: make(map[string]chan Message)}
}

// add registers id. The returned channel receives at most one message.
func (p *pending) add(id string) <-chan Message {
	ch := make(chan Message, 1)
	p.mu.Lock()
	p.waiters[id] = ch
	p.mu.Unlock()
	return ch
}

// resolve delivers msg to the waiter for msg.ReplyTo. It reports false
// for unknown or already settled ids.
func (p *pending) resolve(msg Message) bool {
	p.mu.Lock()
	ch, ok := p.waiters[msg.ReplyTo]
	if ok {
		delete(p.waiters, msg.ReplyTo)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	return true
}

// cancel settles id without a reply.
func (p *pending) cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.waiters[id]
	delete(p.waiters, id)
	return ok
}

func (p *pending) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
