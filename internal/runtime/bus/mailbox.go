package bus

import (
	"context"
	"sync"

	errspkg "github.com/drblury/mics/internal/runtime/errors"
	"github.com/drblury/mics/internal/runtime/message"
)

// mailbox is an unbounded FIFO owned by one participant.
type mailbox struct {
	mu     sync.Mutex
	queue  []message.Envelope
	closed bool

	// signal holds at most one pending wake-up; closedCh is closed exactly once.
	signal   chan struct{}
	closedCh chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		signal:   make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

// push appends env and reports the resulting depth. It returns false when the
// mailbox has been closed.
func (m *mailbox) push(env message.Envelope) (int, bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, false
	}
	m.queue = append(m.queue, env)
	depth := len(m.queue)
	m.mu.Unlock()

	m.wake()
	return depth, true
}

// pop blocks until an envelope is available, the mailbox is closed or ctx ends.
func (m *mailbox) pop(ctx context.Context) (message.Envelope, int, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			env := m.queue[0]
			m.queue[0] = message.Envelope{}
			m.queue = m.queue[1:]
			depth := len(m.queue)
			m.mu.Unlock()
			if depth > 0 {
				m.wake()
			}
			return env, depth, nil
		}
		if m.closed {
			m.mu.Unlock()
			return message.Envelope{}, 0, errspkg.ErrUnregistered
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-m.closedCh:
		case <-ctx.Done():
			return message.Envelope{}, 0, ctx.Err()
		}
	}
}

// close marks the mailbox closed, wakes every waiter and returns the number of
// envelopes that were still queued.
func (m *mailbox) close() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0
	}
	m.closed = true
	dropped := len(m.queue)
	m.queue = nil
	close(m.closedCh)
	return dropped
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}
