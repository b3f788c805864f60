package session

import "sync"

// mailbox holds at most one pending value. A newer value replaces an undelivered one.
type mailbox[T any] struct {
	mu      sync.Mutex
	pending T
	has     bool
	signal  chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signal: make(chan struct{}, 1)}
}

// put stores v and wakes the consumer. It never blocks.
func (m *mailbox[T]) put(v T) (replaced bool) {
	m.mu.Lock()
	replaced = m.has
	m.pending = v
	m.has = true
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return replaced
}

func (m *mailbox[T]) take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if !m.has {
		return zero, false
	}
	v := m.pending
	m.pending = zero
	m.has = false
	return v, true
}

// drain delivers values until done is closed.
func (m *mailbox[T]) drain(done <-chan struct{}, deliver func(T)) {
	for {
		select {
		case <-done:
			return
		case <-m.signal:
			v, ok := m.take()
			if !ok {
				continue
			}
			// Prefer stopping over delivering once the session died
			select {
			case <-done:
				return
			default:
			}
			deliver(v)
		}
	}
}
