package shell

import "sync"

// writeQueue is the unbounded outbound queue between Write callers and the
// protocol loop. Pushes never block; the queue trades memory for writer
// availability, so a writer that outpaces the remote channel grows the
// backlog without bound. Accepted: interactive input is small and bursty.
type writeQueue struct {
	mu     sync.Mutex
	items  [][]byte
	closed bool

	// ready carries at most one pending wakeup; the loop drains the whole
	// backlog on every wakeup, so coalescing signals is safe.
	ready chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{ready: make(chan struct{}, 1)}
}

// push copies p onto the backlog and wakes the loop. Returns
// ErrDisconnected once the queue has been closed.
func (q *writeQueue) push(p []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrDisconnected
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	q.items = append(q.items, buf)
	q.mu.Unlock()

	q.signal()
	return nil
}

// pop removes and returns the oldest queued write, or ok=false when the
// backlog is empty. Never blocks.
func (q *writeQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// close marks the queue closed and wakes the loop so it can observe the
// closure. Queued writes already pushed remain poppable. Idempotent.
func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *writeQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *writeQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
