package feed

import (
	"sync"
	"time"
)

// rawMessage is one transport message awaiting decode.
type rawMessage struct {
	messageType int
	data        []byte
}

// intakeQueue is an unbounded FIFO between the network read loop and the
// single processing loop. Pushes never block, so slow decode/dispatch
// never back-pressures the transport read. Pops wait with a bound so the
// consumer can run periodic liveness checks.
type intakeQueue struct {
	mu     sync.Mutex
	items  []rawMessage
	signal chan struct{}
	closed bool
}

func newIntakeQueue() *intakeQueue {
	return &intakeQueue{signal: make(chan struct{}, 1)}
}

func (q *intakeQueue) Push(messageType int, data []byte) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, rawMessage{messageType: messageType, data: data})
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop returns the oldest message, waiting up to wait for one to arrive.
// ok is false on timeout or after Close with an empty queue.
func (q *intakeQueue) Pop(wait time.Duration) (rawMessage, bool) {
	deadline := time.Now().Add(wait)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, true
		}
		closed := q.closed
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if closed || remaining <= 0 {
			return rawMessage{}, false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-q.signal:
			timer.Stop()
		case <-timer.C:
			return rawMessage{}, false
		}
	}
}

func (q *intakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *intakeQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}
