package cdp

import "sync"

// queue is an unbounded FIFO of raw binding payloads. chromedp invokes target
// listeners on its own reader goroutine, which must never block or issue commands, so
// payloads are parked here and delivered by the session's pump.
type queue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
	closed bool
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

// push appends payload. It is a no-op once the queue is closed.
func (q *queue) push(payload string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, payload)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until a payload is available. ok is false once the queue is closed and
// drained.
func (q *queue) pop() (payload string, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			payload = q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return payload, true
		}
		if q.closed {
			q.mu.Unlock()
			return "", false
		}
		q.mu.Unlock()
		<-q.notify
	}
}

// close wakes any waiting pop. Pending payloads are still handed out.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}
