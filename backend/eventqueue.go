package backend

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

const defaultEventQueueSize = 64

// EventQueue is a bounded FIFO of one-shot PlayerEvents. Each event is
// delivered exactly once, to whichever consumer calls Next first, and
// events emitted while no consumer is waiting are kept until one is.
// When full, the oldest event is dropped.
type EventQueue struct {
	mu    sync.Mutex
	queue []PlayerEvent
	size  int
	ready chan struct{}
}

func NewEventQueue(size int) *EventQueue {
	if size <= 0 {
		size = defaultEventQueueSize
	}
	return &EventQueue{
		size:  size,
		ready: make(chan struct{}, 1),
	}
}

func (q *EventQueue) Emit(e PlayerEvent) {
	q.mu.Lock()
	if len(q.queue) >= q.size {
		log.Warnf("event queue full, dropping %T", q.queue[0])
		q.queue = q.queue[1:]
	}
	q.queue = append(q.queue, e)
	q.mu.Unlock()
	q.signal()
}

// Next blocks until an event is available or ctx is done.
func (q *EventQueue) Next(ctx context.Context) (PlayerEvent, error) {
	for {
		q.mu.Lock()
		if len(q.queue) > 0 {
			e := q.queue[0]
			q.queue = q.queue[1:]
			more := len(q.queue) > 0
			q.mu.Unlock()
			if more {
				// wake any other waiting consumer
				q.signal()
			}
			return e, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Pending returns the number of undelivered events.
func (q *EventQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *EventQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
