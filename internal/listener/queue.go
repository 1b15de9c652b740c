package listener

import (
	"context"
	"log/slog"
	"sync"
)

// maxPending caps the number of distinct users waiting for an on-demand poll.
const maxPending = 1024

// queue feeds poll requests to a single worker. A user already waiting is
// not queued twice, so a burst of notifications for one user costs one poll.
type queue struct {
	mu      sync.Mutex
	pending map[string]struct{}
	order   []string
	wake    chan struct{}
}

func newQueue() *queue {
	return &queue{
		pending: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// push enqueues userID. It reports false when the queue is full; a user that
// is already pending counts as accepted.
func (q *queue) push(userID string) bool {
	q.mu.Lock()
	if _, ok := q.pending[userID]; ok {
		q.mu.Unlock()
		return true
	}
	if len(q.order) >= maxPending {
		q.mu.Unlock()
		return false
	}
	q.pending[userID] = struct{}{}
	q.order = append(q.order, userID)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// drain takes every pending user in arrival order.
func (q *queue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	users := q.order
	q.order = nil
	clear(q.pending)
	return users
}

// run polls queued users one at a time until ctx is cancelled.
func (q *queue) run(ctx context.Context, trigger Trigger, logger *slog.Logger) {
	for {
		select {
		case <-q.wake:
		case <-ctx.Done():
			return
		}
		for _, userID := range q.drain() {
			if ctx.Err() != nil {
				return
			}
			handle(ctx, trigger, PollRequest{UserID: userID}, logger)
		}
	}
}
