package event

import (
	"context"
	"time"
)

type (
	// Task is one unit of work keyed by the user it belongs to.
	Task struct {
		Key      int64
		Type     string
		Run      func(ctx context.Context)
		expireAt time.Time
	}
)

func NewTask(key int64, taskType string, ttl time.Duration, run func(ctx context.Context)) Task {
	t := Task{Key: key, Type: taskType, Run: run}
	if ttl > 0 {
		t.expireAt = time.Now().Add(ttl)
	}
	return t
}

func (t Task) Expired(now time.Time) bool {
	return !t.expireAt.IsZero() && now.After(t.expireAt)
}

type queue struct {
	q chan Task
}

func newQueue(size int) *queue {
	return &queue{q: make(chan Task, size)}
}

func (q *queue) enqueue(ctx context.Context, task Task) error {
	select {
	case q.q <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
