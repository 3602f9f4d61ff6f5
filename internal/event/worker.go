package event

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iamwavecut/memequiz/internal/infra"
	"github.com/iamwavecut/memequiz/internal/observability"
)

var ErrStopped = errors.New("dispatcher stopped")

// Dispatcher runs tasks on a fixed set of workers, tasks sharing a key always land on the same worker and run in submission order.
type Dispatcher struct {
	workers []*queue

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(workers int, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{workers: make([]*queue, workers)}
	for i := range d.workers {
		d.workers[i] = newQueue(queueSize)
	}
	return d
}

func (d *Dispatcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	for i, q := range d.workers {
		d.wg.Add(1)
		go d.run(runCtx, i, q)
	}
	d.getLogEntry().WithField("workers", len(d.workers)).Info("dispatcher started")
	return nil
}

// Submit queues the task, blocking while the worker queue is full.
func (d *Dispatcher) Submit(ctx context.Context, task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	return d.workers[d.shard(task.Key)].enqueue(ctx, task)
}

// Stop drains queued tasks and waits for the workers until ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	for _, q := range d.workers {
		close(q.q)
	}
	cancel := d.cancel
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		infra.WaitOrLog(done, time.Second, "dispatcher")
		return ctx.Err()
	}
}

func (d *Dispatcher) shard(key int64) int {
	if key < 0 {
		key = -key
	}
	return int(key % int64(len(d.workers)))
}

func (d *Dispatcher) run(ctx context.Context, id int, q *queue) {
	defer d.wg.Done()
	entry := d.getLogEntry().WithField("worker", id)
	entry.Trace("worker go")
	for task := range q.q {
		if task.Expired(time.Now()) {
			entry.WithField("type", task.Type).Debug("skip expired task")
			continue
		}
		d.execute(ctx, task)
	}
	entry.Trace("worker done")
}

func (d *Dispatcher) execute(ctx context.Context, task Task) {
	ctx, span := observability.Tracer().Start(ctx, "task."+task.Type,
		trace.WithAttributes(attribute.Int64("task.key", task.Key)))
	defer span.End()
	defer infra.Recover("task." + task.Type)
	task.Run(ctx)
}

func (d *Dispatcher) getLogEntry() *log.Entry {
	return log.WithField("object", "Dispatcher")
}
