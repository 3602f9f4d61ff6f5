package broadcast

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/memequiz/internal/config"
	"github.com/iamwavecut/memequiz/internal/infra"
)

// Job runs for one daily slot, slot is the wall-clock moment it was planned for.
type Job func(ctx context.Context, slot time.Time) error

type Scheduler struct {
	loc   *time.Location
	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	at  config.DailyTime
	job Job

	mu        sync.Mutex
	loopStop  context.CancelFunc
	jobCancel context.CancelFunc
	done      chan struct{}
}

type SchedulerOption func(*Scheduler)

// WithClock replaces the wall clock and timer source.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

func NewScheduler(loc *time.Location, opts ...SchedulerOption) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		loc:   loc,
		now:   time.Now,
		after: time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleDaily registers the job fired once per day at the given local time.
func (s *Scheduler) ScheduleDaily(at config.DailyTime, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.at = at
	s.job = job
}

// NextRun returns the first occurrence of at strictly after from.
func NextRun(from time.Time, at config.DailyTime, loc *time.Location) time.Time {
	local := from.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, at.Hour, at.Minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, at.Hour, at.Minute, 0, 0, loc)
	}
	return next
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil || s.done != nil {
		return nil
	}

	loopCtx, loopStop := context.WithCancel(context.WithoutCancel(ctx))
	jobCtx, jobCancel := context.WithCancel(context.WithoutCancel(ctx))
	s.loopStop = loopStop
	s.jobCancel = jobCancel
	s.done = make(chan struct{})

	at, job, done := s.at, s.job, s.done
	go func() {
		defer close(done)
		s.loop(loopCtx, jobCtx, at, job)
	}()
	s.getLogEntry().WithField("at", at.String()).Info("daily job scheduled")
	return nil
}

func (s *Scheduler) loop(loopCtx, jobCtx context.Context, at config.DailyTime, job Job) {
	var last time.Time
	for {
		from := s.now()
		if !last.IsZero() && !from.After(last) {
			from = last
		}
		next := NextRun(from, at, s.loc)
		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-loopCtx.Done():
			return
		case <-s.after(wait):
		}
		if loopCtx.Err() != nil {
			return
		}
		last = next
		s.runJob(jobCtx, job, next)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job, slot time.Time) {
	entry := s.getLogEntry().WithField("slot", slot.Format(time.RFC3339))
	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("daily job panicked")
		}
	}()
	if err := job(ctx, slot); err != nil {
		entry.WithError(err).Warn("daily job failed")
	}
}

// Stop halts future firings and waits for a running job until ctx expires, then cancels it.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	loopStop, jobCancel, done := s.loopStop, s.jobCancel, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	loopStop()
	defer jobCancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		jobCancel()
		infra.WaitOrLog(done, time.Second, "scheduler")
		return ctx.Err()
	}
}

func (s *Scheduler) getLogEntry() *log.Entry {
	return log.WithField("object", "Scheduler")
}
