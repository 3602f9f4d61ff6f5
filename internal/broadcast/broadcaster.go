package broadcast

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	errs "github.com/iamwavecut/memequiz/internal/errors"
	"github.com/iamwavecut/memequiz/internal/observability"
)

const (
	LastFiredKey = "broadcast.last_fired_date"
	DateLayout   = "2006-01-02"
)

type SubscriberSource interface {
	GetSubscribers(ctx context.Context) ([]int64, error)
}

type StateStore interface {
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}

type Deliverer interface {
	SendPhoto(ctx context.Context, chatID int64, path string, caption string) error
}

type Config struct {
	Subscribers     SubscriberSource
	Content         ContentSource
	Deliverer       Deliverer
	State           StateStore
	Location        *time.Location
	DeliveryTimeout time.Duration
	Concurrency     int
	Caption         string
	Rand            *rand.Rand
}

type Broadcaster struct {
	subscribers SubscriberSource
	content     ContentSource
	deliverer   Deliverer
	state       StateStore
	loc         *time.Location
	timeout     time.Duration
	concurrency int
	caption     string

	running sync.Mutex

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewBroadcaster(c Config) *Broadcaster {
	b := &Broadcaster{
		subscribers: c.Subscribers,
		content:     c.Content,
		deliverer:   c.Deliverer,
		state:       c.State,
		loc:         c.Location,
		timeout:     c.DeliveryTimeout,
		concurrency: c.Concurrency,
		caption:     c.Caption,
		rnd:         c.Rand,
	}
	if b.loc == nil {
		b.loc = time.Local
	}
	if b.timeout <= 0 {
		b.timeout = 15 * time.Second
	}
	if b.concurrency < 1 {
		b.concurrency = 1
	}
	if b.rnd == nil {
		b.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return b
}

type Report struct {
	RunID     string
	Date      string
	Item      string
	Skipped   bool
	Delivered []int64
	Failed    []int64
}

// Run performs at most one broadcast per calendar date. The date is recorded after the fan-out even when some deliveries failed, and is not recorded when ctx is cancelled mid-run.
func (b *Broadcaster) Run(ctx context.Context, now time.Time) (*Report, error) {
	if !b.running.TryLock() {
		return nil, fmt.Errorf("broadcast: %w", errs.ErrInProgress)
	}
	defer b.running.Unlock()

	report := &Report{
		RunID: uuid.New(),
		Date:  now.In(b.loc).Format(DateLayout),
	}
	entry := b.getLogEntry().WithFields(log.Fields{"method": "Run", "run_id": report.RunID, "date": report.Date})

	last, err := b.state.GetKV(ctx, LastFiredKey)
	if err != nil {
		return nil, err
	}
	if last == report.Date {
		entry.Info("broadcast already fired for this date")
		report.Skipped = true
		return report, nil
	}

	subscribers, err := b.subscribers.GetSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	items, err := b.content.List(ctx)
	if err != nil {
		entry.WithError(err).Warn("content source failed, date not recorded")
		return nil, errors.WithMessage(err, "list content")
	}

	plan := BuildPlan(report.Date, subscribers, items, b.intn)
	report.Item = plan.Item
	if plan.Empty() {
		entry.WithFields(log.Fields{
			"subscribers": len(plan.Recipients),
			"items":       len(items),
		}).Info("nothing to broadcast")
	} else {
		report.Delivered, report.Failed = b.Execute(ctx, plan)
	}

	if err := ctx.Err(); err != nil {
		entry.WithError(err).Warn("broadcast interrupted, date not recorded")
		return report, err
	}
	if err := b.state.SetKV(ctx, LastFiredKey, report.Date); err != nil {
		return report, err
	}
	entry.WithFields(log.Fields{
		"item":      plan.Item,
		"delivered": len(report.Delivered),
		"failed":    len(report.Failed),
	}).Info("broadcast finished")
	return report, nil
}

// Execute delivers the plan item to each recipient independently, with its own timeout.
func (b *Broadcaster) Execute(ctx context.Context, plan Plan) (delivered []int64, failed []int64) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(b.concurrency)
	delivered = []int64{}
	failed = []int64{}

	for _, chatID := range plan.Recipients {
		if ctx.Err() != nil {
			break
		}
		chatID := chatID
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()
			err := b.deliverer.SendPhoto(dctx, chatID, plan.Item, b.caption)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				b.getLogEntry().WithFields(log.Fields{
					"method":  "Execute",
					"chat_id": chatID,
					"error":   err.Error(),
				}).Warn("delivery failed")
				observability.ObserveDelivery("failed")
				failed = append(failed, chatID)
				return nil
			}
			observability.ObserveDelivery("delivered")
			delivered = append(delivered, chatID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(delivered, func(i, j int) bool { return delivered[i] < delivered[j] })
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return delivered, failed
}

// LastFired returns the recorded date of the latest completed run, empty if none.
func (b *Broadcaster) LastFired(ctx context.Context) (string, error) {
	return b.state.GetKV(ctx, LastFiredKey)
}

func (b *Broadcaster) intn(n int) int {
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.rnd.Intn(n)
}

func (b *Broadcaster) getLogEntry() *log.Entry {
	return log.WithField("object", "Broadcaster")
}
