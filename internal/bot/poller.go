package bot

import (
	"context"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/memequiz/internal/event"
	"github.com/iamwavecut/memequiz/internal/infra"
)

type Submitter interface {
	Submit(ctx context.Context, task event.Task) error
}

// UpdateSource opens a polling session starting at offset, the id of the first unconfirmed update.
type UpdateSource func(ctx context.Context, offset int) (api.UpdatesChannel, chan error)

const pollRetryDelay = 3 * time.Second

// Poller feeds updates into the dispatcher, keyed by sender so one user's updates stay ordered.
type Poller struct {
	source     UpdateSource
	processor  *UpdateProcessor
	submitter  Submitter
	retryDelay time.Duration

	// offset is the next update id to request, kept across sessions.
	offset int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(source UpdateSource, processor *UpdateProcessor, submitter Submitter) *Poller {
	return &Poller{source: source, processor: processor, submitter: submitter, retryDelay: pollRetryDelay}
}

// TelegramSource long-polls the Bot API.
func TelegramSource(botAPI *api.BotAPI, timeoutSeconds int) UpdateSource {
	return func(ctx context.Context, offset int) (api.UpdatesChannel, chan error) {
		cfg := api.NewUpdate(offset)
		cfg.Timeout = timeoutSeconds
		cfg.AllowedUpdates = []string{"message", "callback_query"}
		return GetUpdatesChans(ctx, botAPI, cfg)
	}
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})

	done := p.done
	go func() {
		defer close(done)
		infra.GoRecoverable(-1, "poller", func() { p.run(runCtx) })
		<-runCtx.Done()
	}()
	return nil
}

func (p *Poller) run(ctx context.Context) {
	for ctx.Err() == nil {
		p.poll(ctx)
	}
}

// poll consumes one polling session until the source closes both channels.
func (p *Poller) poll(ctx context.Context) {
	updates, errs := p.source(ctx, p.offset)
	for updates != nil || errs != nil {
		select {
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			p.submit(ctx, u)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && ctx.Err() == nil {
				p.getLogEntry().WithError(err).Warn("polling failed, retrying")
				select {
				case <-ctx.Done():
				case <-time.After(p.retryDelay):
				}
			}
		}
	}
}

func (p *Poller) submit(ctx context.Context, u api.Update) {
	task := event.NewTask(UpdateKey(&u), "update", UpdateTimeout, func(ctx context.Context) {
		if err := p.processor.Process(ctx, &u); err != nil {
			p.getLogEntry().WithField("update_id", u.UpdateID).WithError(err).Error("cant process update")
		}
	})
	if err := p.submitter.Submit(ctx, task); err != nil {
		p.getLogEntry().WithField("update_id", u.UpdateID).WithError(err).Warn("update dropped")
	}
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) getLogEntry() *log.Entry {
	return log.WithField("object", "Poller")
}
