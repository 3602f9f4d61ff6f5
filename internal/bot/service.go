package bot

import (
	"context"
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/memequiz/internal/db"
)

type service struct {
	bot       *api.BotAPI
	db        db.Client
	messenger Messenger
	log       *log.Entry

	closeOnce sync.Once
}

func NewService(bot *api.BotAPI, dbClient db.Client, messenger Messenger, entry *log.Entry) *service {
	if entry == nil {
		entry = log.WithField("object", "Service")
	}
	return &service{
		bot:       bot,
		db:        dbClient,
		messenger: messenger,
		log:       entry,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetMessenger() Messenger {
	return s.messenger
}

func (s *service) Start(ctx context.Context) error {
	if s.bot != nil && s.bot.Self.UserName != "" {
		s.log.WithField("username", s.bot.Self.UserName).Info("bot service started")
	}
	return ctx.Err()
}

// Stop releases the storage handle, later calls are no-ops.
func (s *service) Stop(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.log.Debug("closing storage")
		err = s.db.Close()
	})
	return err
}
