package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/memequiz/internal/bot"
	"github.com/iamwavecut/memequiz/internal/broadcast"
	"github.com/iamwavecut/memequiz/internal/config"
	"github.com/iamwavecut/memequiz/internal/db"
	"github.com/iamwavecut/memequiz/internal/db/sqlite"
	"github.com/iamwavecut/memequiz/internal/event"
	"github.com/iamwavecut/memequiz/internal/handlers/dialog"
	"github.com/iamwavecut/memequiz/internal/infra"
	"github.com/iamwavecut/memequiz/internal/infrastructure/telegram"
	"github.com/iamwavecut/memequiz/internal/lifecycle"
	"github.com/iamwavecut/memequiz/internal/meme"
	"github.com/iamwavecut/memequiz/internal/observability"
	"github.com/iamwavecut/memequiz/internal/quiz"
	"github.com/iamwavecut/memequiz/internal/session"
)

const (
	pollTimeoutSeconds = 60
	dispatchQueueSize  = 64
	shutdownTimeout    = 30 * time.Second
	execWatchInterval  = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)

	if err := run(ctx); err != nil {
		log.WithError(err).Fatalln("exiting")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return errors.WithMessage(err, "cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	dbClient, err := sqlite.NewSQLiteClient(ctx, cfg.DotPath, cfg.DBName)
	if err != nil {
		return errors.WithMessage(err, "cant open storage")
	}
	if err := seedQuestions(ctx, cfg, dbClient); err != nil {
		_ = dbClient.Close()
		return err
	}

	botAPI, err := api.NewBotAPIWithClient(cfg.TelegramAPIToken, api.APIEndpoint, &http.Client{
		Timeout: cfg.RequestTimeout + pollTimeoutSeconds*time.Second,
	})
	if err != nil {
		_ = dbClient.Close()
		return errors.WithMessage(err, "cant initialize bot api")
	}
	botAPI.Debug = log.Level(cfg.LogLevel) == log.TraceLevel

	messenger := telegram.NewOperations(botAPI, &http.Client{Timeout: cfg.RequestTimeout}, cfg.RequestTimeout)
	service := bot.NewService(botAPI, dbClient, messenger, nil)

	memesDir, err := infra.GetWorkDir(cfg.DotPath, "memes")
	if err != nil {
		_ = dbClient.Close()
		return err
	}
	sessions := session.NewStore()
	content := broadcast.NewDirSource(cfg.Meme.ContentDir)
	router := dialog.NewRouter(dialog.Config{
		Service:  service,
		Sessions: sessions,
		Quiz: quiz.NewEngine(quiz.Config{
			Bank:     dbClient,
			Ledger:   dbClient,
			Sessions: sessions,
			Points:   cfg.Quiz.Points,
		}),
		Studio:            meme.NewStudio(memesDir, messenger),
		Content:           content,
		TopSize:           cfg.Quiz.TopSize,
		RandomMemeEnabled: cfg.Meme.RandomEnabled,
	})

	dispatcher := event.NewDispatcher(cfg.Workers, dispatchQueueSize)
	processor := bot.NewUpdateProcessor(service, router)
	poller := bot.NewPoller(bot.TelegramSource(botAPI, pollTimeoutSeconds), processor, dispatcher)

	runtime := lifecycle.NewRuntime()
	runtime.Register("observability", observability.NewServer(cfg.MetricsAddr))
	runtime.Register("service", service)
	runtime.Register("dispatcher", dispatcher)
	if cfg.Broadcast.Enabled {
		scheduler, err := newBroadcastScheduler(cfg, dbClient, content, messenger)
		if err != nil {
			_ = dbClient.Close()
			return err
		}
		runtime.Register("scheduler", scheduler)
	}
	runtime.Register("poller", poller)

	if err := runtime.Start(ctx); err != nil {
		_ = dbClient.Close()
		return errors.WithMessage(err, "cant start")
	}
	log.WithField("username", botAPI.Self.UserName).Info("bot is running")

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case <-infra.WatchExecutable(ctx, execWatchInterval):
		log.Warn("executable file was modified, restarting")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return runtime.Stop(stopCtx)
}

func seedQuestions(ctx context.Context, cfg *config.Config, target quiz.SeedTarget) error {
	questions, err := quiz.LoadSeed(cfg.Quiz.SeedFile)
	if err != nil {
		return errors.WithMessage(err, "cant load question seed")
	}
	if _, err := quiz.Seed(ctx, target, questions); err != nil {
		return errors.WithMessage(err, "cant seed questions")
	}
	return nil
}

func newBroadcastScheduler(cfg *config.Config, dbClient db.Client, content broadcast.ContentSource, deliverer broadcast.Deliverer) (*broadcast.Scheduler, error) {
	loc, err := cfg.Broadcast.Location()
	if err != nil {
		return nil, err
	}
	broadcaster := broadcast.NewBroadcaster(broadcast.Config{
		Subscribers:     dbClient,
		Content:         content,
		Deliverer:       deliverer,
		State:           dbClient,
		Location:        loc,
		DeliveryTimeout: cfg.Broadcast.DeliveryTimeout,
		Concurrency:     cfg.Broadcast.Concurrency,
		Caption:         cfg.Broadcast.Caption,
		Rand:            rand.New(rand.NewSource(time.Now().UnixNano())),
	})

	scheduler := broadcast.NewScheduler(loc)
	scheduler.ScheduleDaily(cfg.Broadcast.At, func(ctx context.Context, slot time.Time) error {
		_, err := broadcaster.Run(ctx, slot)
		return err
	})
	return scheduler, nil
}
