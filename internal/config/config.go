package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "MQ_"

type (
	Config struct {
		TelegramAPIToken string        `env:"TOKEN,required"`
		LogLevel         int           `env:"LOG_LEVEL,default=4"`
		DotPath          string        `env:"DOT_PATH,default=~/.memequiz"`
		DBName           string        `env:"DB_NAME,default=bot.db"`
		Workers          int           `env:"WORKERS,default=8"`
		RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
		MetricsAddr      string        `env:"METRICS_ADDR"`
		Quiz             Quiz
		Meme             Meme
		Broadcast        Broadcast
	}

	Quiz struct {
		Points   int    `env:"QUIZ_POINTS,default=10"`
		TopSize  int    `env:"QUIZ_TOP_SIZE,default=5"`
		SeedFile string `env:"QUIZ_SEED_FILE"`
	}

	Meme struct {
		RandomEnabled bool   `env:"MEME_RANDOM_ENABLED,default=true"`
		ContentDir    string `env:"MEME_CONTENT_DIR,default=~/.memequiz/content"`
	}

	Broadcast struct {
		Enabled         bool          `env:"BROADCAST_ENABLED,default=true"`
		At              DailyTime     `env:"BROADCAST_AT,default=09:00"`
		Timezone        string        `env:"BROADCAST_TZ,default=Local"`
		DeliveryTimeout time.Duration `env:"BROADCAST_DELIVERY_TIMEOUT,default=15s"`
		Concurrency     int           `env:"BROADCAST_CONCURRENCY,default=4"`
		Caption         string        `env:"BROADCAST_CAPTION,default=Meme of the day 🌞"`
	}
)

// DailyTime is a wall clock "HH:MM" slot.
type DailyTime struct {
	Hour   int
	Minute int
}

func (t *DailyTime) EnvDecode(val string) error {
	hh, mm, ok := strings.Cut(strings.TrimSpace(val), ":")
	if !ok {
		return fmt.Errorf("daily time %q: expected HH:MM", val)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("daily time %q: bad hour", val)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("daily time %q: bad minute", val)
	}
	t.Hour, t.Minute = hour, minute
	return nil
}

func (t DailyTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Location resolves the broadcast timezone, "Local" and empty mean the process zone.
func (b Broadcast) Location() (*time.Location, error) {
	if b.Timezone == "" || b.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(b.Timezone)
}

// Load reads an optional .env file and then the MQ_ prefixed environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("cant read .env file")
	}
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(envPrefix, lookuper),
	}); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	var err error
	if cfg.DotPath, err = homedir.Expand(cfg.DotPath); err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	if cfg.Meme.ContentDir, err = homedir.Expand(cfg.Meme.ContentDir); err != nil {
		return nil, fmt.Errorf("expand content dir: %w", err)
	}
	if _, err := cfg.Broadcast.Location(); err != nil {
		return nil, fmt.Errorf("broadcast timezone: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Broadcast.Concurrency < 1 {
		cfg.Broadcast.Concurrency = 1
	}
	log.Traceln("loaded config")
	return cfg, nil
}
