package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadWithDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"MQ_TOKEN":    "123:abc",
		"MQ_DOT_PATH": "/tmp/memequiz",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.TelegramAPIToken != "123:abc" {
		t.Fatalf("unexpected token: %q", cfg.TelegramAPIToken)
	}
	if cfg.Quiz.Points != 10 || cfg.Quiz.TopSize != 5 {
		t.Fatalf("unexpected quiz defaults: %+v", cfg.Quiz)
	}
	if cfg.Broadcast.At != (DailyTime{Hour: 9, Minute: 0}) {
		t.Fatalf("unexpected broadcast slot: %s", cfg.Broadcast.At)
	}
	if cfg.Broadcast.DeliveryTimeout != 15*time.Second {
		t.Fatalf("unexpected delivery timeout: %s", cfg.Broadcast.DeliveryTimeout)
	}
	if cfg.DotPath != "/tmp/memequiz" {
		t.Fatalf("unexpected dot path: %q", cfg.DotPath)
	}
}

func TestLoadWithRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{})); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestLoadWithBroadcastOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"MQ_TOKEN":                 "t",
		"MQ_BROADCAST_AT":          "18:45",
		"MQ_BROADCAST_TZ":          "UTC",
		"MQ_BROADCAST_CONCURRENCY": "0",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Broadcast.At.String() != "18:45" {
		t.Fatalf("unexpected slot: %s", cfg.Broadcast.At)
	}
	loc, err := cfg.Broadcast.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("unexpected location: %v %v", loc, err)
	}
	if cfg.Broadcast.Concurrency != 1 {
		t.Fatalf("concurrency must be clamped to 1, got %d", cfg.Broadcast.Concurrency)
	}
}

func TestDailyTimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, val := range []string{"", "9", "24:00", "12:60", "ab:cd"} {
		var dt DailyTime
		if err := dt.EnvDecode(val); err == nil {
			t.Fatalf("expected error for %q", val)
		}
	}
}
