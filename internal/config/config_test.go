package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "PAYMENT_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "SEED_HORIZON_DAYS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.AgendaEventQueue != "agenda_service.day_updates" {
		t.Errorf("unexpected default queue %q", cfg.AgendaEventQueue)
	}
	if cfg.RedisRateLimitPrefix != "agenda:rate_limit" {
		t.Errorf("unexpected default limiter prefix %q", cfg.RedisRateLimitPrefix)
	}
	if cfg.PaymentRateLimitPerMinute != 30 {
		t.Errorf("expected default payment limit 30, got %d", cfg.PaymentRateLimitPerMinute)
	}
	if cfg.SeedHorizonDays != 7 {
		t.Errorf("expected default horizon 7, got %d", cfg.SeedHorizonDays)
	}
}

func TestLoadConfig_PortAliasWins(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8081")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to override SERVER_PORT, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_CoercesBadValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PAYMENT_RATE_LIMIT_PER_MINUTE", "-5")
	setEnvWithCleanup(t, "SEED_HORIZON_DAYS", "365")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PaymentRateLimitPerMinute != 0 {
		t.Errorf("expected negative limit coerced to 0, got %d", cfg.PaymentRateLimitPerMinute)
	}
	if cfg.SeedHorizonDays != 60 {
		t.Errorf("expected horizon capped at 60, got %d", cfg.SeedHorizonDays)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unsetenv %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			os.Setenv(key, prev)
		}
	})
}
