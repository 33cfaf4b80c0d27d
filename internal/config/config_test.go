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
	unsetEnvWithCleanup(t, "RATE_LIMIT_PER_DAY")
	unsetEnvWithCleanup(t, "TOKEN_TTL_SECONDS")
	unsetEnvWithCleanup(t, "REDIS_KEY_PREFIX")
	unsetEnvWithCleanup(t, "EVENT_EXCHANGE")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.RateLimitPerDay != 10 {
		t.Fatalf("expected default rate limit 10, got %d", cfg.RateLimitPerDay)
	}
	if cfg.TokenTTLSeconds != 3600 {
		t.Fatalf("expected default token ttl 3600, got %d", cfg.TokenTTLSeconds)
	}
	if cfg.RedisKeyPrefix != "banque" {
		t.Fatalf("expected default redis prefix banque, got %q", cfg.RedisKeyPrefix)
	}
	if cfg.EventExchange != "banque.events" {
		t.Fatalf("expected default exchange banque.events, got %q", cfg.EventExchange)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9090")
	setEnvWithCleanup(t, "RATE_LIMIT_PER_DAY", "25")
	setEnvWithCleanup(t, "JWT_SECRET", "env-secret")
	setEnvWithCleanup(t, "DATABASE_URL", "postgres://localhost:5432/banque")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.ServerPort)
	}
	if cfg.RateLimitPerDay != 25 {
		t.Fatalf("expected rate limit 25, got %d", cfg.RateLimitPerDay)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("expected jwt secret from env, got %q", cfg.JWTSecret)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/banque" {
		t.Fatalf("expected database url from env, got %q", cfg.DatabaseURL)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setting env %s: %v", key, err)
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
		t.Fatalf("unsetting env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			os.Setenv(key, prev)
		}
	})
}
