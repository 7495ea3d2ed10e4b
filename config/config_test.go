package config_test

import (
	"os"
	"testing"

	"github.com/discordwell/vibariant/config"
)

func TestLoadConfigFromEnv(t *testing.T) {
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	os.Setenv("ENV", "test")
	defer func() {
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("ENV")
	}()

	cfg := config.Load()
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Fatalf("expected REDIS_URL to be loaded, got %s", cfg.RedisURL)
	}
	if cfg.Env != "test" {
		t.Fatalf("expected ENV=test, got %s", cfg.Env)
	}
	if cfg.IsDevelopment() || cfg.IsProduction() {
		t.Fatalf("ENV=test should be neither development nor production")
	}
}

func TestLoadConfigEngineDefaults(t *testing.T) {
	os.Setenv("ENGINE_MIN_TOTAL_N", "50")
	os.Setenv("ENGINE_USE_PROXY", "false")
	defer func() {
		os.Unsetenv("ENGINE_MIN_TOTAL_N")
		os.Unsetenv("ENGINE_USE_PROXY")
	}()

	cfg := config.Load()
	if cfg.EngineDefaults.MinTotalN != 50 {
		t.Fatalf("expected ENGINE_MIN_TOTAL_N=50 to be loaded, got %d", cfg.EngineDefaults.MinTotalN)
	}
	if cfg.EngineDefaults.UseProxy {
		t.Fatalf("expected ENGINE_USE_PROXY=false to be loaded")
	}
	if cfg.EngineDefaults.HDIMass != 0.95 {
		t.Fatalf("expected un-overridden HDIMass to keep its default, got %v", cfg.EngineDefaults.HDIMass)
	}
}
