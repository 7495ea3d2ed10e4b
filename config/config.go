package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/discordwell/vibariant/engine"
)

// Config holds all service configuration values.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Redis (experiment history + result cache)
	RedisURL string

	// Authentication
	APIKeyHeader string

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPM     int // requests per minute per key
	RateLimitBurst   int

	// Timeouts
	DefaultTimeout time.Duration

	// Body limits
	MaxBodyBytes int64

	// Logging
	LogLevel string

	// EngineDefaults seeds every EngineConfig field the caller doesn't
	// override in a request (§3). Starts from engine.DefaultConfig()
	// and is overridable per-deployment via env vars so an operator can
	// retune epsilon/ROPE/MC sample count without a code change.
	EngineDefaults engine.EngineConfig
}

// Load reads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("VIBARIANT_GRACEFUL_TIMEOUT_SEC", 15)
	defaultTimeoutSec := getEnvInt("VIBARIANT_DEFAULT_TIMEOUT_SEC", 30)

	cfg := &Config{
		Addr:             getEnv("VIBARIANT_ADDR", ":8080"),
		Env:              getEnv("ENV", "development"),
		GracefulTimeout:  time.Duration(gracefulSec) * time.Second,
		RedisURL:         getEnv("REDIS_URL", "redis://redis:6379"),
		APIKeyHeader:     getEnv("API_KEY_HEADER", "Authorization"),
		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 60),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 10),
		DefaultTimeout:   time.Duration(defaultTimeoutSec) * time.Second,
		MaxBodyBytes:     int64(getEnvInt("VIBARIANT_MAX_BODY_BYTES", 1*1024*1024)),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		EngineDefaults:   loadEngineDefaults(),
	}
	return cfg
}

// loadEngineDefaults starts from engine.DefaultConfig() and applies any
// env-var overrides a deployment wants baked in as its house defaults.
func loadEngineDefaults() engine.EngineConfig {
	d := engine.DefaultConfig()

	d.LossThreshold = getEnvFloat("ENGINE_LOSS_THRESHOLD", d.LossThreshold)
	d.ROPEHalfWidth = getEnvFloat("ENGINE_ROPE_HALF_WIDTH", d.ROPEHalfWidth)
	d.HDIMass = getEnvFloat("ENGINE_HDI_MASS", d.HDIMass)
	d.MCSamples = getEnvInt("ENGINE_MC_SAMPLES", d.MCSamples)
	d.MinTotalN = getEnvInt("ENGINE_MIN_TOTAL_N", d.MinTotalN)
	d.ExploreFloor = getEnvFloat("ENGINE_EXPLORE_FLOOR", d.ExploreFloor)
	d.TopTwoBeta = getEnvFloat("ENGINE_TOP_TWO_BETA", d.TopTwoBeta)
	d.UseProxy = getEnvBool("ENGINE_USE_PROXY", d.UseProxy)
	d.WinsorizeP = getEnvFloat("ENGINE_WINSORIZE_P", d.WinsorizeP)
	d.Shrinkage = getEnvBool("ENGINE_SHRINKAGE", d.Shrinkage)
	if v := getEnv("ENGINE_CUPED_THETA_SOURCE", ""); v != "" {
		d.CUPEDThetaSource = engine.CUPEDSource(v)
	}

	return d
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
