// Package config loads client settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Identity store backends.
const (
	IdentityFile  = "file"
	IdentityRedis = "redis"
)

// Submission failure policies.
const (
	SubmitContinue = "continue"
	SubmitBlock    = "block"
)

// Config holds every tunable of the circle client.
type Config struct {
	APIBaseURL   string        `env:"CIRCLE_API_URL"       envDefault:"http://localhost:8080"`
	BrokerURL    string        `env:"CIRCLE_BROKER_URL"    envDefault:"ws://localhost:8080/api/ws-chat/websocket"`
	CountriesURL string        `env:"CIRCLE_COUNTRIES_URL" envDefault:"https://restcountries.com/v3.1/all?fields=name,cca2,languages"`
	HTTPTimeout  time.Duration `env:"CIRCLE_HTTP_TIMEOUT"  envDefault:"10s"`

	ReconnectDelay    time.Duration `env:"CIRCLE_RECONNECT_DELAY" envDefault:"5s"`
	HeartbeatInterval time.Duration `env:"CIRCLE_HEARTBEAT"       envDefault:"10s"`

	IdentityStore string `env:"CIRCLE_IDENTITY_STORE" envDefault:"file"`
	IdentityPath  string `env:"CIRCLE_IDENTITY_FILE"`
	Profile       string `env:"CIRCLE_PROFILE"        envDefault:"default"`
	RedisAddr     string `env:"REDIS_ADDR"            envDefault:"localhost:6379"`

	NATSURL     string `env:"NATS_URL"`
	MetricsAddr string `env:"CIRCLE_METRICS_ADDR"`

	LogLevel  string `env:"CIRCLE_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"CIRCLE_LOG_FORMAT" envDefault:"console"`

	QuestionsFile string `env:"CIRCLE_QUESTIONS_FILE"`
	SubmitFailure string `env:"CIRCLE_SUBMIT_FAILURE" envDefault:"continue"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.IdentityPath == "" {
		cfg.IdentityPath = defaultIdentityPath()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	switch c.IdentityStore {
	case IdentityFile, IdentityRedis:
	default:
		return fmt.Errorf("config: CIRCLE_IDENTITY_STORE must be %q or %q, got %q", IdentityFile, IdentityRedis, c.IdentityStore)
	}
	switch c.SubmitFailure {
	case SubmitContinue, SubmitBlock:
	default:
		return fmt.Errorf("config: CIRCLE_SUBMIT_FAILURE must be %q or %q, got %q", SubmitContinue, SubmitBlock, c.SubmitFailure)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("config: CIRCLE_RECONNECT_DELAY must be positive")
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("config: CIRCLE_HEARTBEAT must not be negative")
	}
	if c.APIBaseURL == "" || c.BrokerURL == "" {
		return fmt.Errorf("config: CIRCLE_API_URL and CIRCLE_BROKER_URL are required")
	}
	return nil
}

func defaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "lyfcircle", "userIdStorage.json")
}
