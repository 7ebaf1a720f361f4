package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alertflow/alertflow/internal/push"
)

type Config struct {
	Server  ServerConfig
	DB      DatabaseConfig
	Push    PushConfig
	Sweep   SweepConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	RateLimit       int // requests per second, global
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Path string
}

type PushConfig struct {
	// MaxTokensPerBatch is the transport's per-call recipient ceiling.
	MaxTokensPerBatch int
	TopicPrefix       string
	ChunkWorkers      int
}

type SweepConfig struct {
	// Schedule is a cron expression for the background expiry sweep.
	Schedule string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			RateLimit:       getEnvInt("RATE_LIMIT_RPS", 5),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/alertflow.db"),
		},
		Push: PushConfig{
			MaxTokensPerBatch: getEnvInt("PUSH_MAX_TOKENS_PER_BATCH", push.MaxTokensPerSend),
			TopicPrefix:       getEnv("PUSH_TOPIC_PREFIX", "alerts_"),
			ChunkWorkers:      getEnvInt("PUSH_CHUNK_WORKERS", 2),
		},
		Sweep: SweepConfig{
			Schedule: getEnv("SWEEP_SCHEDULE", "@every 1h"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Push.MaxTokensPerBatch < 1 || c.Push.MaxTokensPerBatch > push.MaxTokensPerSend {
		return fmt.Errorf("push batch size must be in [1,%d]: %d", push.MaxTokensPerSend, c.Push.MaxTokensPerBatch)
	}
	if c.Push.ChunkWorkers < 1 {
		return fmt.Errorf("push chunk workers must be positive: %d", c.Push.ChunkWorkers)
	}

	if c.Sweep.Schedule == "" {
		return fmt.Errorf("sweep schedule must not be empty")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
