package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "generate", "secret", "provisioning", "password",
}

type Config struct {
	Port                     int      `env:"PORT" envDefault:"8080"`
	DatabaseURL              string   `env:"DATABASE_URL,required"`
	RedisURL                 string   `env:"REDIS_URL,required"`
	SharedSecret             string   `env:"PROVISIONING_SHARED_SECRET,required"`
	Prefix                   string   `env:"PROVISIONING_PREFIX" envDefault:"/_matrix/provision/v1"`
	PuppetWhitelist          []string `env:"PUPPET_WHITELIST" envSeparator:","`
	TelegramWorkerURL        string   `env:"TELEGRAM_WORKER_URL,required"`
	TelegramWorkerToken      string   `env:"TELEGRAM_WORKER_TOKEN"`
	RemoteCallTimeoutSeconds int      `env:"REMOTE_CALL_TIMEOUT_SECONDS" envDefault:"30"`
	PhaseRateLimitPerMin     int      `env:"PHASE_RATE_LIMIT_PER_MIN" envDefault:"10"`
	SessionIdleTTLMinutes    int      `env:"SESSION_IDLE_TTL_MINUTES" envDefault:"60"`
	LogLevel                 string   `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) RemoteCallTimeout() time.Duration {
	return time.Duration(c.RemoteCallTimeoutSeconds) * time.Second
}

func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMinutes) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if !strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("PROVISIONING_PREFIX must start with '/'")
	}
	if c.RemoteCallTimeoutSeconds <= 0 {
		return fmt.Errorf("REMOTE_CALL_TIMEOUT_SECONDS must be positive")
	}

	if isProduction {
		if err := validateSecret("PROVISIONING_SHARED_SECRET", c.SharedSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.TelegramWorkerToken == "" {
			log.Warn().Msg("TELEGRAM_WORKER_TOKEN is empty in production: worker calls are unauthenticated")
		}
	}

	if len(c.PuppetWhitelist) == 0 {
		log.Warn().Msg("PUPPET_WHITELIST is empty: every provisioning request will be rejected")
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
