package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfig is the environment variable layout read by WithEnv.
type EnvConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	DatabaseType string `env:"DATABASE_TYPE" env-default:"memory"`
	DatabaseURL  string `env:"DATABASE_URL"`
	DBSchema     string `env:"CONTENT_DB_SCHEMA" env-default:"public"`
	AutoMigrate  bool   `env:"AUTO_MIGRATE" env-default:"true"`

	CounterMode          string        `env:"COUNTER_MODE" env-default:"sync"`
	CounterQueue         string        `env:"COUNTER_QUEUE" env-default:"memory"`
	RedisAddr            string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisQueueKey        string        `env:"REDIS_QUEUE_KEY" env-default:"simplepages:counters"`
	CounterQueueBuffer   int           `env:"COUNTER_QUEUE_BUFFER" env-default:"1024"`
	CounterWorkers       int           `env:"COUNTER_WORKERS" env-default:"2"`
	CounterMaxAttempts   int           `env:"COUNTER_MAX_ATTEMPTS" env-default:"3"`
	CounterRetryInterval time.Duration `env:"COUNTER_RETRY_INTERVAL" env-default:"1s"`

	PageSize    int `env:"PAGE_SIZE" env-default:"10"`
	MaxPageSize int `env:"MAX_PAGE_SIZE" env-default:"100"`
}

// WithEnv applies the environment variables described by EnvConfig.
// Unset variables take their env-default.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env EnvConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		c.Port = env.Port
		c.Environment = env.Environment
		c.LogLevel = env.LogLevel

		c.DatabaseType = env.DatabaseType
		c.DatabaseURL = env.DatabaseURL
		c.DBSchema = env.DBSchema
		c.AutoMigrate = env.AutoMigrate

		c.CounterMode = env.CounterMode
		c.CounterQueue = env.CounterQueue
		c.RedisAddr = env.RedisAddr
		c.RedisQueueKey = env.RedisQueueKey
		c.CounterQueueBuffer = env.CounterQueueBuffer
		c.CounterWorkers = env.CounterWorkers
		c.CounterMaxAttempts = env.CounterMaxAttempts
		c.CounterRetryInterval = env.CounterRetryInterval

		c.PageSize = env.PageSize
		c.MaxPageSize = env.MaxPageSize
		return nil
	}
}

// FromEnv loads the configuration from the environment
func FromEnv() (*ServerConfig, error) {
	return Load(WithEnv())
}

// EnvHelp returns the description of every environment variable.
func EnvHelp() (string, error) {
	var env EnvConfig
	return cleanenv.GetDescription(&env, nil)
}
