package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithLogLevel sets the slog level name
func WithLogLevel(level string) Option {
	return func(c *ServerConfig) error {
		c.LogLevel = level
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory", "postgres", "sqlite":
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'sqlite', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate toggles schema creation on Build
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithSyncCounters applies counter increments inside the page view
func WithSyncCounters() Option {
	return func(c *ServerConfig) error {
		c.CounterMode = "sync"
		return nil
	}
}

// WithMemoryCounterQueue defers counter increments to in-process workers
func WithMemoryCounterQueue(buffer int) Option {
	return func(c *ServerConfig) error {
		if buffer <= 0 {
			return fmt.Errorf("counter queue buffer must be positive")
		}
		c.CounterMode = "deferred"
		c.CounterQueue = "memory"
		c.CounterQueueBuffer = buffer
		return nil
	}
}

// WithRedisCounterQueue defers counter increments through a Redis list
func WithRedisCounterQueue(addr, key string) Option {
	return func(c *ServerConfig) error {
		if addr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		c.CounterMode = "deferred"
		c.CounterQueue = "redis"
		c.RedisAddr = addr
		if key != "" {
			c.RedisQueueKey = key
		}
		return nil
	}
}

// WithCounterWorkers sets the worker pool size, attempt limit and initial retry interval
func WithCounterWorkers(workers, maxAttempts int, retryInterval time.Duration) Option {
	return func(c *ServerConfig) error {
		if workers <= 0 || maxAttempts <= 0 {
			return fmt.Errorf("counter workers and attempts must be positive")
		}
		c.CounterWorkers = workers
		c.CounterMaxAttempts = maxAttempts
		if retryInterval > 0 {
			c.CounterRetryInterval = retryInterval
		}
		return nil
	}
}

// WithPageSizes sets the default and maximum listing page sizes
func WithPageSizes(size, max int) Option {
	return func(c *ServerConfig) error {
		c.PageSize = size
		c.MaxPageSize = max
		return nil
	}
}
