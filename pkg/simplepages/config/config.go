package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/counters"
	"github.com/tendant/simple-pages/pkg/simplepages/repo/gormstore"
	"github.com/tendant/simple-pages/pkg/simplepages/repo/memory"
	repopg "github.com/tendant/simple-pages/pkg/simplepages/repo/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                 "8080",
		Environment:          "development",
		LogLevel:             "info",
		DatabaseType:         "memory",
		DBSchema:             "public",
		AutoMigrate:          true,
		CounterMode:          "sync",
		CounterQueue:         "memory",
		RedisAddr:            "localhost:6379",
		RedisQueueKey:        "simplepages:counters",
		CounterQueueBuffer:   1024,
		CounterWorkers:       counters.DefaultConcurrency,
		CounterMaxAttempts:   counters.DefaultMaxAttempts,
		CounterRetryInterval: counters.DefaultRetryInterval,
		PageSize:             simplepages.DefaultPageSize,
		MaxPageSize:          simplepages.MaxPageSize,
	}
}

// ServerConfig represents server configuration for the simple-pages service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string // debug, info, warn, error

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres", "sqlite"
	DBSchema     string // Postgres schema to use (default: public)
	AutoMigrate  bool

	// Counter configuration
	CounterMode          string // "sync" or "deferred"
	CounterQueue         string // "memory" or "redis", deferred mode only
	RedisAddr            string
	RedisQueueKey        string
	CounterQueueBuffer   int
	CounterWorkers       int
	CounterMaxAttempts   int
	CounterRetryInterval time.Duration

	// Listing
	PageSize    int
	MaxPageSize int
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return fmt.Errorf("database_type must be 'memory', 'postgres' or 'sqlite', got: %s", c.DatabaseType)
	}

	switch c.CounterMode {
	case "sync":
	case "deferred":
		if c.CounterQueue != "memory" && c.CounterQueue != "redis" {
			return fmt.Errorf("counter_queue must be 'memory' or 'redis', got: %s", c.CounterQueue)
		}
		if c.CounterQueue == "redis" && (c.RedisAddr == "" || c.RedisQueueKey == "") {
			return errors.New("redis_addr and redis_queue_key are required for the redis counter queue")
		}
		if c.CounterWorkers <= 0 {
			return errors.New("counter_workers must be positive")
		}
		if c.CounterMaxAttempts <= 0 {
			return errors.New("counter_max_attempts must be positive")
		}
	default:
		return fmt.Errorf("counter_mode must be 'sync' or 'deferred', got: %s", c.CounterMode)
	}

	if c.PageSize <= 0 || c.MaxPageSize < c.PageSize {
		return fmt.Errorf("invalid page sizes: page_size %d, max_page_size %d", c.PageSize, c.MaxPageSize)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}

	return nil
}

// SlogLevel returns the configured log level
func (c *ServerConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Stack is a wired service with the resources it owns.
type Stack struct {
	Service  simplepages.Service
	Registry *simplepages.Registry
	// Worker and Queue are nil in sync counter mode.
	Worker *counters.Worker
	Queue  counters.Queue
	// Ready reports whether the backing stores are reachable.
	Ready func(ctx context.Context) error

	closers []func() error
}

// RunWorker runs the counter worker pool until ctx is done. It returns
// immediately in sync mode.
func (s *Stack) RunWorker(ctx context.Context) {
	if s.Worker == nil {
		return
	}
	s.Worker.Run(ctx)
}

// Close releases the stack's resources in reverse order of creation.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Stack) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Build wires the repository, registry, counter dispatcher and service
// described by the configuration. reg receives the counter metrics and may
// be nil.
func (c *ServerConfig) Build(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*Stack, error) {
	if log == nil {
		log = slog.Default()
	}

	stack := &Stack{Ready: func(context.Context) error { return nil }}

	repo, stores, err := c.buildStorage(ctx, stack, log)
	if err != nil {
		_ = stack.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	registry, err := simplepages.NewRegistry(stores...)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.Registry = registry

	options := []simplepages.Option{
		simplepages.WithRepository(repo),
		simplepages.WithRegistry(registry),
		simplepages.WithLogger(log),
		simplepages.WithPageSizes(c.PageSize, c.MaxPageSize),
	}

	if c.CounterMode == "deferred" {
		queue, err := c.buildQueue(ctx, stack, log)
		if err != nil {
			_ = stack.Close()
			return nil, fmt.Errorf("failed to build counter queue: %w", err)
		}
		stack.Queue = queue
		stack.Worker = counters.NewWorker(queue, registry,
			counters.WithLogger(log),
			counters.WithMetrics(counters.NewMetrics(reg)),
			counters.WithConcurrency(c.CounterWorkers),
			counters.WithMaxAttempts(c.CounterMaxAttempts),
			counters.WithRetryInterval(c.CounterRetryInterval, counters.DefaultMaxInterval),
		)
		options = append(options, simplepages.WithCounterDispatcher(counters.NewDispatcher(queue, log)))
	}

	service, err := simplepages.New(options...)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.Service = service
	return stack, nil
}

// buildStorage creates the Repository and KindStores for the database type
func (c *ServerConfig) buildStorage(ctx context.Context, stack *Stack, log *slog.Logger) (simplepages.Repository, []simplepages.KindStore, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), memory.NewKindStores(), nil

	case "postgres":
		pool, err := c.openPostgres(ctx)
		if err != nil {
			return nil, nil, err
		}
		stack.onClose(func() error { pool.Close(); return nil })
		stack.Ready = pool.Ping

		if c.AutoMigrate {
			if c.DBSchema != "" {
				if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{c.DBSchema}.Sanitize()); err != nil {
					return nil, nil, fmt.Errorf("failed to create schema %s: %w", c.DBSchema, err)
				}
			}
			if err := repopg.EnsureSchema(ctx, pool); err != nil {
				return nil, nil, err
			}
			log.Info("postgres schema ready", "schema", c.DBSchema)
		}
		return repopg.NewWithPool(pool), repopg.NewKindStores(pool), nil

	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "simplepages.db"
		}
		gormLog := logger.Default.LogMode(logger.Silent)
		if c.SlogLevel() <= slog.LevelDebug {
			gormLog = logger.Default.LogMode(logger.Info)
		}
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLog})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite %s: %w", dsn, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		// SQLite allows one writer; a single connection serializes transactions.
		sqlDB.SetMaxOpenConns(1)
		stack.onClose(sqlDB.Close)
		stack.Ready = sqlDB.PingContext

		if c.AutoMigrate {
			if err := gormstore.AutoMigrate(db); err != nil {
				return nil, nil, err
			}
			log.Info("sqlite schema ready", "dsn", dsn)
		}
		return gormstore.New(db), gormstore.NewKindStores(db), nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	schema := c.DBSchema
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if schema == "" {
			return nil
		}
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// buildQueue creates the counter queue for deferred mode
func (c *ServerConfig) buildQueue(ctx context.Context, stack *Stack, log *slog.Logger) (counters.Queue, error) {
	switch c.CounterQueue {
	case "memory":
		queue := counters.NewMemoryQueue(c.CounterQueueBuffer)
		stack.onClose(queue.Close)
		return queue, nil

	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        c.RedisAddr,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		stack.onClose(rdb.Close)

		queue := counters.NewRedisQueue(rdb, c.RedisQueueKey, counters.WithQueueLogger(log))
		stack.onClose(queue.Close)

		recovered, err := queue.Recover(ctx)
		if err != nil {
			return nil, err
		}
		if recovered > 0 {
			log.Info("requeued unacknowledged counter jobs", "count", recovered)
		}

		storeReady := stack.Ready
		stack.Ready = func(ctx context.Context) error {
			if err := storeReady(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		}
		return queue, nil

	default:
		return nil, fmt.Errorf("unsupported counter queue: %s", c.CounterQueue)
	}
}
