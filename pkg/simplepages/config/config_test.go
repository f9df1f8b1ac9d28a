package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "sync", cfg.CounterMode)
	assert.Equal(t, 3, cfg.CounterMaxAttempts)
	assert.Equal(t, time.Second, cfg.CounterRetryInterval)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, 100, cfg.MaxPageSize)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"postgres without url", []Option{func(c *ServerConfig) error { c.DatabaseType = "postgres"; return nil }}},
		{"unknown database", []Option{func(c *ServerConfig) error { c.DatabaseType = "mysql"; return nil }}},
		{"unknown counter mode", []Option{func(c *ServerConfig) error { c.CounterMode = "later"; return nil }}},
		{"unknown queue", []Option{func(c *ServerConfig) error { c.CounterMode = "deferred"; c.CounterQueue = "kafka"; return nil }}},
		{"page size above max", []Option{WithPageSizes(50, 20)}},
		{"bad log level", []Option{WithLogLevel("loud")}},
		{"empty port", []Option{WithPort("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_URL", "/tmp/pages.db")
	t.Setenv("COUNTER_MODE", "deferred")
	t.Setenv("COUNTER_QUEUE", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("COUNTER_RETRY_INTERVAL", "250ms")
	t.Setenv("COUNTER_WORKERS", "4")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("AUTO_MIGRATE", "false")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "/tmp/pages.db", cfg.DatabaseURL)
	assert.Equal(t, "deferred", cfg.CounterMode)
	assert.Equal(t, "redis", cfg.CounterQueue)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "simplepages:counters", cfg.RedisQueueKey)
	assert.Equal(t, 250*time.Millisecond, cfg.CounterRetryInterval)
	assert.Equal(t, 4, cfg.CounterWorkers)
	assert.Equal(t, 25, cfg.PageSize)
	assert.False(t, cfg.AutoMigrate)
}

func TestWithEnv_InvalidValue(t *testing.T) {
	t.Setenv("COUNTER_WORKERS", "many")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestEnvHelp_ListsVariables(t *testing.T) {
	help, err := EnvHelp()
	require.NoError(t, err)
	assert.Contains(t, help, "COUNTER_MODE")
	assert.Contains(t, help, "DATABASE_URL")
}

// exercise creates a page with one video and views it once.
func exercise(t *testing.T, stack *Stack) (*simplepages.PageDetail, *simplepages.Video) {
	t.Helper()
	ctx := context.Background()
	svc := stack.Service

	page, err := svc.CreatePage(ctx, simplepages.CreatePageRequest{Title: "Home"})
	require.NoError(t, err)
	video := &simplepages.Video{ContentBase: simplepages.ContentBase{Title: "V1"}, VideoURL: "http://x"}
	require.NoError(t, svc.CreateContent(ctx, video))
	_, err = svc.PlaceContent(ctx, simplepages.PlaceContentRequest{PageID: page.ID, Content: simplepages.RefOf(video)})
	require.NoError(t, err)

	detail, err := svc.GetPageDetail(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	return detail, video
}

func TestBuild_MemorySync(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	stack, err := cfg.Build(context.Background(), nil, nil)
	require.NoError(t, err)
	defer stack.Close()

	assert.Nil(t, stack.Worker)
	assert.Equal(t, []simplepages.Kind{simplepages.KindVideo, simplepages.KindAudio, simplepages.KindText}, stack.Registry.Kinds())
	require.NoError(t, stack.Ready(context.Background()))

	detail, _ := exercise(t, stack)
	assert.Equal(t, int64(1), detail.Items[0].Counter)
}

func TestBuild_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")
	cfg, err := Load(WithDatabase("sqlite", path))
	require.NoError(t, err)

	stack, err := cfg.Build(context.Background(), nil, nil)
	require.NoError(t, err)
	defer stack.Close()
	require.NoError(t, stack.Ready(context.Background()))

	detail, video := exercise(t, stack)
	assert.Equal(t, int64(1), detail.Items[0].Counter)

	stored, err := stack.Service.GetContent(context.Background(), simplepages.RefOf(video))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Base().Counter)
}

func TestBuild_MemoryDeferred(t *testing.T) {
	cfg, err := Load(
		WithMemoryCounterQueue(16),
		WithCounterWorkers(1, 3, time.Millisecond),
	)
	require.NoError(t, err)

	stack, err := cfg.Build(context.Background(), nil, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, stack.Worker)

	detail, video := exercise(t, stack)
	assert.Equal(t, int64(0), detail.Items[0].Counter, "deferred views render the pre-view counter")

	done := make(chan struct{})
	go func() {
		stack.RunWorker(context.Background())
		close(done)
	}()
	// Closing the memory queue lets the worker drain it and stop.
	require.NoError(t, stack.Close())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	stored, err := stack.Service.GetContent(context.Background(), simplepages.RefOf(video))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Base().Counter)
}
