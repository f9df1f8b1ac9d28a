package main

import (
	"context"
	"errors"
	"net/http"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/config"
)

func newTestStack(t *testing.T) *config.Stack {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	stack, err := cfg.Build(context.Background(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })
	return stack
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestRouter_Healthz(t *testing.T) {
	stack := newTestStack(t)
	router := NewRouter(stack, nil)

	assert.Equal(t, http.StatusOK, get(t, router, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/healthz/ready").Code)

	stack.Ready = func(context.Context) error { return errors.New("database down") }
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/healthz/ready").Code)
}

func TestRouter_Metrics(t *testing.T) {
	rr := get(t, NewRouter(newTestStack(t), nil), "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_Pages(t *testing.T) {
	stack := newTestStack(t)
	router := NewRouter(stack, nil)

	page, err := stack.Service.CreatePage(context.Background(), simplepages.CreatePageRequest{Title: "Home"})
	require.NoError(t, err)

	rr := get(t, router, "/pages/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), page.ID.String())

	rr = get(t, router, "/pages/"+page.ID.String()+"/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"title":"Home"`)
}

func TestDrainCounters_AppliesQueuedViews(t *testing.T) {
	cfg, err := config.Load(
		config.WithMemoryCounterQueue(64),
		config.WithCounterWorkers(1, 3, time.Millisecond),
	)
	require.NoError(t, err)
	stack, err := cfg.Build(context.Background(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })

	ctx := context.Background()
	page, err := stack.Service.CreatePage(ctx, simplepages.CreatePageRequest{Title: "Home"})
	require.NoError(t, err)
	video := &simplepages.Video{ContentBase: simplepages.ContentBase{Title: "V1"}, VideoURL: "http://x"}
	require.NoError(t, stack.Service.CreateContent(ctx, video))
	_, err = stack.Service.PlaceContent(ctx, simplepages.PlaceContentRequest{PageID: page.ID, Content: simplepages.RefOf(video)})
	require.NoError(t, err)

	const views = 20
	for i := 0; i < views; i++ {
		_, err := stack.Service.GetPageDetail(ctx, page.ID)
		require.NoError(t, err)
	}

	// Every job is still queued when the drain starts.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	done := make(chan struct{})
	go func() {
		defer close(done)
		stack.RunWorker(workerCtx)
	}()

	require.NoError(t, drainCounters(stack, done, stopWorker, 5*time.Second, slog.Default()))
	assert.NoError(t, workerCtx.Err(), "a drained worker is not cancelled")

	stored, err := stack.Service.GetContent(ctx, simplepages.RefOf(video))
	require.NoError(t, err)
	assert.Equal(t, int64(views), stored.Base().Counter)
}

func TestDrainCounters_CancelsAfterTimeout(t *testing.T) {
	stack := newTestStack(t)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-workerCtx.Done()
	}()

	err := drainCounters(stack, done, stopWorker, 10*time.Millisecond, slog.Default())
	assert.Error(t, err)
	assert.ErrorIs(t, workerCtx.Err(), context.Canceled)
}

func TestDrainCounters_SyncMode(t *testing.T) {
	stack := newTestStack(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		stack.RunWorker(context.Background())
	}()
	assert.NoError(t, drainCounters(stack, done, func() {}, time.Second, slog.Default()))
}
