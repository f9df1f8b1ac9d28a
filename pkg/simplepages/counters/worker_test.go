package counters_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/counters"
	"github.com/tendant/simple-pages/pkg/simplepages/repo/memory"
)

// flakyStore fails the first failures increments, then delegates.
type flakyStore struct {
	simplepages.KindStore
	failures int32
	calls    atomic.Int32
}

func (s *flakyStore) IncrementCounters(ctx context.Context, deltas map[uuid.UUID]int64) (map[uuid.UUID]int64, error) {
	if s.calls.Add(1) <= s.failures {
		return nil, errors.New("connection reset")
	}
	return s.KindStore.IncrementCounters(ctx, deltas)
}

func newVideo(t *testing.T, store simplepages.KindStore) *simplepages.Video {
	t.Helper()
	video := &simplepages.Video{
		ContentBase: simplepages.ContentBase{ID: uuid.New(), Title: "clip", CreatedAt: time.Now().UTC()},
		VideoURL:    "http://example.com/clip.mp4",
	}
	require.NoError(t, store.Create(context.Background(), video))
	return video
}

func counterOf(t *testing.T, store simplepages.KindStore, id uuid.UUID) int64 {
	t.Helper()
	found, err := store.BulkFetch(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	require.Contains(t, found, id)
	return found[id].Base().Counter
}

func newRegistry(t *testing.T, stores ...simplepages.KindStore) *simplepages.Registry {
	t.Helper()
	registry, err := simplepages.NewRegistry(stores...)
	require.NoError(t, err)
	return registry
}

func TestWorker_ProcessRetriesUntilSuccess(t *testing.T) {
	store := &flakyStore{KindStore: memory.NewKindStore(simplepages.KindVideo), failures: 2}
	video := newVideo(t, store)
	metrics := counters.NewMetrics(prometheus.NewRegistry())

	worker := counters.NewWorker(nil, newRegistry(t, store),
		counters.WithMaxAttempts(3),
		counters.WithRetryInterval(time.Millisecond, 5*time.Millisecond),
		counters.WithMetrics(metrics),
	)

	job := counters.NewJob(simplepages.CounterGroup{Kind: simplepages.KindVideo, Deltas: map[uuid.UUID]int64{video.ID: 2}})
	require.NoError(t, worker.Process(context.Background(), job))

	assert.Equal(t, int32(3), store.calls.Load())
	assert.Equal(t, int64(2), counterOf(t, store, video.ID))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Retries.WithLabelValues("Video")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Jobs.WithLabelValues("Video", counters.ResultSucceeded)))
}

func TestWorker_ProcessExhaustsAttempts(t *testing.T) {
	store := &flakyStore{KindStore: memory.NewKindStore(simplepages.KindVideo), failures: 100}
	video := newVideo(t, store)
	metrics := counters.NewMetrics(nil)

	var reported *counters.FailureError
	worker := counters.NewWorker(nil, newRegistry(t, store),
		counters.WithMaxAttempts(3),
		counters.WithRetryInterval(time.Millisecond, 2*time.Millisecond),
		counters.WithMetrics(metrics),
		counters.WithOnFailure(func(f *counters.FailureError) { reported = f }),
	)

	job := counters.NewJob(simplepages.CounterGroup{Kind: simplepages.KindVideo, Deltas: map[uuid.UUID]int64{video.ID: 1}})
	err := worker.Process(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, simplepages.ErrCounterUpdateFailure)

	var failure *counters.FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, job.ID, failure.Job.ID)
	assert.Same(t, failure, reported)

	assert.Equal(t, int32(3), store.calls.Load())
	assert.Equal(t, int64(0), counterOf(t, store, video.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Jobs.WithLabelValues("Video", counters.ResultFailed)))
}

func TestWorker_ProcessSkipsUnknownKind(t *testing.T) {
	metrics := counters.NewMetrics(nil)
	worker := counters.NewWorker(nil, newRegistry(t), counters.WithMetrics(metrics))

	job := counters.NewJob(simplepages.CounterGroup{Kind: "Podcast", Deltas: map[uuid.UUID]int64{uuid.New(): 1}})
	assert.NoError(t, worker.Process(context.Background(), job))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Jobs.WithLabelValues("Podcast", counters.ResultSkipped)))
}

func TestWorker_RunDrainsQueue(t *testing.T) {
	videos := memory.NewKindStore(simplepages.KindVideo)
	texts := memory.NewKindStore(simplepages.KindText)
	registry := newRegistry(t, videos, texts)

	video := newVideo(t, videos)
	text := &simplepages.Text{
		ContentBase: simplepages.ContentBase{ID: uuid.New(), Title: "note", CreatedAt: time.Now().UTC()},
		Body:        "hello",
	}
	require.NoError(t, texts.Create(context.Background(), text))

	queue := counters.NewMemoryQueue(64)
	dispatcher := counters.NewDispatcher(queue, nil)

	const views = 10
	for i := 0; i < views; i++ {
		snapshot, err := dispatcher.Dispatch(context.Background(), []simplepages.ContentRef{
			{Kind: simplepages.KindVideo, ID: video.ID},
			{Kind: simplepages.KindText, ID: text.ID},
			{Kind: simplepages.KindVideo, ID: video.ID},
		})
		require.NoError(t, err)
		assert.Nil(t, snapshot, "deferred dispatch returns no counters")
	}
	assert.Equal(t, views*2, queue.Len(), "one job per kind per dispatch")

	worker := counters.NewWorker(queue, registry, counters.WithConcurrency(4))
	require.NoError(t, queue.Close())

	done := make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after the queue drained")
	}

	assert.Equal(t, int64(2*views), counterOf(t, videos, video.ID))
	assert.Equal(t, int64(views), counterOf(t, texts, text.ID))
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	queue := counters.NewMemoryQueue(1)
	worker := counters.NewWorker(queue, newRegistry(t))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	cancel()
	wg.Wait()
}

func TestWorker_IndependentKindRetries(t *testing.T) {
	videos := &flakyStore{KindStore: memory.NewKindStore(simplepages.KindVideo), failures: 100}
	texts := memory.NewKindStore(simplepages.KindText)
	registry := newRegistry(t, videos, texts)

	video := newVideo(t, videos)
	text := &simplepages.Text{
		ContentBase: simplepages.ContentBase{ID: uuid.New(), Title: "note", CreatedAt: time.Now().UTC()},
	}
	require.NoError(t, texts.Create(context.Background(), text))

	queue := counters.NewMemoryQueue(8)
	_, err := counters.NewDispatcher(queue, nil).Dispatch(context.Background(), []simplepages.ContentRef{
		{Kind: simplepages.KindVideo, ID: video.ID},
		{Kind: simplepages.KindText, ID: text.ID},
	})
	require.NoError(t, err)
	require.NoError(t, queue.Close())

	var failures atomic.Int32
	worker := counters.NewWorker(queue, registry,
		counters.WithConcurrency(1),
		counters.WithRetryInterval(time.Millisecond, time.Millisecond),
		counters.WithOnFailure(func(*counters.FailureError) { failures.Add(1) }),
	)
	worker.Run(context.Background())

	assert.Equal(t, int32(1), failures.Load())
	assert.Equal(t, int64(0), counterOf(t, videos, video.ID))
	assert.Equal(t, int64(1), counterOf(t, texts, text.ID), "a failing kind does not block the others")
}
