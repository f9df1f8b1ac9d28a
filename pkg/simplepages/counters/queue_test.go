package counters_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/counters"
)

func TestJob_JSONKeepsDeltas(t *testing.T) {
	id := uuid.New()
	job := counters.NewJob(simplepages.CounterGroup{Kind: simplepages.KindAudio, Deltas: map[uuid.UUID]int64{id: 3}})

	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded counters.Job
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, simplepages.KindAudio, decoded.Kind)
	assert.Equal(t, map[uuid.UUID]int64{id: 3}, decoded.Deltas)
}

func TestMemoryQueue_FullAndClosed(t *testing.T) {
	ctx := context.Background()
	queue := counters.NewMemoryQueue(1)

	require.NoError(t, queue.Publish(ctx, counters.Job{ID: uuid.New()}))
	assert.ErrorIs(t, queue.Publish(ctx, counters.Job{ID: uuid.New()}), counters.ErrQueueFull)

	require.NoError(t, queue.Close())
	assert.ErrorIs(t, queue.Publish(ctx, counters.Job{ID: uuid.New()}), counters.ErrQueueClosed)

	// Pending jobs are still delivered after Close.
	delivery, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.NoError(t, delivery.Ack(ctx))

	_, err = queue.Receive(ctx)
	assert.ErrorIs(t, err, counters.ErrQueueClosed)
	assert.NoError(t, queue.Close())
}

func TestMemoryQueue_ReceiveHonorsContext(t *testing.T) {
	queue := counters.NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := queue.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func newRedisQueue(t *testing.T) (*counters.RedisQueue, *goredis.Client) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })

	key := "simplepages:test:" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(context.Background(), key, key+":processing") })
	return counters.NewRedisQueue(rdb, key, counters.WithPollTimeout(100*time.Millisecond)), rdb
}

func TestRedisQueue_AckAndRecover(t *testing.T) {
	ctx := context.Background()
	queue, _ := newRedisQueue(t)

	first := counters.Job{ID: uuid.New(), Kind: simplepages.KindVideo, Deltas: map[uuid.UUID]int64{uuid.New(): 1}}
	second := counters.Job{ID: uuid.New(), Kind: simplepages.KindText, Deltas: map[uuid.UUID]int64{uuid.New(): 2}}
	require.NoError(t, queue.Publish(ctx, first))
	require.NoError(t, queue.Publish(ctx, second))

	delivery, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, delivery.Job.ID, "jobs are received in publish order")
	assert.Equal(t, first.Deltas, delivery.Job.Deltas)
	require.NoError(t, delivery.Ack(ctx))

	// Received but never acknowledged, as after a crash.
	unacked, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, unacked.Job.ID)

	inFlight, err := queue.InFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inFlight)

	moved, err := queue.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	again, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, again.Job.ID)
	require.NoError(t, again.Ack(ctx))

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	inFlight, err = queue.InFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inFlight)
}

func TestRedisQueue_DropsMalformedJobs(t *testing.T) {
	ctx := context.Background()
	queue, rdb := newRedisQueue(t)
	key := queue.Key()

	require.NoError(t, rdb.LPush(ctx, key, "{not json").Err())
	valid := counters.Job{ID: uuid.New(), Kind: simplepages.KindVideo, Deltas: map[uuid.UUID]int64{uuid.New(): 1}}
	require.NoError(t, queue.Publish(ctx, valid))

	delivery, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, valid.ID, delivery.Job.ID)

	inFlight, err := queue.InFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inFlight, "the malformed payload is not left in flight")

	require.NoError(t, delivery.Ack(ctx))
	moved, err := queue.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
}

func TestRedisQueue_Close(t *testing.T) {
	queue, _ := newRedisQueue(t)
	require.NoError(t, queue.Close())

	_, err := queue.Receive(context.Background())
	assert.ErrorIs(t, err, counters.ErrQueueClosed)
	assert.ErrorIs(t, queue.Publish(context.Background(), counters.Job{}), counters.ErrQueueClosed)
}
