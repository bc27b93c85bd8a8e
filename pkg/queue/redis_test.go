package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	topic string
	fail  error

	mu   sync.Mutex
	seen []string
}

func (r *recorder) Topic() string { return r.topic }

func (r *recorder) Handle(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, string(payload))
	return r.fail
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func newQueue(t *testing.T, opts ...Option) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := NewRedisQueue(client, append([]Option{WithPrefix("test")}, opts...)...)
	q.cfg.PollTimeout = 50 * time.Millisecond
	return q, mr
}

func TestEnqueueAndHandle(t *testing.T) {
	q, _ := newQueue(t)
	h := &recorder{topic: "price.refresh"}
	q.RegisterHandler(h)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "price.refresh", map[string]string{"part": "Pork_Belly"}))
	require.NoError(t, q.Enqueue(ctx, "price.refresh", json.RawMessage(`{"part":"Beef_Ribeye"}`)))
	n, err := q.Pending(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	for i := 0; i < 2; i++ {
		took, err := q.popOne(ctx)
		require.NoError(t, err)
		require.True(t, took)
	}
	require.Equal(t, []string{`{"part":"Pork_Belly"}`, `{"part":"Beef_Ribeye"}`}, h.calls())

	took, err := q.popOne(ctx)
	require.NoError(t, err)
	require.False(t, took)
}

func TestEnqueueRejectsInvalidJSON(t *testing.T) {
	q, _ := newQueue(t)
	require.Error(t, q.Enqueue(context.Background(), "x", []byte("{nope")))
}

func TestRetryThenDeadLetter(t *testing.T) {
	q, _ := newQueue(t, WithRetry(1, time.Minute))
	now := time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	h := &recorder{topic: "price.refresh", fail: errors.New("feed down")}
	q.RegisterHandler(h)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "price.refresh", map[string]string{"part": "Pork_Neck"}))
	_, err := q.popOne(ctx)
	require.NoError(t, err)

	// not due yet
	moved, err := q.promoteDue(ctx)
	require.NoError(t, err)
	require.Zero(t, moved)

	now = now.Add(time.Minute)
	moved, err = q.promoteDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, moved)

	_, err = q.popOne(ctx)
	require.NoError(t, err)
	require.Len(t, h.calls(), 2)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, 2, dead[0].Attempts)
	require.Equal(t, "price.refresh", dead[0].Topic)
	require.NotEmpty(t, dead[0].ID)
}

func TestUnknownTopicGoesToDeadLetters(t *testing.T) {
	q, _ := newQueue(t)
	q.RegisterHandler(&recorder{topic: "price.refresh"})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "other", map[string]int{"n": 1}))
	_, err := q.popOne(ctx)
	require.NoError(t, err)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Zero(t, dead[0].Attempts)
}

func TestStartStop(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	require.Error(t, q.Start(ctx), "no handlers")

	h := &recorder{topic: "price.refresh"}
	q.RegisterHandler(h)
	require.NoError(t, q.Start(ctx))
	require.Error(t, q.Start(ctx), "already running")

	require.NoError(t, q.Enqueue(ctx, "price.refresh", map[string]string{"part": "Pork_Belly"}))
	require.Eventually(t, func() bool { return len(h.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(stopCtx))
	require.NoError(t, q.Stop(stopCtx))
}

func TestStartFailsWithoutRedis(t *testing.T) {
	q, mr := newQueue(t)
	q.RegisterHandler(&recorder{topic: "price.refresh"})
	mr.Close()
	require.Error(t, q.Start(context.Background()))
}
