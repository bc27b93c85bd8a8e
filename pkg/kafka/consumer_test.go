package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	failures int
	calls    int
	traces   []string
}

func (h *flakyHandler) Topic() string { return "price.refresh" }

func (h *flakyHandler) Handle(ctx context.Context, _ []byte) error {
	h.calls++
	h.traces = append(h.traces, TraceID(ctx))
	if h.calls <= h.failures {
		return errors.New("feed down")
	}
	return nil
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func newTestConsumer(t *testing.T, retries int) (*Consumer, *captureWriter) {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	dlq := &captureWriter{}
	c.dlq = dlq
	c.WithConsumerHook(TraceHook())
	return c, dlq
}

func refreshMessage() kafka.Message {
	return kafka.Message{
		Topic:   "price.refresh",
		Value:   []byte(`{"part":"Pork_Belly"}`),
		Headers: []kafka.Header{{Key: TraceHeader, Value: []byte("req-7")}},
	}
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	c, dlq := newTestConsumer(t, 3)
	h := &flakyHandler{failures: 2}

	require.True(t, c.deliver(h, refreshMessage()))
	require.Equal(t, 3, h.calls)
	require.Equal(t, []string{"req-7", "req-7", "req-7"}, h.traces)
	require.Empty(t, dlq.msgs)
}

func TestDeliverDeadLettersAfterRetries(t *testing.T) {
	c, dlq := newTestConsumer(t, 1)
	h := &flakyHandler{failures: 10}
	km := refreshMessage()

	require.True(t, c.deliver(h, km), "given-up messages are committed")
	require.Equal(t, 2, h.calls)
	require.Len(t, dlq.msgs, 1)

	dead := dlq.msgs[0]
	require.Equal(t, km.Value, dead.Value)
	headers := map[string]string{}
	for _, hd := range dead.Headers {
		headers[hd.Key] = string(hd.Value)
	}
	require.Equal(t, "price.refresh", headers["source_topic"])
	require.Equal(t, "feed down", headers["error"])
	require.Equal(t, "req-7", headers[TraceHeader])
	require.Len(t, km.Headers, 1, "original headers untouched")
}

func TestDeliverStopsDuringBackoff(t *testing.T) {
	c, dlq := newTestConsumer(t, 5)
	c.cfg.BackoffMin, c.cfg.BackoffMax = time.Hour, time.Hour
	close(c.stop)

	require.False(t, c.deliver(&flakyHandler{failures: 10}, refreshMessage()))
	require.Empty(t, dlq.msgs)
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "price.refresh" }
func (panicHandler) Handle(context.Context, []byte) error { panic("bad payload") }

func TestDeliverRecoversHandlerPanic(t *testing.T) {
	c, dlq := newTestConsumer(t, 0)
	require.True(t, c.deliver(panicHandler{}, refreshMessage()))
	require.Len(t, dlq.msgs, 1)
}

func TestStartNeedsHandlers(t *testing.T) {
	c, _ := newTestConsumer(t, 0)
	require.Error(t, c.Start())
}
