package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	applogger "PricePull/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps pending messages in a list, delayed retries in a sorted set
// scored by due time, and exhausted messages in a dead-letter list.
type RedisQueue struct {
	cfg      *Config
	client   *redis.Client
	handlers map[string]Handler
	l        *applogger.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedisQueue creates a queue on an existing Redis client. The client is
// shared and is not closed by Stop.
func NewRedisQueue(client *redis.Client, opts ...Option) *RedisQueue {
	cfg := &Config{
		Prefix:       "pricepull:queue",
		Workers:      1,
		RetryLimit:   3,
		RetryDelay:   10 * time.Second,
		PollTimeout:  time.Second,
		PromoteEvery: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &RedisQueue{
		cfg:      cfg,
		client:   client,
		handlers: make(map[string]Handler),
		l:        applogger.Nop(),
		now:      time.Now,
	}
}

// SetLogger injects a structured logger.
func (q *RedisQueue) SetLogger(l *applogger.Logger) {
	if l != nil {
		q.l = l
	}
}

// RegisterHandler registers h for its topic. Call before Start.
func (q *RedisQueue) RegisterHandler(h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.handlers[h.Topic()]; ok {
		q.l.Warn("queue handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	q.handlers[h.Topic()] = h
}

// Enqueue appends a message for topic. payload is JSON-encoded unless it
// already is raw JSON.
func (q *RedisQueue) Enqueue(ctx context.Context, topic string, payload any) error {
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return errors.New("payload is not valid json")
	}

	msg := Message{
		ID:         uuid.NewString(),
		Topic:      topic,
		Payload:    raw,
		EnqueuedAt: q.now().UTC(),
	}
	return q.push(ctx, q.pendingKey(), msg)
}

// Start pings Redis and launches the workers and the retry promoter.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}
	if len(q.handlers) == 0 {
		return errors.New("no handlers registered")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	q.cancel = stop
	q.running = true

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}
	q.wg.Add(1)
	go q.promoter(runCtx)

	q.l.Info("redis queue started",
		applogger.Int("workers", q.cfg.Workers),
		applogger.String("prefix", q.cfg.Prefix),
	)
	return nil
}

// Stop cancels the workers and waits for them or for ctx.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.l.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Pending reports the number of messages waiting to be handled.
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pendingKey()).Result()
}

// DeadLetters returns the messages that ran out of attempts, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context) ([]Message, error) {
	vals, err := q.client.LRange(ctx, q.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(vals))
	for _, v := range vals {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (q *RedisQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		if _, err := q.popOne(ctx); err != nil && ctx.Err() == nil {
			q.l.Warn("queue pop failed", applogger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(q.cfg.PollTimeout):
			}
		}
	}
}

// popOne waits up to PollTimeout for a message and handles it. It reports
// whether a message was taken.
func (q *RedisQueue) popOne(ctx context.Context) (bool, error) {
	res, err := q.client.BRPop(ctx, q.cfg.PollTimeout, q.pendingKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, fmt.Errorf("brpop: %w", err)
	}
	if len(res) < 2 {
		return false, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		q.l.Error("queue message undecodable", applogger.Error(err))
		return true, nil
	}
	q.process(ctx, msg)
	return true, nil
}

func (q *RedisQueue) process(ctx context.Context, msg Message) {
	q.mu.Lock()
	h, ok := q.handlers[msg.Topic]
	q.mu.Unlock()
	if !ok {
		q.l.Error("no handler for topic", applogger.String("topic", msg.Topic), applogger.String("id", msg.ID))
		q.deadLetter(msg)
		return
	}

	err := h.Handle(ctx, msg.Payload)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// shutting down; put it back untouched
		if perr := q.push(context.Background(), q.pendingKey(), msg); perr != nil {
			q.l.Error("queue requeue failed", applogger.String("id", msg.ID), applogger.Error(perr))
		}
		return
	}

	msg.Attempts++
	q.l.Warn("queue message failed",
		applogger.String("id", msg.ID),
		applogger.String("topic", msg.Topic),
		applogger.Int("attempt", msg.Attempts),
		applogger.Error(err),
	)
	if msg.Attempts > q.cfg.RetryLimit {
		q.deadLetter(msg)
		return
	}
	q.scheduleRetry(msg)
}

func (q *RedisQueue) scheduleRetry(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		q.l.Error("marshal retry", applogger.Error(err))
		return
	}
	due := q.now().Add(q.cfg.RetryDelay).UnixMilli()
	if err := q.client.ZAdd(context.Background(), q.retryKey(), redis.Z{Score: float64(due), Member: b}).Err(); err != nil {
		q.l.Error("zadd retry", applogger.Error(err))
	}
}

func (q *RedisQueue) deadLetter(msg Message) {
	if err := q.push(context.Background(), q.deadKey(), msg); err != nil {
		q.l.Error("lpush dlq", applogger.Error(err))
	}
}

func (q *RedisQueue) promoter(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.PromoteEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
				q.l.Warn("retry promotion failed", applogger.Error(err))
			}
		}
	}
}

// promoteDue moves retries whose due time has passed back onto the pending
// list. Only the caller whose ZREM succeeds moves a member, so several
// instances can share the queue.
func (q *RedisQueue) promoteDue(ctx context.Context) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore: %w", err)
	}

	moved := 0
	for _, member := range due {
		n, err := q.client.ZRem(ctx, q.retryKey(), member).Result()
		if err != nil {
			return moved, fmt.Errorf("zrem: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.pendingKey(), member).Err(); err != nil {
			return moved, fmt.Errorf("lpush: %w", err)
		}
		moved++
	}
	return moved, nil
}

func (q *RedisQueue) push(ctx context.Context, key string, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) pendingKey() string { return q.cfg.Prefix + ":messages" }
func (q *RedisQueue) retryKey() string   { return q.cfg.Prefix + ":retry" }
func (q *RedisQueue) deadKey() string    { return q.cfg.Prefix + ":dlq" }
