// Package queue is a small Redis-backed work queue with delayed retries and a
// dead-letter list. It carries the same topic/payload handlers as pkg/kafka so a
// deployment without brokers can still accept refresh requests.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Handler processes one payload. Topic selects which messages it receives.
type Handler interface {
	Topic() string
	Handle(ctx context.Context, payload []byte) error
}

// Option configures RedisQueue.
type Option func(*Config)

// Config holds queue configuration.
type Config struct {
	Prefix       string
	Workers      int
	RetryLimit   int
	RetryDelay   time.Duration
	PollTimeout  time.Duration
	PromoteEvery time.Duration
}

// WithPrefix sets the Redis key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Config) {
		if prefix != "" {
			c.Prefix = prefix
		}
	}
}

// WithWorkers sets how many goroutines pop messages.
func WithWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithRetry sets the attempt limit and the delay before each retry.
func WithRetry(limit int, delay time.Duration) Option {
	return func(c *Config) {
		if limit >= 0 {
			c.RetryLimit = limit
		}
		if delay > 0 {
			c.RetryDelay = delay
		}
	}
}

// Message is the stored envelope.
type Message struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}
