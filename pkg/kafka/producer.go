package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// ProducerOption configures Producer. Options write straight into the
// underlying kafka.Writer.
type ProducerOption func(*producerSettings)

type producerSettings struct {
	brokers     []string
	writer      *kafka.Writer
	compression string
	hashByKey   bool
}

func WithBrokers(brokers []string) ProducerOption {
	return func(s *producerSettings) { s.brokers = brokers }
}

// WithCompression selects gzip, snappy, lz4 or zstd. Unknown names mean gzip.
func WithCompression(name string) ProducerOption {
	return func(s *producerSettings) {
		if name != "" {
			s.compression = strings.ToLower(name)
		}
	}
}

// WithRequiredAcks sets the acknowledgement level (-1 = all in-sync replicas).
func WithRequiredAcks(acks int) ProducerOption {
	return func(s *producerSettings) { s.writer.RequiredAcks = kafka.RequiredAcks(acks) }
}

// WithMaxAttempts sets how often one batch is retried.
func WithMaxAttempts(n int) ProducerOption {
	return func(s *producerSettings) {
		if n > 0 {
			s.writer.MaxAttempts = n
		}
	}
}

// WithBatch bounds how many events wait, and for how long, before a flush.
func WithBatch(size int, linger time.Duration) ProducerOption {
	return func(s *producerSettings) {
		if size > 0 {
			s.writer.BatchSize = size
		}
		if linger > 0 {
			s.writer.BatchTimeout = linger
		}
	}
}

// WithTimeouts sets the writer's write and read timeouts. Zero keeps the default.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(s *producerSettings) {
		if write > 0 {
			s.writer.WriteTimeout = write
		}
		if read > 0 {
			s.writer.ReadTimeout = read
		}
	}
}

// WithHashByKey keeps every event of one price series on one partition.
func WithHashByKey(on bool) ProducerOption {
	return func(s *producerSettings) { s.hashByKey = on }
}

// Producer publishes values with a partition key. Writes are synchronous so
// Publish reports delivery failures.
type Producer struct {
	writer      *kafka.Writer
	compression string
}

// NewProducer creates a producer. No connection is made until the first write.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	s := &producerSettings{
		writer: &kafka.Writer{
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
			BatchSize:    100,
			BatchTimeout: 50 * time.Millisecond,
		},
		compression: "gzip",
		hashByKey:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.brokers) == 0 {
		return nil, errors.New("brokers are required")
	}

	w := s.writer
	w.Addr = kafka.TCP(s.brokers...)
	w.Compression = parseCompression(s.compression)
	w.Balancer = &kafka.LeastBytes{}
	if s.hashByKey {
		w.Balancer = &kafka.Hash{}
	}
	registerProducerMetrics()
	return &Producer{writer: w, compression: s.compression}, nil
}

// Publish sends one message to topic. Values other than []byte and string are
// JSON encoded. A trace id carried by ctx travels as the TraceHeader header.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any, headers ...kafka.Header) error {
	start := time.Now()
	v, err := encodeValue(value)
	if err != nil {
		return err
	}
	// copy: headers is often a shared package-level slice
	hs := append(make([]kafka.Header, 0, len(headers)+1), headers...)
	if id := TraceID(ctx); id != "" {
		hs = append(hs, kafka.Header{Key: TraceHeader, Value: []byte(id)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   v,
		Headers: hs,
		Time:    start,
	})
	producerStats.observe(topic, p.compression, len(v), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending batches and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return b, nil
}

func parseCompression(s string) kafka.Compression {
	switch strings.ToLower(s) {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerStats     *producerMetrics
	producerStatsOnce sync.Once
)

func registerProducerMetrics() {
	producerStatsOnce.Do(func() {
		producerStats = &producerMetrics{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pricepull_kafka_producer_messages_total",
				Help: "Messages published to Kafka by result",
			}, []string{"topic", "compression", "result"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pricepull_kafka_producer_bytes_total",
				Help: "Payload bytes published to Kafka",
			}, []string{"topic", "compression"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "pricepull_kafka_producer_publish_seconds",
				Help:    "Synchronous publish latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
}

func (m *producerMetrics) observe(topic, compression string, size int, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, compression, result).Inc()
	m.bytes.WithLabelValues(topic, compression).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
