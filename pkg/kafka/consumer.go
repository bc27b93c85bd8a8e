package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	applogger "PricePull/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	// Lanes handle messages concurrently; one partition always maps to the
	// same lane, so per-partition order holds.
	Lanes      int
	LaneBuffer int
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DLQTopic   string
	MinBytes   int
	MaxBytes   int
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(id string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if id != "" {
			c.GroupID = id
		}
	}
}

// WithConsumerWorkers sets the number of handling lanes.
func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.Lanes = n
		}
	}
}

// WithConsumerBufferSize sets how many fetched messages may wait per lane.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.LaneBuffer = n
		}
	}
}

// WithConsumerRetry sets extra attempts after the first and the backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ names the topic that receives messages out of attempts.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

// Consumer reads every registered topic through one group reader per topic
// and hands messages to lanes.
type Consumer struct {
	cfg      *ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan kafka.Message
	dlq      messageWriter
	hook     ConsumerHook
	l        *applogger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	fetchWG  sync.WaitGroup
	laneWG   sync.WaitGroup
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewConsumer creates a consumer. Nothing connects until Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "pricepull",
		Lanes:      2,
		LaneBuffer: 16,
		RetryMax:   3,
		BackoffMin: 100 * time.Millisecond,
		BackoffMax: 5 * time.Second,
		MinBytes:   1,
		MaxBytes:   1e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		hook:     NoopHook{},
		l:        applogger.Nop(),
		stop:     make(chan struct{}),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	registerConsumerMetrics()
	return c, nil
}

// SetLogger injects a structured logger.
func (c *Consumer) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.l = l
	}
}

// WithConsumerHook installs lifecycle hooks (see HookChain).
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler registers handler for its topic. Call before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, dup := c.handlers[topic]; dup {
		c.l.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens the readers and launches the lanes.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}

	c.lanes = make([]chan kafka.Message, c.cfg.Lanes)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.LaneBuffer)
		c.laneWG.Add(1)
		go c.runLane(c.lanes[i])
	}
	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = r
		c.fetchWG.Add(1)
		go c.fetch(topic, r)
	}

	c.l.Info("kafka consumer started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("lanes", len(c.lanes)),
		applogger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop ends fetching, drains the lanes so their offsets still commit, then
// closes the readers and the DLQ writer.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		if err = wait(ctx, &c.fetchWG); err != nil {
			return
		}
		for _, lane := range c.lanes {
			close(lane)
		}
		err = wait(ctx, &c.laneWG)

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.l.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.l.Warn("kafka dlq close failed", applogger.Error(cerr))
			}
		}
		if err == nil {
			c.l.Info("kafka consumer stopped")
		}
	})
	return err
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("consumer stop: %w", ctx.Err())
	}
}

func (c *Consumer) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchWG.Done()
	for !c.stopping() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := r.FetchMessage(ctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		if err != nil {
			if c.stopping() {
				return
			}
			c.l.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			time.Sleep(c.cfg.BackoffMin)
			continue
		}

		lane := c.lanes[km.Partition%len(c.lanes)]
		// blocks while the lane is full: backpressure on the reader
		select {
		case lane <- km:
			consumerStats.depth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) runLane(in <-chan kafka.Message) {
	defer c.laneWG.Done()
	for km := range in {
		h, ok := c.handlers[km.Topic]
		if !ok {
			continue
		}
		start := time.Now()
		if c.deliver(h, km) {
			c.commit(km)
		}
		consumerStats.latency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
	}
}

// deliver runs the handler with retries and reports whether the offset may
// be committed. A message given up on (dead-lettered or dropped) is committed
// so it does not block its partition; one interrupted by Stop is not.
func (c *Consumer) deliver(h MessageHandler, km kafka.Message) (commit bool) {
	defer func() {
		if r := recover(); r != nil {
			consumerStats.results.WithLabelValues(km.Topic, "panic").Inc()
			c.l.Error("kafka handler panic", applogger.String("topic", km.Topic), applogger.Any("panic", r))
			c.deadLetter(km, fmt.Errorf("panic: %v", r))
			commit = true
		}
	}()

	attempts, err := c.attempt(h, km)
	switch {
	case err == nil:
		consumerStats.results.WithLabelValues(km.Topic, "ok").Inc()
		return true
	case errors.Is(err, errStopped):
		return false
	}

	consumerStats.results.WithLabelValues(km.Topic, "failed").Inc()
	c.l.Error("kafka message failed",
		applogger.String("topic", km.Topic),
		applogger.Int("partition", km.Partition),
		applogger.Int64("offset", km.Offset),
		applogger.Int("attempts", attempts),
		applogger.Error(err),
	)
	c.deadLetter(km, err)
	return true
}

var errStopped = errors.New("consumer stopping")

func (c *Consumer) attempt(h MessageHandler, km kafka.Message) (int, error) {
	for n := 1; ; n++ {
		ctx, hkm, data, err := c.hook.BeforeHandle(context.Background(), km.Topic, km, km.Value)
		if err != nil {
			return n, err
		}
		err = h.Handle(ctx, data)
		c.hook.AfterHandle(ctx, km.Topic, hkm, data, err)
		if err == nil || n > c.cfg.RetryMax {
			return n, err
		}
		c.hook.OnError(ctx, km.Topic, hkm, data, err)

		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, n)):
		case <-c.stop:
			return n, errStopped
		}
	}
}

func (c *Consumer) deadLetter(km kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	headers := append(make([]kafka.Header, 0, len(km.Headers)+2), km.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Key:     km.Key,
		Value:   km.Value,
		Time:    time.Now(),
		Headers: headers,
	})
	if err != nil {
		c.l.Error("kafka dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
	}
}

func (c *Consumer) commit(km kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	var err error
	for n := 1; n <= 3; n++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, n))
	}
	c.l.Error("kafka commit failed",
		applogger.String("topic", km.Topic),
		applogger.Int64("offset", km.Offset),
		applogger.Error(err),
	)
}

// backoffWithJitter doubles min per attempt up to max and removes up to half
// of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	return d - time.Duration(rand.Int63n(int64(d)/2+1))
}

type consumerMetrics struct {
	depth   *prometheus.GaugeVec
	latency *prometheus.HistogramVec
	results *prometheus.CounterVec
}

var (
	consumerStats     *consumerMetrics
	consumerStatsOnce sync.Once
)

func registerConsumerMetrics() {
	consumerStatsOnce.Do(func() {
		consumerStats = &consumerMetrics{
			depth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "pricepull_kafka_consumer_queue_depth",
				Help: "Fetched messages waiting in a lane",
			}, []string{"topic"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name: "pricepull_kafka_consumer_handle_seconds",
				Help: "Handling time per message, retries included",
			}, []string{"topic"}),
			results: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pricepull_kafka_consumer_messages_total",
				Help: "Consumed messages by result",
			}, []string{"topic", "result"}),
		}
	})
}
