package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/repository"
	"PricePull/internal/handler/api"
	"PricePull/internal/handler/ws"
	internalrepo "PricePull/internal/repository"
	"PricePull/internal/service/kamis"
	"PricePull/internal/service/normalize"
	"PricePull/internal/usecase"
	pkgcache "PricePull/pkg/cache"
	pkgch "PricePull/pkg/clickhouse"
	"PricePull/pkg/config"
	pkgkafka "PricePull/pkg/kafka"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/metrics"
	pkgpg "PricePull/pkg/postgres"
	"PricePull/pkg/queue"
	"PricePull/pkg/server"

	"github.com/segmentio/kafka-go"
)

const schemaTimeout = 10 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCatalog loads the built-in item catalog.
func ProvideCatalog() (*catalog.Catalog, error) {
	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}

// ProvideFeedClient creates the KAMIS feed client.
func ProvideFeedClient(cfg *config.Config, cat *catalog.Catalog, m repository.Metrics, l *applogger.Logger) repository.FeedClient {
	c := kamis.NewClient(cat, m,
		kamis.WithBaseURL(cfg.Feed.BaseURL),
		kamis.WithCredentials(cfg.Feed.CertKey, cfg.Feed.CertID),
		kamis.WithReturnType(cfg.Feed.ReturnType),
		kamis.WithTimeout(cfg.Feed.Timeout),
	)
	c.SetLogger(l)
	return c
}

func ProvideNormalizer(cat *catalog.Catalog, m repository.Metrics, l *applogger.Logger) *normalize.Normalizer {
	n := normalize.NewNormalizer(cat, m)
	n.SetLogger(l)
	return n
}

func ProvideGradeAggregator(l *applogger.Logger) *usecase.GradeAggregator {
	a := usecase.NewGradeAggregator()
	a.SetLogger(l)
	return a
}

// ProvideRedisCache connects to Redis, or returns nil when Redis is off.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPoolSize(cfg.Redis.PoolSize),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvidePriceStore opens the configured backend and, for durable backends,
// puts a read-through cache in front of it: Redis with an in-process L1 when
// Redis is enabled, a plain memory cache otherwise. The store owns rc; the
// returned cleanup closes both.
func ProvidePriceStore(cfg *config.Config, rc *pkgcache.RedisCache, m repository.Metrics, l *applogger.Logger) (repository.PriceStore, func(), error) {
	store, err := openPriceStore(cfg, rc, m, l)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			l.Warn("store close error", applogger.Error(err))
		}
	}, nil
}

func openPriceStore(cfg *config.Config, rc *pkgcache.RedisCache, m repository.Metrics, l *applogger.Logger) (repository.PriceStore, error) {
	var base repository.PriceStore
	switch cfg.Store.Backend {
	case config.BackendMemory:
		base = internalrepo.NewMemoryPriceStore()
	case config.BackendClickHouse:
		s, err := provideClickHouseStore(cfg, l)
		if err != nil {
			closeRedis(rc)
			return nil, err
		}
		base = s
	case config.BackendPostgres:
		s, err := providePostgresStore(cfg)
		if err != nil {
			closeRedis(rc)
			return nil, err
		}
		base = s
	default:
		closeRedis(rc)
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	var cache pkgcache.Service
	switch {
	case rc != nil:
		cache = pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemoryTTL(time.Minute))
	case cfg.Store.Backend != config.BackendMemory:
		cache = pkgcache.NewMemoryCache(pkgcache.WithMemoryDefaultTTL(cfg.Store.CacheTTL))
	default:
		return base, nil
	}

	cs := internalrepo.NewCachedPriceStore(base, cache, cfg.Store.CacheTTL, m)
	cs.SetLogger(l)
	l.Info("price store ready",
		applogger.String("backend", cfg.Store.Backend),
		applogger.Bool("redis", rc != nil),
	)
	return cs, nil
}

func closeRedis(rc *pkgcache.RedisCache) {
	if rc != nil {
		_ = rc.Close()
	}
}

func provideClickHouseStore(cfg *config.Config, l *applogger.Logger) (repository.PriceStore, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithCompression(cfg.ClickHouse.Compression),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	table := cfg.ClickHouse.Database + "." + cfg.ClickHouse.Table
	if err := client.InitSchema(ctx, internalrepo.PriceSchema(table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	s := internalrepo.NewClickHousePriceStore(client, table)
	s.SetLogger(l)
	return s, nil
}

func providePostgresStore(cfg *config.Config) (repository.PriceStore, error) {
	client, err := pkgpg.NewClient(
		pkgpg.WithDSN(cfg.Postgres.DSN),
		pkgpg.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
		pkgpg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		pkgpg.WithLogLevel(cfg.Log.Level),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	s := internalrepo.NewPostgresPriceStore(client)
	if err := s.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
// The cleanup closes the producer; publishers built on it do not.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}, nil
}

// ProvideHub creates the websocket hub, or nil when websockets are off.
func ProvideHub(cfg *config.Config, cat *catalog.Catalog, l *applogger.Logger) *ws.Hub {
	if !cfg.WebSocket.Enabled {
		return nil
	}
	h := ws.NewHub(cat,
		ws.WithSendBuffer(cfg.WebSocket.SendBuffer),
		ws.WithPingInterval(cfg.WebSocket.PingInterval),
	)
	h.SetLogger(l)
	return h
}

// ProvidePublisher fans price events out to Kafka and websocket subscribers.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer, hub *ws.Hub) repository.Publisher {
	var pubs []repository.Publisher
	if producer != nil {
		pubs = append(pubs, internalrepo.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic))
	}
	if hub != nil {
		pubs = append(pubs, hub)
	}
	return internalrepo.NewFanoutPublisher(pubs...)
}

func ProvidePriceCache(cfg *config.Config, store repository.PriceStore, m repository.Metrics, l *applogger.Logger) *usecase.PriceCache {
	c := usecase.NewPriceCache(store, m,
		usecase.WithFreshDays(cfg.Pricing.FreshDays),
		usecase.WithRetentionDays(cfg.Pricing.RetentionDays),
	)
	c.SetLogger(l)
	return c
}

func ProvidePriceService(
	cfg *config.Config,
	cat *catalog.Catalog,
	feed repository.FeedClient,
	normalizer *normalize.Normalizer,
	selector *usecase.Selector,
	aggregator *usecase.GradeAggregator,
	cache *usecase.PriceCache,
	pub repository.Publisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.PriceService {
	svc := usecase.NewPriceService(cat, feed, normalizer, selector, aggregator, cache, pub, m,
		usecase.WithLookbackDays(cfg.Pricing.LookbackDays),
		usecase.WithTrendLookbackDays(cfg.Pricing.TrendLookbackDays),
		usecase.WithGradeConcurrency(cfg.Pricing.GradeConcurrency),
		usecase.WithLocation(cfg.Location()),
	)
	svc.SetLogger(l)
	return svc
}

func ProvideRefreshHandler(cfg *config.Config, svc *usecase.PriceService, m repository.Metrics, l *applogger.Logger) *usecase.RefreshHandler {
	h := usecase.NewRefreshHandler(cfg.Kafka.RefreshTopic, svc, m)
	h.SetLogger(l)
	return h
}

// ProvideRefreshQueue creates the Redis refresh queue, or nil when it is off.
// It shares the cache's Redis client and the Kafka refresh topic name.
func ProvideRefreshQueue(cfg *config.Config, rc *pkgcache.RedisCache, h *usecase.RefreshHandler, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(rc.Client(),
		queue.WithPrefix(cfg.Redis.Prefix+":queue"),
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithRetry(cfg.Queue.RetryLimit, cfg.Queue.RetryDelay),
	)
	q.SetLogger(l)
	q.RegisterHandler(h)
	return q
}

// ProvideKafkaConsumer creates the refresh consumer, or nil when Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config, h *usecase.RefreshHandler, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.RefreshTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l)
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.HookFuncs{
			Err: func(ctx context.Context, topic string, _ kafka.Message, _ []byte, err error) {
				var he *pkgkafka.HookError
				if errors.As(err, &he) {
					m.RecordError("consumer_hook")
					return
				}
				m.RecordError("consumer_handle")
				l.Warn("refresh message failed",
					applogger.String("topic", topic),
					applogger.String("trace_id", pkgkafka.TraceID(ctx)),
					applogger.Error(err),
				)
			},
		},
	))
	consumer.RegisterHandler(h)
	return consumer, nil
}

// ProvidePricesHandler creates the HTTP price endpoints; /healthz pings the store.
func ProvidePricesHandler(svc *usecase.PriceService, cat *catalog.Catalog, store repository.PriceStore, l *applogger.Logger) *api.PricesEchoHandler {
	h := api.NewPricesEchoHandler(svc, cat, store)
	h.SetLogger(l)
	return h
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.PriceService,
	prices *api.PricesEchoHandler,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	refreshQueue *queue.RedisQueue,
	pub repository.Publisher,
) *server.App {
	return server.New(cfg, l, svc, prices, hub, consumer, refreshQueue, pub)
}
