package di

import (
	"context"
	"testing"
	"time"

	"PricePull/pkg/cache"
	"PricePull/pkg/config"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestPriceStoreCleanupClosesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.WithRedisAddr(mr.Addr()))
	require.NoError(t, err)

	cfg := config.Default()
	store, cleanup, err := ProvidePriceStore(cfg, rc, metrics.Noop{}, applogger.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Health(context.Background()))

	cleanup()
	require.Error(t, rc.Ping(context.Background()))
}

func TestKafkaProducerDisabled(t *testing.T) {
	producer, cleanup, err := ProvideKafkaProducer(config.Default(), applogger.Nop())
	require.NoError(t, err)
	require.Nil(t, producer)
	require.NotPanics(t, cleanup)
}

// InitializeApp registers Prometheus collectors globally, so only this test calls it.
func TestInitializeAppReleasesStoreOnLaterFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = nil

	app, cleanup, err := InitializeApp(cfg)
	require.ErrorContains(t, err, "kafka producer")
	require.Nil(t, app)
	require.Nil(t, cleanup)

	// The store owned the Redis pool; closing it drops every connection.
	require.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
