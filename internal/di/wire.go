//go:build wireinject
// +build wireinject

package di

import (
	"PricePull/internal/usecase"
	"PricePull/pkg/config"
	"PricePull/pkg/server"

	"github.com/google/wire"
)

var coreSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideCatalog,

	ProvideFeedClient,
	ProvideNormalizer,
	usecase.NewSelector,
	ProvideGradeAggregator,

	ProvideRedisCache,
	ProvidePriceStore,
	ProvideKafkaProducer,
	ProvideHub,
	ProvidePublisher,

	ProvidePriceCache,
	ProvidePriceService,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
// The cleanup closes the producer and the store; call it after App.Close.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		coreSet,
		ProvideRefreshHandler,
		ProvideKafkaConsumer,
		ProvideRefreshQueue,
		ProvidePricesHandler,
		ProvideApp,
	)
	return &server.App{}, nil, nil
}
