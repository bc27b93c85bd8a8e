package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"PricePull/internal/domain/repository"
	"PricePull/internal/handler/api"
	"PricePull/internal/handler/ws"
	"PricePull/internal/usecase"
	"PricePull/pkg/config"
	xhttp "PricePull/pkg/http"
	pkgkafka "PricePull/pkg/kafka"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	svc        *usecase.PriceService
	prices     *api.PricesEchoHandler
	hub        *ws.Hub
	consumer   *pkgkafka.Consumer
	queue      *queue.RedisQueue
	publisher  repository.Publisher
	httpServer *xhttp.Server
}

// New creates a new App. hub, consumer and refreshQueue may be nil when their
// features are off.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.PriceService,
	prices *api.PricesEchoHandler,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	refreshQueue *queue.RedisQueue,
	publisher repository.Publisher,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:       cfg,
		l:         l,
		svc:       svc,
		prices:    prices,
		hub:       hub,
		consumer:  consumer,
		queue:     refreshQueue,
		publisher: publisher,
	}
}

// Service exposes the price service for one-shot commands.
func (a *App) Service() *usecase.PriceService { return a.svc }

// RefreshQueue returns the Redis refresh queue, or nil when it is disabled.
func (a *App) RefreshQueue() *queue.RedisQueue { return a.queue }

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *App) Logger() *applogger.Logger { return a.l }

// Run starts the HTTP server and the refresh consumers, then blocks until ctx is
// cancelled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handlers := []xhttp.Handler{a.prices}
	if a.hub != nil {
		handlers = append(handlers, a.hub)
	}

	a.httpServer = xhttp.NewServer(a.l, handlers,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(a.cfg.Metrics.Enabled),
		xhttp.WithRateLimit(a.cfg.Server.RateLimit, a.cfg.Server.RateBurst),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins),
	)

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start failed", applogger.Error(err))
			_ = a.Close(context.Background())
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.RefreshTopic))
	}
	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			a.l.Error("refresh queue start failed", applogger.Error(err))
			_ = a.Close(context.Background())
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		_ = a.Close(context.Background())
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Close(shutdownCtx)
}

// Close stops the HTTP server first so no new work arrives, then drains the
// consumers and releases the publishers. The store and the Kafka producer
// belong to the injector's cleanup. Errors are logged; the first one is returned.
func (a *App) Close(ctx context.Context) error {
	var first error
	keep := func(msg string, err error) {
		if err == nil {
			return
		}
		a.l.Warn(msg, applogger.Error(err))
		if first == nil {
			first = err
		}
	}

	if a.httpServer != nil {
		keep("http shutdown error", a.httpServer.Stop(ctx))
	}
	if a.consumer != nil {
		keep("kafka consumer stop error", a.consumer.Stop(ctx))
	}
	if a.queue != nil {
		keep("refresh queue stop error", a.queue.Stop(ctx))
	}
	if a.publisher != nil {
		keep("publisher close error", a.publisher.Close())
	}

	a.l.Info("shutdown complete")
	return first
}
