package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	pkgkafka "PricePull/pkg/kafka"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/queue"
)

// RefreshHandler consumes refresh requests from Kafka or the Redis queue and
// warms the price cache for them.
type RefreshHandler struct {
	topic   string
	svc     *PriceService
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewRefreshHandler(topic string, svc *PriceService, metrics domrepo.Metrics) *RefreshHandler {
	return &RefreshHandler{topic: topic, svc: svc, metrics: metrics, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (h *RefreshHandler) SetLogger(l *applogger.Logger) {
	if l != nil {
		h.l = l
	}
}

func (h *RefreshHandler) Topic() string { return h.topic }

// incoming message schema: {part, region, grade}
func (h *RefreshHandler) Handle(ctx context.Context, b []byte) error {
	var req models.RefreshRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("refresh_unmarshal")
		return fmt.Errorf("decode refresh request: %w", err)
	}

	start := time.Now()
	cp, err := h.svc.GetCurrentPrice(ctx, req.Part, req.Region, req.Grade)
	h.metrics.RecordLatency("refresh", time.Since(start).Seconds())
	if err != nil {
		// Bad selections and empty windows will not get better on retry.
		if models.IsInvalidSelection(err) || errors.Is(err, models.ErrNotFound) {
			h.l.Warn("refresh skipped",
				applogger.String("part", req.Part),
				applogger.String("region", req.Region),
				applogger.String("grade", req.Grade),
				applogger.Error(err),
			)
			return nil
		}
		h.metrics.RecordError("refresh")
		return err
	}

	h.l.Debug("refreshed",
		applogger.String("part", cp.ItemKey),
		applogger.String("region", cp.Region),
		applogger.Int("price", cp.Price),
		applogger.String("source", string(cp.Source)),
	)
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*RefreshHandler)(nil)
	_ queue.Handler           = (*RefreshHandler)(nil)
)
