package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/models"
	"PricePull/internal/service/metrics"
	"PricePull/internal/usecase"
	xhttp "PricePull/pkg/http"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/util"

	"github.com/labstack/echo/v4"
)

const maxDashboardParts = 20

// HealthChecker is anything /healthz should ping.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// PricesEchoHandler serves the price query endpoints.
type PricesEchoHandler struct {
	svc     *usecase.PriceService
	catalog *catalog.Catalog
	health  HealthChecker
	l       *applogger.Logger
}

func NewPricesEchoHandler(svc *usecase.PriceService, cat *catalog.Catalog, health HealthChecker) *PricesEchoHandler {
	metrics.Register()
	return &PricesEchoHandler{svc: svc, catalog: cat, health: health, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (h *PricesEchoHandler) SetLogger(l *applogger.Logger) {
	if l != nil {
		h.l = l
	}
}

func (h *PricesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/prices")
	g.GET("/current", h.Current)
	g.GET("/weekly", h.Weekly)
	g.GET("/dashboard", h.Dashboard)
	g.GET("/history", h.History)
	g.GET("/parts", h.Parts)
	e.GET("/healthz", h.Healthz)
}

func (h *PricesEchoHandler) Current(c echo.Context) error {
	defer observe("current", time.Now())
	req := &models.CurrentPriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.GetCurrentPrice(c.Request().Context(), req.Part, req.Region, req.Grade)
	if err != nil {
		return h.fail(c, "current", err)
	}
	return xhttp.CachedResponse(c, 60, res)
}

func (h *PricesEchoHandler) Weekly(c echo.Context) error {
	defer observe("weekly", time.Now())
	req := &models.WeeklyTrendRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.GetWeeklyTrend(c.Request().Context(), req.Part, req.Region, req.Grade, req.Weeks)
	if err != nil {
		return h.fail(c, "weekly", err)
	}
	return xhttp.CachedResponse(c, 300, res)
}

func (h *PricesEchoHandler) Dashboard(c echo.Context) error {
	defer observe("dashboard", time.Now())
	req := &models.DashboardRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	parts := util.SplitCSV(req.Parts)
	if len(parts) > maxDashboardParts {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("at most %d parts per request", maxDashboardParts))
	}

	res, err := h.svc.GetDashboard(c.Request().Context(), parts, req.Region)
	if err != nil {
		return h.fail(c, "dashboard", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PricesEchoHandler) History(c echo.Context) error {
	defer observe("history", time.Now())
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.GetHistory(c.Request().Context(), req.Part, req.Region, req.Grade, req.Days)
	if err != nil {
		return h.fail(c, "history", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PricesEchoHandler) Parts(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.PartsResponse{
		Parts:   h.catalog.Items(),
		Regions: h.catalog.Regions(),
		Unit:    h.catalog.Unit(),
	})
}

func (h *PricesEchoHandler) Healthz(c echo.Context) error {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Health(ctx); err != nil {
			h.l.Warn("health check failed", applogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("price store unreachable"))
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// fail maps a service error onto the response envelope.
func (h *PricesEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.APIErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= http.StatusInternalServerError {
		h.l.Error("price query failed", applogger.String("endpoint", endpoint), applogger.Error(err))
	} else {
		h.l.Debug("price query rejected", applogger.String("endpoint", endpoint), applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrUnknownItem):
		return xhttp.BadRequestError(err.Error()).WithField("part").WithError(err)
	case errors.Is(err, models.ErrUnknownRegion):
		return xhttp.BadRequestError(err.Error()).WithField("region").WithError(err)
	case errors.Is(err, models.ErrUnknownGrade):
		return xhttp.BadRequestError(err.Error()).WithField("grade").WithError(err)
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError(models.ErrNotFound.Error()).WithError(err)
	case errors.Is(err, models.ErrServiceUnavailable), errors.Is(err, context.DeadlineExceeded):
		return xhttp.ServiceUnavailableError(models.ErrServiceUnavailable.Error()).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
