package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	"MotionPull/internal/usecase"
	xhttp "MotionPull/pkg/http"
	applogger "MotionPull/pkg/logger"
	"MotionPull/pkg/queue"

	"github.com/labstack/echo/v4"
)

type queueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// ActivityEchoHandler serves classified windows and service health.
type ActivityEchoHandler struct {
	logger *applogger.Logger
	query  *usecase.ActivityQuery
	window time.Duration
	queue  queueStats
}

func NewActivityEchoHandler(logger *applogger.Logger, query *usecase.ActivityQuery, window time.Duration, q queueStats) *ActivityEchoHandler {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &ActivityEchoHandler{
		logger: logger.With(applogger.String("handler", "activity")),
		query:  query,
		window: window,
		queue:  q,
	}
}

func (h *ActivityEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/activity")
	g.GET("/:resourceId/latest", h.Latest)
	g.GET("/:resourceId", h.History)
	e.GET("/health", h.Health)
}

func (h *ActivityEchoHandler) Latest(c echo.Context) error {
	req := &models.LatestActivityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	resourceID := unescape(req.ResourceID)

	record, err := h.query.Latest(c.Request().Context(), resourceID)
	if errors.Is(err, domrepo.ErrRecordNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no activity for %s", resourceID))
	}
	if err != nil {
		h.logger.Error("latest activity", applogger.String("resource", resourceID), applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("latest activity failed").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, record)
}

func (h *ActivityEchoHandler) History(c echo.Context) error {
	req := &models.ActivityHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	resourceID := unescape(req.ResourceID)

	from, to, err := xhttp.ParseRange(req.From, req.To, h.window)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid range: %v", err))
	}

	records, err := h.query.History(c.Request().Context(), resourceID, from, to, req.Limit)
	if err != nil {
		h.logger.Error("activity history", applogger.String("resource", resourceID), applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("activity history failed").WithError(err))
	}
	return xhttp.ListResponse(c, records, int64(len(records)))
}

type healthReport struct {
	Status string       `json:"status"`
	Store  string       `json:"store"`
	Queue  *queue.Stats `json:"queue,omitempty"`
}

func (h *ActivityEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	report := healthReport{Status: "ok", Store: "ok"}
	if err := h.query.Health(ctx); err != nil {
		h.logger.Warn("store health", applogger.Error(err))
		report.Status, report.Store = "degraded", err.Error()
	}
	if h.queue != nil {
		stats, err := h.queue.Stats(ctx)
		if err != nil {
			h.logger.Warn("queue health", applogger.Error(err))
			report.Status = "degraded"
		} else {
			report.Queue = &stats
		}
	}

	if report.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, report)
	}
	return xhttp.SuccessResponse(c, report)
}

// unescape accepts resource ids sent with encoded slashes.
func unescape(id string) string {
	if v, err := url.PathUnescape(id); err == nil {
		return v
	}
	return id
}
