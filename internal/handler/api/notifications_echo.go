package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	"MotionPull/internal/service/ratelimit"
	"MotionPull/internal/usecase"
	"MotionPull/pkg/cache"
	xhttp "MotionPull/pkg/http"
	applogger "MotionPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

type classifier interface {
	Classify(ctx context.Context, resourceID, payload string) (*models.ClassificationRecord, error)
}

// AckPolicy builds the reply for a notifications request. Devices stop
// transmitting after a non-2xx reply, so failures only show up in the body.
type AckPolicy func(results []models.NotificationResult) *models.AckResponse

// AlwaysAck acknowledges every request and summarises failures.
func AlwaysAck(results []models.NotificationResult) *models.AckResponse {
	failed := 0
	for _, r := range results {
		if r.Status == models.StatusFailed {
			failed++
		}
	}
	msg := "ok"
	if failed > 0 {
		msg = fmt.Sprintf("%d of %d notifications failed", failed, len(results))
	}
	return &models.AckResponse{Acknowledged: true, Message: msg, Results: results}
}

// NotificationsEchoHandler receives device pushes and classifies each
// notification in order.
type NotificationsEchoHandler struct {
	logger     *applogger.Logger
	classifier classifier
	metrics    domrepo.Metrics
	limiter    *ratelimit.Limiter
	dedupe     cache.Service
	dedupeTTL  time.Duration
	ack        AckPolicy
}

type NotificationsOption func(*NotificationsEchoHandler)

// WithDedupe suppresses identical notifications seen within ttl.
func WithDedupe(c cache.Service, ttl time.Duration) NotificationsOption {
	return func(h *NotificationsEchoHandler) {
		if c != nil && ttl > 0 {
			h.dedupe, h.dedupeTTL = c, ttl
		}
	}
}

func WithLimiter(l *ratelimit.Limiter) NotificationsOption {
	return func(h *NotificationsEchoHandler) { h.limiter = l }
}

func WithAckPolicy(p AckPolicy) NotificationsOption {
	return func(h *NotificationsEchoHandler) {
		if p != nil {
			h.ack = p
		}
	}
}

func NewNotificationsEchoHandler(logger *applogger.Logger, c classifier, metrics domrepo.Metrics, opts ...NotificationsOption) *NotificationsEchoHandler {
	h := &NotificationsEchoHandler{
		logger:     logger.With(applogger.String("handler", "notifications")),
		classifier: c,
		metrics:    metrics,
		ack:        AlwaysAck,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *NotificationsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/notifications", h.Receive)
}

func (h *NotificationsEchoHandler) Receive(c echo.Context) error {
	req := &models.NotificationsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.logger.Warn("invalid notifications body", applogger.Any("errors", verr))
		h.metrics.RecordIngest("invalid")
		resp := h.ack(nil)
		resp.Message = "invalid request"
		resp.Errors = verr
		return xhttp.SuccessResponse(c, resp)
	}

	ctx := c.Request().Context()
	results := make([]models.NotificationResult, 0, len(req.Notifications))
	for _, n := range req.Notifications {
		res := h.process(ctx, n)
		h.metrics.RecordIngest(res.Status)
		results = append(results, res)
	}
	return xhttp.SuccessResponse(c, h.ack(results))
}

func (h *NotificationsEchoHandler) process(ctx context.Context, n models.Notification) models.NotificationResult {
	res := models.NotificationResult{Path: n.Path}

	var lockKey string
	if h.dedupe != nil {
		lockKey = cache.GenerateKey("dedupe", cache.HashKey(n.Path, n.Payload))
		ok, err := h.dedupe.TryLock(ctx, lockKey, h.dedupeTTL)
		switch {
		case err != nil:
			h.logger.Warn("dedupe lock failed", applogger.String("resource", n.Path), applogger.Error(err))
			lockKey = ""
		case !ok:
			res.Status = models.StatusDuplicate
			return res
		}
	}

	if !h.limiter.Allow(n.Path) {
		h.release(ctx, lockKey)
		res.Status = models.StatusThrottled
		return res
	}

	record, err := h.classifier.Classify(ctx, n.Path, n.Payload)
	if record != nil {
		if top, ok := record.TopActivity(); ok {
			res.Activity = top.Label
		}
	}
	if err != nil {
		h.logger.Error("notification failed",
			applogger.String("resource", n.Path),
			applogger.String("stage", stageOf(err)),
			applogger.Error(err))
		// a resend of an undecodable payload fails the same way
		if stageOf(err) != usecase.StageDecode {
			h.release(ctx, lockKey)
		}
		res.Status = models.StatusFailed
		res.Error = err.Error()
		return res
	}

	res.Status = models.StatusClassified
	return res
}

func (h *NotificationsEchoHandler) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := h.dedupe.Unlock(ctx, key); err != nil {
		h.logger.Warn("dedupe unlock failed", applogger.Error(err))
	}
}

func stageOf(err error) string {
	var ce *usecase.ClassifyError
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return "unknown"
}
