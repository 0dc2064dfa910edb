package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/CityPulse/PulseGuard/pkg/moderation"
)

const serviceUnavailableError = "moderation is temporarily unavailable, please try again"

// ModerationRunner is the pipeline surface the handler depends on.
type ModerationRunner interface {
	Run(ctx context.Context, req moderation.Request) moderation.Result
}

type moderateContentHandler struct {
	logger   *logrus.Logger
	pipeline ModerationRunner
}

func NewModerateContentHandler(logger *logrus.Logger, pipeline ModerationRunner) Handler {
	return &moderateContentHandler{
		logger:   logger,
		pipeline: pipeline,
	}
}

type moderateContentRequest struct {
	Content string                  `json:"content"`
	Context *moderateRequestContext `json:"context,omitempty"`
}

type moderateRequestContext struct {
	Endpoint string `json:"endpoint,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Handle translates pipeline outcomes for HTTP clients: 200 allowed,
// 403 rejected (edit your message), 503 service error (try again).
// Debug detail never leaves the process.
func (h *moderateContentHandler) Handle(c *fiber.Ctx) error {
	var req moderateContentRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.WithError(err).Debug("failed to parse moderation request")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid json payload"})
	}

	if strings.TrimSpace(req.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}

	traceID := uuid.NewString()
	c.Set("X-Trace-Id", traceID)

	modReq := moderation.Request{
		Content: req.Content,
		Context: &moderation.RequestContext{TraceID: traceID},
	}
	if req.Context != nil {
		modReq.Context.Endpoint = req.Context.Endpoint
		modReq.Context.UserID = req.Context.UserID
	}

	res := h.pipeline.Run(c.UserContext(), modReq)

	h.logger.WithFields(logrus.Fields{
		"trace_id":      traceID,
		"allowed":       res.Allowed,
		"service_error": res.ServiceError,
	}).Info("moderation request processed")

	// Allowed wins over ServiceError: a fail-open verdict must reach
	// the caller as an accepted post, not an outage.
	if res.Allowed {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"allowed": true})
	}
	if res.ServiceError {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": serviceUnavailableError})
	}
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": res.Reason})
}
