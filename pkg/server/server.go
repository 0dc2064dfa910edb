package server

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/CityPulse/PulseGuard/pkg/config"
	handlers "github.com/CityPulse/PulseGuard/pkg/handlers/http"
	"github.com/CityPulse/PulseGuard/pkg/infra/prometheus"
)

// Server hosts the moderation HTTP surface: the moderation endpoint,
// a health check, and prometheus metrics.
type Server struct {
	cfg    *config.Config
	logger *logrus.Logger
	app    *fiber.App
}

func New(cfg *config.Config, logger *logrus.Logger, moderate handlers.Handler) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             1 * 1024 * 1024,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           60 * time.Second,
	})

	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(prometheus.Registry(), promhttp.HandlerOpts{}),
	)
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	app.Post("/v1/moderation", moderate.Handle)

	return &Server{
		cfg:    cfg,
		logger: logger,
		app:    app,
	}
}

func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.WithField("addr", addr).Info("starting moderation server")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
