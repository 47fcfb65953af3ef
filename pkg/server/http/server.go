package httpfiber

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/fiberzap/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pharos-autotask/pharos-autotask/pkg/config"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
	"github.com/pharos-autotask/pharos-autotask/pkg/scheduler"
	"github.com/pharos-autotask/pharos-autotask/pkg/version"
)

// StatusProvider reports the cycle driver state.
type StatusProvider interface {
	Status() scheduler.Status
}

type Server struct {
	app *fiber.App
	cfg *config.Schema

	registry *prometheus.Registry
	status   StatusProvider
}

type Option func(*Server)

func NewServer(cfg *config.Schema, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})
	srv := &Server{
		app:      app,
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

func WithStatus(status StatusProvider) Option {
	return func(s *Server) {
		s.status = status
	}
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Setup installs middleware and routes. Run calls it.
func (s *Server) Setup() error {
	if s.cfg.Global.Environment == "production" {
		level, err := zap.ParseAtomicLevel(s.cfg.Global.LogLevel)
		if err != nil {
			return err
		}
		zapLogger, err := logger.NewZapLogger(logger.WithLevel(level.Level()))
		if err != nil {
			return err
		}
		s.app.Use(fiberzap.New(fiberzap.Config{
			Logger: zapLogger.Logger,
		}))
	}
	return s.MapRoutes()
}

func (s *Server) Run() error {
	if err := s.Setup(); err != nil {
		return err
	}
	logger.Infof("listening on %s", s.cfg.Global.MetricsAddr)
	return s.app.Listen(s.cfg.Global.MetricsAddr)
}

func (s *Server) Stop() {
	logger.Infof("Stopping HTTP server...")
	if err := s.app.ShutdownWithTimeout(1 * time.Second); err != nil {
		logger.Debugf("HTTP server shutdown: %v", err)
	}
	logger.Infof("HTTP server stopped")
}

func (s *Server) MapRoutes() error {
	v1 := s.app.Group("/")
	v1.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, log.Prefix(), log.Flags()),
		ErrorHandling: promhttp.ContinueOnError,
	})))

	v1.Get("/readiness", func(c *fiber.Ctx) error {
		if s.status != nil && !s.status.Status().Running {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "stopped",
			})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	})

	v1.Get("/status", func(c *fiber.Ctx) error {
		body := fiber.Map{"version": version.GetVersion()}
		if s.status != nil {
			body["scheduler"] = s.status.Status()
		}
		return c.Status(fiber.StatusOK).JSON(body)
	})
	return nil
}
