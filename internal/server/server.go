package server

import (
	"context"
	"errors"

	"backend-snapshare/internal/apperr"
	"backend-snapshare/internal/auth"
	"backend-snapshare/internal/config"
	"backend-snapshare/internal/db"
	"backend-snapshare/internal/docstore"
	"backend-snapshare/internal/logging"
	"backend-snapshare/internal/social"
	"backend-snapshare/internal/storage"
	"backend-snapshare/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Deps are the process-wide handles the server is built from. Redis is optional.
type Deps struct {
	Accounts db.Querier
	Redis    *redis.Client
	Docs     docstore.Store
	Media    storage.Backend
	Log      *logrus.Logger
}

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	Log    *logrus.Logger
	Docs   docstore.Store
	Stream *stream.Hub
}

func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Accounts == nil || deps.Docs == nil || deps.Media == nil {
		return nil, errors.New("server: accounts, docs and media are required")
	}
	log := deps.Log
	if log == nil {
		log = logging.New(cfg.LogLevel, nil)
	}

	hub, err := stream.NewHub(context.Background(), deps.Redis, log)
	if err != nil {
		return nil, err
	}

	bodyLimit := cfg.MaxUploadBytes
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}
	app := fiber.New(fiber.Config{
		ErrorHandler:          apperr.Handler(log),
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${status} ${method} ${path} ${latency}\n",
		Output: logging.FiberWriter(log),
	}))

	s := &Server{
		App:    app,
		Cfg:    cfg,
		Log:    log,
		Docs:   deps.Docs,
		Stream: hub,
	}

	registerRoutes(s, deps)
	return s, nil
}

func registerRoutes(s *Server, deps Deps) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	identity := auth.NewService(s.Cfg.JWTSecret, deps.Accounts)
	jwtMiddleware := auth.JWTMiddleware(identity)
	media := storage.NewService(deps.Media, deps.Docs)
	graph := social.NewService(deps.Docs, identity, media, s.Stream, s.Log,
		social.Options{UniqueEdges: s.Cfg.UniqueEdges})

	if local, ok := deps.Media.(*storage.LocalBackend); ok {
		storage.RegisterRoutes(s.App, local)
	}
	auth.RegisterRoutes(s.App.Group("/auth"), identity)
	stream.RegisterRoutes(s.App, s.Stream, jwtMiddleware)
	social.RegisterRoutes(s.App, graph, jwtMiddleware)
}

// Close stops the activity subscription.
func (s *Server) Close() error {
	return s.Stream.Close()
}
