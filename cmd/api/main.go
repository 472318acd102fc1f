package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-snapshare/internal/config"
	"backend-snapshare/internal/db"
	"backend-snapshare/internal/logging"
	"backend-snapshare/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

// handles are the process-wide connections; any of them may be nil.
type handles struct {
	pg    db.Pool
	redis *redis.Client
	mongo *mongo.Database
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	connectMongo    func(config.Config) (*mongo.Database, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, handles, *logrus.Logger, <-chan os.Signal, ListenFunc) error
	exit            func(int)
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		connectMongo:    db.ConnectMongo,
		notify:          signal.Notify,
		run:             Run,
		exit:            os.Exit,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	log := logging.New(cfg.LogLevel, nil)

	var h handles
	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.WithError(err).Warn("postgres connection failed")
	} else if pg != nil {
		h.pg = pg
	}

	h.redis = deps.connectRedis(cfg)

	if cfg.DocstoreDriver == "mongo" {
		mdb, err := deps.connectMongo(cfg)
		if err != nil {
			log.WithError(err).Warn("mongo connection failed")
		} else {
			h.mongo = mdb
		}
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, h, log, signals, nil); err != nil {
		log.WithError(err).Error("server exited with error")
		deps.exit(1)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run migrates the account tables, starts the HTTP server and waits for
// termination signals.
func Run(ctx context.Context, cfg config.Config, h handles, log *logrus.Logger, signals <-chan os.Signal, listen ListenFunc) error {
	defer h.close()

	deps := server.Deps{Redis: h.redis, Log: log}
	if h.pg != nil {
		if err := db.Migrate(ctx, h.pg); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		deps.Accounts = h.pg
	}

	docs, err := server.OpenDocstore(cfg, deps.Accounts, h.redis, h.mongo)
	if err != nil {
		return err
	}
	deps.Docs = docs

	if deps.Media, err = server.OpenMedia(cfg); err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, deps)
	if err != nil {
		return err
	}
	defer srv.Close()

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()
	log.WithFields(logrus.Fields{
		"addr":     cfg.ServerPort,
		"docstore": cfg.DocstoreDriver,
		"storage":  cfg.StorageDriver,
	}).Info("server listening")

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return shutdownFn(srv.App, shutdownCtx)
}

func (h handles) close() {
	if h.pg != nil {
		h.pg.Close()
	}
	if h.redis != nil {
		_ = h.redis.Close()
	}
	if h.mongo != nil {
		_ = h.mongo.Client().Disconnect(context.Background())
	}
}
