// Package server initializes and runs the user token server.
// It opens the database, applies migrations, builds the token and identity
// services and runs the HTTP API, the gRPC health endpoint and the expired
// token reaper until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dmitrijs2005/usertokens/internal/dbx"
	"github.com/dmitrijs2005/usertokens/internal/logging"
	"github.com/dmitrijs2005/usertokens/internal/server/config"
	"github.com/dmitrijs2005/usertokens/internal/server/httpapi"
	"github.com/dmitrijs2005/usertokens/internal/server/reaper"
	"github.com/dmitrijs2005/usertokens/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/usertokens/internal/server/services"

	gs "github.com/dmitrijs2005/usertokens/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	tokens     *services.TokenService
	identities *services.IdentityService
	validator  *services.Validator
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, m, err := repomanager.Open(ctx, c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithIssueAttempts(c.IssueAttempts),
		services.WithRetryPolicy(dbx.RetryPolicy{
			Retries:   uint64(max(c.StorageRetries, 0)),
			BaseDelay: c.RetryBaseDelay,
			MaxDelay:  dbx.DefaultRetryPolicy.MaxDelay,
		}),
	}

	app := &App{
		config:     c,
		logger:     logger,
		db:         db,
		tokens:     services.NewTokenService(db, m, opts...),
		identities: services.NewIdentityService(db, m, opts...),
		validator:  services.NewValidator(db, m, opts...),
	}

	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	}

	logger.Info(ctx, "storage ready", "driver", m.Driver())

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Handler returns the HTTP API handler.
func (app *App) Handler() http.Handler {
	api := httpapi.NewAPI(app.logger, app.validator, app.tokens, app.identities, httpapi.Options{
		AdminKey:       app.config.AdminKey,
		IssueRateLimit: app.config.IssueRateLimit,
	})
	return api.Routes()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.Handler())

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db, app.config.HealthCheckInterval)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) newReaper() *reaper.Reaper {
	opts := []reaper.Option{reaper.WithLogger(app.logger)}
	if app.redis != nil {
		opts = append(opts, reaper.WithLocker(reaper.NewRedisLocker(app.redis, reaper.DefaultLockKey, app.lockTTL())))
	}
	return reaper.New(app.tokens, app.config.ReapInterval, opts...)
}

// lockTTL is how long a replica keeps the reaper lock after a sweep.
func (app *App) lockTTL() time.Duration {
	if app.config.ReapLockTTL > 0 {
		return app.config.ReapLockTTL
	}
	return app.config.ReapInterval
}

// Run blocks until ctx is cancelled, a termination signal arrives or one of
// the servers fails. The database and Redis connections are closed on return.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.newReaper().Run(ctx)
	}()

	wg.Wait()

	app.Close(context.Background())
}

// Close releases the database and Redis connections.
func (app *App) Close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
