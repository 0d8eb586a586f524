package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/assetworks/assetauth/internal/auth/http"
	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/internal/auth/store"
	"github.com/assetworks/assetauth/internal/auth/store/drivers/sqlite"
	"github.com/assetworks/assetauth/internal/auth/twofactor"
	"github.com/assetworks/assetauth/pkg/cryptox"
	"github.com/assetworks/assetauth/pkg/jwtx"
	"github.com/assetworks/assetauth/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     store.Store
	keySet *jwtx.KeySet
	bridge twofactor.SessionStore

	// Services
	guard       *service.AccountGuard
	twoFactor   *service.TwoFactorService
	keyManager  *service.SigningKeyManager
	tokens      *service.TokenIssuer
	sessions    *service.SessionManager
	housekeeper *service.Housekeeper

	housekeepingCancel context.CancelFunc

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()

	created, err := bootstrapAdmin(ctx, app.cfg, app.db)
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		app.logger.Info("initial admin account created", "username", app.cfg.AdminUsername)
	}

	app.initServices()

	keySet, err := InitAuthKeys(ctx, app.cfg, app.keyManager, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keySet = keySet

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping in the background
	hctx, cancel := context.WithCancel(context.Background())
	app.housekeepingCancel = cancel
	go app.housekeeper.Run(hctx)

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop housekeeping
	if app.housekeepingCancel != nil {
		app.housekeepingCancel()
	}

	// Close the 2FA bridge store
	if err := app.bridge.Close(); err != nil {
		app.logger.Error("error closing 2fa session store", "error", err)
	}

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.bridge = app.initBridge()

	app.guard = &service.AccountGuard{Store: app.db}

	app.twoFactor = &service.TwoFactorService{
		Store:  app.db,
		Guard:  app.guard,
		Issuer: app.cfg.TwoFactorIssuer,
	}

	app.keyManager = &service.SigningKeyManager{
		Store:            app.db,
		DefaultAlgorithm: app.cfg.Algorithm,
		DefaultKeySize:   app.cfg.RSABits,
	}

	app.tokens = &service.TokenIssuer{
		Keys:            app.keyManager,
		Issuer:          app.cfg.Issuer,
		Audience:        app.cfg.Audience,
		AccessTokenTTL:  app.cfg.AccessTokenTTL,
		RefreshTokenTTL: app.cfg.RefreshTokenTTL,
		RememberMeTTL:   app.cfg.RememberMeTTL,
	}

	app.sessions = &service.SessionManager{
		Store:    app.db,
		Guard:    app.guard,
		TwoFA:    app.twoFactor,
		Tokens:   app.tokens,
		Bridge:   app.bridge,
		Geo:      service.StaticGeoResolver{},
		EmailOTP: service.NewLogEmailOTPSender(app.logger),
		Scopes:   app.cfg.DefaultScopes,
	}

	app.housekeeper = &service.Housekeeper{
		Store:    app.db,
		Logger:   app.logger,
		Interval: app.cfg.HousekeepingInterval,
	}
}

// initBridge picks the 2FA bridge session backend: redis when an
// address is configured, in-memory otherwise.
func (app *Application) initBridge() twofactor.SessionStore {
	if app.cfg.RedisAddr == "" {
		app.logger.Info("2fa bridge sessions stored in memory")
		return twofactor.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
	})
	app.logger.Info("2fa bridge sessions stored in redis", "addr", app.cfg.RedisAddr)
	return twofactor.NewRedisStore(client)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	verifier := jwtx.NewVerifier(app.keySet, app.cfg.Issuer, app.cfg.Audience)

	router := httpapi.NewRouter(
		app.keySet,
		verifier,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.Sessions = app.sessions
	router.TwoFA = app.twoFactor
	router.Keys = app.keyManager
	router.OnKeysChanged = func(ctx context.Context) error {
		return ReloadKeySet(ctx, app.keyManager, app.keySet)
	}
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
