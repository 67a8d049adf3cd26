package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/ride-realtime/internal/api/handlers"
	"github.com/gocomet/ride-realtime/internal/api/push"
	"github.com/gocomet/ride-realtime/internal/api/routes"
	"github.com/gocomet/ride-realtime/internal/config"
	"github.com/gocomet/ride-realtime/internal/core"
	"github.com/gocomet/ride-realtime/internal/credential"
	"github.com/gocomet/ride-realtime/internal/geolocation"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/observability"
	"github.com/gocomet/ride-realtime/internal/repository/postgres"
	"github.com/gocomet/ride-realtime/internal/rideapi"
	"github.com/gocomet/ride-realtime/internal/service/coordinator"
	"github.com/gocomet/ride-realtime/internal/service/session"
	"github.com/gocomet/ride-realtime/pkg/cache"
	"github.com/gocomet/ride-realtime/pkg/clock"
	"github.com/gocomet/ride-realtime/pkg/database"
	"github.com/gocomet/ride-realtime/pkg/eventloop"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/gocomet/ride-realtime/pkg/monitoring"
	"github.com/gocomet/ride-realtime/pkg/websocket"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", "", "env file to load before reading the environment")
	listen := pflag.String("listen", "", "render bridge listen address, overrides BRIDGE_HOST and BRIDGE_PORT")
	pflag.Parse()

	// Load configuration
	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	addr := cfg.Address()
	if *listen != "" {
		addr = *listen
	}

	appLogger.Info("Starting ride realtime client",
		logger.String("env", cfg.Bridge.Env),
		logger.String("address", addr),
		logger.Bool("realtime_configured", cfg.Realtime.URL != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize New Relic
	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
		nrApp = monitoring.Disabled()
	} else if nrApp.IsEnabled() {
		appLogger.Info("New Relic APM initialized", logger.String("app_name", cfg.NewRelic.AppName))
	}
	defer nrApp.Shutdown(10 * time.Second)

	creds, closeCreds := openCredentials(ctx, cfg, appLogger)
	defer closeCreds()

	var archiver coordinator.Archiver
	if cfg.Archive.Enabled {
		archive, closeDB := openArchive(ctx, cfg, appLogger)
		defer closeDB()
		archiver = archive
	}

	// Event loop and render hub
	// They outlive the signal context so the client can close cleanly.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	loop := eventloop.New(256)
	go loop.Run(runCtx)

	wsHub := websocket.NewHub(appLogger)
	go wsHub.Run(runCtx)

	publisher := push.NewPublisher(wsHub, appLogger)
	bus := notify.NewBus(appLogger)
	bus.Subscribe(publisher)

	clk := clock.Real()
	var client *core.Client
	api := rideapi.NewClient(rideapi.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, func() string { return client.AccessToken() }, appLogger)

	client = core.New(core.Options{
		Endpoint: cfg.Realtime.URL,
		Session: session.Config{
			ReconnectAttempts: cfg.Realtime.ReconnectAttempts,
			ReconnectDelay:    cfg.Realtime.ReconnectDelay,
			PingInterval:      cfg.Realtime.PingInterval,
		},
		Coordinator: coordinator.Config{
			DefaultTimeout:   cfg.Ride.OfferDefaultTimeout,
			CompletionRadius: cfg.Ride.CompletionRadiusM,
			APITimeout:       cfg.API.Timeout,
		},
		TypingDebounce: cfg.Chat.TypingDebounce,
	}, core.Deps{
		Exec:        loop,
		Clock:       clk,
		Credentials: creds,
		API:         api,
		Location:    geolocation.NewTracker(clk, cfg.Location.MaxAge),
		Notifier:    bus,
		Archiver:    archiver,
		Metrics:     observability.NewTelemetry(nrApp),
		Logger:      appLogger,
	})
	defer client.Close()

	stopPush := publisher.Listen(client, client.Subscribe)
	defer stopPush()

	if err := client.ReconcileFromStore(ctx); err != nil {
		appLogger.Warn("Stored identity not restored", logger.Err(err))
	}

	// Render bridge
	if cfg.Bridge.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	h := handlers.NewHandlers(client, wsHub, appLogger)
	routes.SetupRoutes(router, h, nrApp.Application)

	srv := &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		appLogger.Info("Render bridge starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start render bridge", logger.Err(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Render bridge forced to shutdown", logger.Err(err))
	}

	appLogger.Info("Stopped gracefully")
}

func openCredentials(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (credential.Store, func()) {
	if cfg.Credential.Backend != config.BackendRedis {
		appLogger.Info("Using in-memory credential store")
		return credential.NewMemoryStore(), func() {}
	}

	redisClient, err := cache.NewRedisClient(ctx, cache.Config{
		Host:        cfg.Redis.Host,
		Port:        cfg.Redis.Port,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		PoolSize:    cfg.Redis.PoolSize,
		MinIdleConn: cfg.Redis.MinIdleConn,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", logger.Err(err))
	}
	appLogger.Info("Connected to Redis successfully")

	store := credential.NewRedisStore(cache.NewKV(redisClient, cfg.Credential.Prefix, 0))
	return store, func() {
		if err := cache.Close(redisClient); err != nil {
			appLogger.Warn("Failed to close Redis", logger.Err(err))
		}
	}
}

func openArchive(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*postgres.RideArchive, func()) {
	db, err := database.NewPostgresDB(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConnections,
		MaxIdle:  cfg.Database.MaxIdleConns,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
	}

	archive := postgres.NewRideArchive(db)
	if err := archive.EnsureSchema(ctx); err != nil {
		appLogger.Fatal("Failed to prepare ride archive", logger.Err(err))
	}
	appLogger.Info("Ride archive ready")

	return archive, func() {
		if err := db.Close(); err != nil {
			appLogger.Warn("Failed to close PostgreSQL", logger.Err(err))
		}
	}
}
