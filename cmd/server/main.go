package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/zolsal/price-service/config"
	_ "github.com/zolsal/price-service/docs"
	"github.com/zolsal/price-service/internal/adapters/registry"
	"github.com/zolsal/price-service/internal/auth"
	"github.com/zolsal/price-service/internal/compare"
	"github.com/zolsal/price-service/internal/database"
	"github.com/zolsal/price-service/internal/fetch"
	"github.com/zolsal/price-service/internal/handlers"
	"github.com/zolsal/price-service/internal/importer"
	"github.com/zolsal/price-service/internal/jobs"
	"github.com/zolsal/price-service/internal/middleware"
	"github.com/zolsal/price-service/internal/scheduler"
	"github.com/zolsal/price-service/internal/search"
	"github.com/zolsal/price-service/internal/startup"
	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/telemetry"
)

// @title Price Service API
// @version 1.0
// @description Supermarket price comparison over the Israeli transparency feeds: product search, cart comparison, user carts, and ingestion management.
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT from /api/v1/auth/login, sent as "Bearer <token>"

// @securityDefinitions.apikey InternalKey
// @in header
// @name X-Internal-API-Key
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting price service")

	ctx := context.Background()

	cleanupTelemetry, err := telemetry.Init(ctx, telemetryConfig(cfg.Telemetry))
	if err != nil {
		logger.Warn().Err(err).Msg("Telemetry init failed, continuing without export")
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := cleanupTelemetry(flushCtx); err != nil {
				logger.Warn().Err(err).Msg("Telemetry shutdown failed")
			}
		}()
	}

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}
	if cfg.Auth.SecretKey == "" {
		logger.Fatal().Msg("SECRET_KEY not set")
	}
	if cfg.Auth.InternalAPIKey == "" {
		logger.Warn().Msg("INTERNAL_API_KEY not set, internal endpoints will reject every request")
	}

	if err := database.Connect(ctx, database.Options{
		ConnString:   dbURL,
		MaxConns:     cfg.Database.MaxConnections,
		MinConns:     cfg.Database.MinConnections,
		MaxLifetime:  cfg.Database.MaxConnLifetime,
		MaxIdleTime:  cfg.Database.MaxConnIdleTime,
		SingleConn:   cfg.Database.UseOracle,
		SessionSetup: cfg.Database.UseOracle,
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Bool("use_oracle", cfg.Database.UseOracle).Msg("Database connected")

	st := store.New(database.Pool(), cfg.Database.UseOracle)

	fetcher := fetch.NewClient(fetchConfig(cfg.RateLimit))
	reg := registry.NewRegistry(fetcher)
	imp := importer.New(st, fetcher, reg, importer.Config{
		BatchSize:    cfg.Import.BatchSize,
		FileLimit:    cfg.Import.Limit,
		Workers:      cfg.Import.Workers,
		ImproveNames: cfg.Import.NameImprove,
		ArchiveDir:   cfg.Import.ArchiveDir,
	})

	boot := startup.NewManager(st, imp, startup.Config{
		Testing:    cfg.Testing,
		AutoImport: cfg.Import.AutoImport,
	})
	if err := boot.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Startup checks failed")
	}

	var sched *scheduler.ImportScheduler
	if cfg.Import.Interval > 0 && !cfg.Testing {
		sched = scheduler.New(imp, st, cfg.Import.Interval)
		go sched.Start(ctx)
	}

	retention := jobs.NewRunRetention(retentionConfig(cfg.Import, cfg.Testing), st)
	retention.Start()

	tokens := auth.NewJWTManager(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
	authService := auth.NewService(st, tokens)
	searchService := search.New(st)
	comparator := compare.NewComparator(st, nil)

	healthHandler := handlers.NewHealthHandler(st)
	productsHandler := handlers.NewProductsHandler(searchService)
	cartHandler := handlers.NewCartHandler(comparator)
	savedCartsHandler := handlers.NewSavedCartsHandler(st, comparator)
	authHandler := handlers.NewAuthHandler(authService)
	ingestHandler := handlers.NewIngestHandler(imp)
	runsHandler := handlers.NewRunsHandler(st)

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	router.GET("/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api/v1")
	api.Use(middleware.RateLimit(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.APIPerSecond,
		BurstSize:         cfg.RateLimit.APIBurst,
	}))
	{
		products := api.Group("/products")
		{
			products.GET("/search", productsHandler.SearchProducts)
			products.GET("/:barcode", productsHandler.GetProduct)
		}

		cart := api.Group("/cart")
		{
			cart.POST("/compare", cartHandler.CompareCart)
			cart.POST("/compare/export", cartHandler.ExportComparison)
		}

		api.GET("/cities", productsHandler.ListCities)
		api.GET("/chains", productsHandler.ListChains)

		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		carts := api.Group("/carts")
		carts.Use(middleware.UserAuth(tokens))
		{
			carts.GET("", savedCartsHandler.ListCarts)
			carts.POST("", savedCartsHandler.SaveCart)
			carts.GET("/:id", savedCartsHandler.GetCart)
			carts.DELETE("/:id", savedCartsHandler.DeleteCart)
			carts.POST("/:id/compare", savedCartsHandler.CompareSavedCart)
			carts.GET("/:id/export", savedCartsHandler.ExportSavedCart)
		}
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuth(cfg.Auth.InternalAPIKey))
	internal.Use(middleware.ServiceRateLimit(cfg.RateLimit.InternalPerSecond, cfg.RateLimit.InternalBurst))
	{
		internal.GET("/health", healthHandler.Check)

		admin := internal.Group("/admin")
		{
			admin.POST("/ingest", ingestHandler.TriggerIngest)
			admin.POST("/ingest/:chain", ingestHandler.TriggerIngestChain)
		}

		ingestion := internal.Group("/ingestion")
		{
			ingestion.GET("/runs", runsHandler.ListRuns)
			ingestion.GET("/runs/:runId", runsHandler.GetRun)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	if sched != nil {
		sched.Stop()
	}
	retention.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "price-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}

func telemetryConfig(cfg config.TelemetryConfig) telemetry.Config {
	return telemetry.Config{
		Enabled:        cfg.Endpoint != "",
		Endpoint:       cfg.Endpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
	}
}

func fetchConfig(cfg config.RateLimitConfig) fetch.Config {
	fc := fetch.DefaultConfig()
	if cfg.FetchPerSecond > 0 {
		fc.RequestsPerSecond = cfg.FetchPerSecond
	}
	if cfg.FetchBurst > 0 {
		fc.Burst = cfg.FetchBurst
	}
	fc.MaxRetries = cfg.MaxRetries
	if cfg.InitialBackoffMs > 0 {
		fc.InitialBackoff = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		fc.MaxBackoff = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	return fc
}

// retentionConfig maps the import settings onto the retention job. A zero
// retain_days turns pruning off; testing mode never prunes.
func retentionConfig(cfg config.ImportConfig, testing bool) jobs.RetentionConfig {
	rc := jobs.DefaultRetentionConfig()
	rc.Enabled = !testing && cfg.RetainDays > 0
	if cfg.RetainDays > 0 {
		rc.RetainDays = cfg.RetainDays
	}
	return rc
}
