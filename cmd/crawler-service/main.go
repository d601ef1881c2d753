package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"astock-crawler/internal/crawler/config"
	"astock-crawler/internal/crawler/datasource"
	delivery "astock-crawler/internal/crawler/delivery/http"
	"astock-crawler/internal/crawler/repository"
	"astock-crawler/internal/crawler/service"
	"astock-crawler/pkg/common"
	"astock-crawler/pkg/httpfetch"
	"astock-crawler/pkg/logger"
	"astock-crawler/pkg/postgres"
	"astock-crawler/pkg/redis"
	"astock-crawler/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the crawler service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Crawler Service", logger.Field("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize Redis
	redisCfg := redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := redis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// Initialize Telegram notifier
	notifier := telegram.NewNoopNotifier()
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram client", logger.ErrorField(err))
		}
	}

	// Initialize repositories
	dragonTigerRepo := repository.NewDragonTigerRepository(db.DB)
	stocksRepo := repository.NewStocksRepository(db.DB)
	stockDailyRepo := repository.NewStockDailyRepository(db.DB)
	crawlRunRepo := repository.NewCrawlRunRepository(db.DB)

	// Initialize data sources in configured priority order
	requestTimeout, err := time.ParseDuration(cfg.Crawler.RequestTimeout)
	if err != nil || requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	fetcher := httpfetch.New(requestTimeout, cfg.Crawler.MaxRequestPerMinute, appLogger)
	tonghuashun := datasource.NewTongHuaShun(cfg.Crawler.TongHuaShunBaseURL, fetcher, appLogger)
	tushare := datasource.NewTushare(cfg.Crawler.TushareAPIURL, cfg.Crawler.TushareToken,
		requestTimeout, cfg.Crawler.MaxRequestPerMinute, appLogger)

	sources := buildSourceChain(cfg.Crawler.Sources, tonghuashun, tushare)
	if len(sources) == 0 {
		appLogger.Fatal("No data sources configured")
	}

	// Initialize services
	crawlSvc := service.NewCrawlService(cfg, sources, dragonTigerRepo, crawlRunRepo,
		redisClient.Client, notifier, appLogger)
	refreshSvc := service.NewStockRefreshService(cfg, tushare, stocksRepo, stockDailyRepo,
		dragonTigerRepo, crawlRunRepo, db.DB, redisClient.Client, appLogger)
	schedulerSvc := service.NewSchedulerService(cfg, crawlSvc, refreshSvc, redisClient.Client, appLogger)

	// Start scheduler
	if cfg.Scheduler.Enabled {
		if err := schedulerSvc.Start(ctx); err != nil {
			appLogger.Fatal("Failed to start scheduler", logger.ErrorField(err))
		}
	}

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	// Initialize handlers and routes
	apiV1 := e.Group("/api/v1")

	crawlHandler := delivery.NewCrawlHandler(crawlSvc, dragonTigerRepo, crawlRunRepo, appLogger)
	crawlHandler.RegisterRoutes(apiV1)

	jobHandler := delivery.NewJobHandler(schedulerSvc, appLogger)
	jobHandler.RegisterRoutes(apiV1.Group("/jobs"))

	healthHandler := delivery.NewHealthHandler(refreshSvc)
	healthHandler.RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop() // trigger shutdown
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down server...")

	// Gracefully shutdown the server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

// buildSourceChain orders the configured source names into concrete sources,
// skipping unknown names.
func buildSourceChain(names []string, tonghuashun, tushare datasource.DataSource) []datasource.DataSource {
	if len(names) == 0 {
		return []datasource.DataSource{tonghuashun, tushare}
	}
	var sources []datasource.DataSource
	for _, name := range names {
		switch name {
		case common.SourceTongHuaShun:
			sources = append(sources, tonghuashun)
		case common.SourceTushare:
			sources = append(sources, tushare)
		}
	}
	return sources
}

func main() {
	rootCmd := &cobra.Command{Use: "crawler-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-crawler.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing crawler-service CLI: %s\n", err)
		os.Exit(1)
	}
}
