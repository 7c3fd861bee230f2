package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/sjperalta/crm-api/docs" // Swagger docs
	"github.com/sjperalta/crm-api/internal/config"
	"github.com/sjperalta/crm-api/internal/database"
	"github.com/sjperalta/crm-api/internal/handlers"
	"github.com/sjperalta/crm-api/internal/jobs"
	"github.com/sjperalta/crm-api/internal/metrics"
	"github.com/sjperalta/crm-api/internal/middleware"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/internal/services"
	"github.com/sjperalta/crm-api/internal/storage"
	"github.com/sjperalta/crm-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// @title CRM Client API
// @version 1.0
// @description Client CSV import, dynamic filtering and audit trail API

// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Setup(cfg.Environment, cfg.LogLevel)

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	// Initialize storage
	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized local storage", "path", cfg.StoragePath)

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Initialize services
	svcs := services.NewServices(repos, worker, store, cfg)

	// Schedule recurring jobs
	scheduleJobs(worker, svcs, cfg)

	// Initialize handlers
	h := handlers.NewHandlers(svcs, cfg, func() error { return database.Ping(db) })

	// Setup router
	router := setupRouter(h, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Background imports stop at their next batch boundary
	worker.Shutdown()
	logger.Info("Background worker stopped")

	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(metrics.Middleware())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check (public)
		v1.GET("/health", h.Health.Index)

		// Protected routes (requires authentication)
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTSecret))
		{
			clients := protected.Group("/clients")
			{
				clients.POST("/upload", h.Import.Upload)
				clients.POST("/update-csv", h.Import.UpdateCSV)
				clients.GET("/duplicates/:filename", h.Import.DownloadDuplicates)

				clients.GET("", h.Client.Index)
				clients.GET("/ids", h.Client.IDs)
				clients.GET("/stats", h.Client.Stats)
				clients.GET("/export", h.Client.Export)
				clients.POST("", h.Client.Create)
				clients.POST("/delete-multiple", h.Client.DeleteMany)
				clients.GET("/:id", h.Client.Show)
				clients.PUT("/:id", h.Client.Update)
				clients.PATCH("/:id/read-status", h.Client.ToggleRead)
				clients.DELETE("/:id", h.Client.Delete)
			}

			audit := protected.Group("/audit-logs")
			{
				audit.GET("", h.Audit.Index)
				audit.GET("/stats", h.Audit.Stats)
				audit.GET("/export", h.Audit.Export)
				audit.GET("/client/:clientId", h.Audit.ByClient)
				audit.GET("/trading-code/:tradingCode", h.Audit.ByTradingCode)
			}

			savedFilters := protected.Group("/saved-filters")
			{
				savedFilters.GET("", h.SavedFilter.Index)
				savedFilters.POST("", h.SavedFilter.Create)
				savedFilters.GET("/:id", h.SavedFilter.Show)
				savedFilters.PUT("/:id", h.SavedFilter.Update)
				savedFilters.DELETE("/:id", h.SavedFilter.Delete)
				savedFilters.POST("/:id/use", h.SavedFilter.Use)
			}

			// Admin-only routes
			admin := protected.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				admin.DELETE("/clients/all/clear", h.Client.DeleteAll)
				admin.DELETE("/audit-logs/:id", h.Audit.Delete)

				admin.GET("/cleanup/stats", h.Cleanup.Stats)
				admin.POST("/cleanup/manual", h.Cleanup.Manual)
				admin.POST("/cleanup/force", h.Cleanup.Force)

				admin.GET("/jobs/status", h.Job.Status)
			}
		}
	}

	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config) {
	// Abandoned uploads, including leftovers from a previous process
	worker.ScheduleEveryImmediate("sweep:temp", cfg.CleanupInterval, func(ctx context.Context) error {
		res, err := svcs.Cleanup.SweepTemp()
		logger.Debug("[Job] Temp sweep finished", slog.Int("deleted", res.DeletedCount))
		return err
	})

	// Duplicate reports nobody downloaded
	worker.ScheduleEveryImmediate("sweep:duplicates", cfg.CleanupInterval, func(ctx context.Context) error {
		res, err := svcs.Cleanup.SweepDuplicates()
		logger.Debug("[Job] Duplicate sweep finished", slog.Int("deleted", res.DeletedCount))
		return err
	})

	logger.Info("Scheduled recurring jobs", "interval", cfg.CleanupInterval.String())
}
