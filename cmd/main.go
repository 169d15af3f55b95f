package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reportdesk/internal/config"
	"reportdesk/internal/handlers"
	"reportdesk/internal/middleware"
	"reportdesk/internal/repository"
	"reportdesk/internal/service"
	"reportdesk/internal/worker"
	"reportdesk/pkg/database"
	"reportdesk/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	log.Println("=== Report Desk Backend Starting ===")

	cfg := config.Load()
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	db, err := database.Connect(database.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.DBName,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	redisClient, err := redis.Connect(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Repositories
	reportRepo := repository.NewReportRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	// Services
	importService := service.NewImportService(reportRepo, auditRepo, historyRepo, cacheRepo)
	reportService := service.NewReportService(reportRepo, historyRepo, cacheRepo, cfg.Cache.TTL)
	exportService := service.NewExportService(historyRepo, cfg.Import.ExportDir)

	// Handlers
	importHandler := handlers.NewImportHandler(importService, cfg.Import.MaxPayloadBytes, cfg.Import.MaxUploadBytes)
	reportHandler := handlers.NewReportHandler(reportService)
	exportHandler := handlers.NewExportHandler(exportService)

	// Background refresh of the picks-history projection
	scheduler := worker.NewScheduler()
	if cfg.Workers.HistoryEnabled {
		scheduler.AddWorker(worker.NewHistoryWorker(reportService, cfg.Workers.HistoryInterval))
		log.Printf("History Worker enabled (interval: %v)", cfg.Workers.HistoryInterval)
	}
	go scheduler.Start()
	defer scheduler.Stop()

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
		log.Println("Running in DEBUG mode")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", cfg.App.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if !cfg.App.Debug {
		limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
		r.Use(middleware.RateLimitMiddleware(limiter))
		log.Printf("Rate limiting enabled: %d req/sec, burst: %d",
			cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	// Per-caller quota on the import endpoint
	var importLimiter middleware.RateLimiter
	if cfg.RateLimit.UseRedis {
		importLimiter = middleware.NewRedisFixedWindowLimiter(cacheRepo, cfg.RateLimit.ImportsPerWindow, cfg.RateLimit.Window)
		log.Println("Import rate limiter: redis fixed window")
	} else {
		importLimiter = middleware.NewFixedWindowLimiter(cfg.RateLimit.ImportsPerWindow, cfg.RateLimit.Window)
		log.Println("Import rate limiter: in-memory fixed window")
	}

	api := r.Group("/api/v1")

	// Public read API
	api.GET("/reports", reportHandler.ListReports)
	api.GET("/reports/:slug", reportHandler.GetReport)
	api.GET("/picks", reportHandler.ListPicks)

	// Admin API
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin([]byte(cfg.Auth.JWTSecret)))
	admin.POST("/imports", middleware.PerKeyRateLimit(importLimiter), importHandler.CreateImport)
	admin.GET("/imports", importHandler.ListImports)
	admin.GET("/exports/picks-history", exportHandler.ExportPicksHistory)

	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"services": gin.H{
				"database": "connected",
				"redis":    "connected",
			},
		})
	})

	api.GET("/system/stats", func(c *gin.Context) {
		ctx := c.Request.Context()

		redisStats, _ := redis.GetStats(redisClient)

		reportCount, _ := reportRepo.Count(ctx)
		auditCount, _ := auditRepo.Count(ctx)
		historyCount, _ := historyRepo.Count(ctx)

		c.JSON(200, gin.H{
			"database": gin.H{
				"reports":       reportCount,
				"import_audits": auditCount,
				"picks_history": historyCount,
			},
			"redis": redisStats,
			"workers": gin.H{
				"history_enabled": cfg.Workers.HistoryEnabled,
			},
		})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.App.Port)
		log.Printf("API available at http://localhost:%s/api/v1", cfg.App.Port)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start:", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited properly")
}
