// main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/baiweichihu/26b-website-sub001/internal/api"
	"github.com/baiweichihu/26b-website-sub001/internal/app"
	"github.com/baiweichihu/26b-website-sub001/internal/config"
	"github.com/baiweichihu/26b-website-sub001/internal/cron"
	"github.com/baiweichihu/26b-website-sub001/internal/db"
	"github.com/baiweichihu/26b-website-sub001/internal/email"
	"github.com/baiweichihu/26b-website-sub001/internal/notification"
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/repository/memory"
	"github.com/baiweichihu/26b-website-sub001/internal/seed"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/baiweichihu/26b-website-sub001/internal/socket"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// ============================================
	// Load environment variables
	// ============================================
	envErr := godotenv.Load()

	// ============================================
	// Load configuration
	// ============================================
	cfg := config.Load()
	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}

	// ============================================
	// Set Gin mode
	// ============================================
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ============================================
	// Initialize Storage
	// ============================================
	var repos *repository.Repositories
	var redisDB *db.RedisDB

	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		repos = memory.NewRepositories()
		logger.Warn("using in-memory storage, data is lost on restart")
	default:
		logger.Info("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}

		pg, err := db.NewPostgresDB(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pg.Close()

		// Redis is optional: sessions fall back to process memory and
		// realtime hints stay on this instance.
		if cfg.RedisURL != "" {
			redisDB, err = db.NewRedisDB(ctx, cfg.RedisURL, logger)
			if err != nil {
				logger.Warn("failed to connect to Redis, continuing without it", zap.Error(err))
				redisDB = nil
			} else {
				defer redisDB.Close()
			}
		}

		if redisDB != nil {
			repos = repository.NewRepositories(pg.Pool, redisDB)
		} else {
			repos = repository.NewRepositories(pg.Pool, nil)
			repos.SessionRepo = memory.NewSessionRepository()
		}
	}
	logger.Info("repositories initialized", zap.String("driver", cfg.StorageDriver))

	// ============================================
	// Initialize Email Service (optional)
	// ============================================
	var emailQueue *email.EmailQueue
	if cfg.SMTPHost != "" {
		emailSvc := email.NewService(&email.Config{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			User:        cfg.SMTPUser,
			Password:    cfg.SMTPPassword,
			From:        cfg.SMTPFrom,
			FromName:    cfg.SMTPFromName,
			UseTLS:      cfg.SMTPUseTLS,
			FrontendURL: cfg.FrontendURL,
		}, logger)
		emailQueue = email.NewEmailQueue(emailSvc, 2, logger)
		defer emailQueue.Stop()
		logger.Info("email service initialized")
	} else {
		logger.Info("email not configured (SMTP_HOST not set)")
	}

	// ============================================
	// Initialize WebSocket Hub
	// ============================================
	hub := socket.NewHub(logger)
	go hub.Run(ctx)
	broadcaster := socket.NewBroadcaster(hub, logger)

	if redisDB != nil {
		relay := socket.NewRedisRelay(redisDB, hub, logger)
		broadcaster.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime relay stopped", zap.Error(err))
			}
		}()
	}

	// ============================================
	// Seed Data (for development)
	// ============================================
	if cfg.Environment != "production" {
		if err := seed.SeedData(ctx, repos, logger); err != nil {
			logger.Warn("seeding failed", zap.Error(err))
		}
	}

	// ============================================
	// Initialize Services
	// ============================================
	notificationSvc := notification.NewService(repos.NotificationRepo, logger)
	notificationSvc.SetSignaler(broadcaster)

	deps := &service.ServiceDeps{
		Config:    cfg,
		Repos:     repos,
		Publisher: notificationSvc,
		Signaler:  broadcaster,
		Logger:    logger,
	}
	if emailQueue != nil {
		deps.Mailer = emailQueue
	}
	services := service.NewServices(deps)

	// ============================================
	// Initialize Cron Scheduler
	// ============================================
	cronScheduler := cron.NewScheduler(services.AccessRequest, notificationSvc, cfg.NotificationRetentionDays, logger)
	if err := cronScheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer cronScheduler.Stop()

	// ============================================
	// Create Router
	// ============================================
	r := api.NewRouter(api.RouterDeps{
		Config:   cfg,
		Services: services,
		Hub:      hub,
		Logger:   logger,
		Health: func() gin.H {
			return gin.H{
				"cache": getCacheStatus(redisDB),
				"email": getEmailStatus(emailQueue),
			}
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	stop()

	logger.Info("server exited")
}

func getCacheStatus(redisDB *db.RedisDB) string {
	if redisDB != nil {
		return "connected"
	}
	return "disabled"
}

func getEmailStatus(queue *email.EmailQueue) string {
	if queue != nil {
		return "configured"
	}
	return "disabled"
}
