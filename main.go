package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"roster/presence-server/config"
	"roster/presence-server/db"
	"roster/presence-server/handlers"
	"roster/presence-server/middleware"
	"roster/presence-server/services"
	"roster/presence-server/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	logger := utils.NewLogger()

	// Connect to database
	database, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	credentials := db.NewCredentialStore(database)

	// Select the presence store backend
	var store services.Store
	switch cfg.StoreBackend {
	case "redis":
		redisClient, err := services.NewRedisClient(cfg.RedisURL, cfg.RedisDB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisClient.Close()
		store = services.NewRedisStore(redisClient, logger)
	default:
		store = services.NewMemoryStore()
	}

	// Initialize services
	presenceService := services.NewPresenceService(store, logger, cfg.PresenceTTL)
	authService := services.NewAuthService(credentials, store, logger, cfg.JWTSecret, cfg.TokenExpiry)
	sweeper := services.NewSweeper(store, logger, cfg.PresenceTTL, cfg.SweepInterval)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, logger)
	presenceHandler := handlers.NewPresenceHandler(presenceService, logger)

	// Start the staleness sweeper
	sweeper.Start()

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	// Open endpoints
	router.GET("/health", handlers.HealthCheck)
	router.POST("/register", authHandler.Register)
	router.POST("/login", authHandler.Login)

	// Presence endpoints require a session token
	presence := router.Group("/presence")
	presence.Use(middleware.Auth(cfg.JWTSecret))
	{
		presence.POST("/heartbeat", presenceHandler.Heartbeat)
		presence.POST("/status", presenceHandler.UpdateStatus)
		presence.GET("/status", presenceHandler.GetStatus)
		presence.GET("/available", presenceHandler.ListAvailable)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting presence server", "port", cfg.Port, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the sweeper
	sweeper.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
