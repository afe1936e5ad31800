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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"chat_gateway/internal/config"
	"chat_gateway/internal/gateway"
	"chat_gateway/internal/handler"
	"chat_gateway/internal/middleware"
	"chat_gateway/internal/repository"
	"chat_gateway/internal/service"
	"chat_gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)

	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("failed to ping database", "error", err)
	}
	appLogger.Info("database connection established")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("failed to connect to redis", "error", err)
	}
	appLogger.Info("redis connection established")

	repos := repository.NewRepositories(dbPool, rdb, appLogger)
	services := service.NewServices(repos, cfg, appLogger)

	broadcaster, err := newBroadcaster(cfg, rdb, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize broadcaster", "error", err)
	}
	defer broadcaster.Close()

	registry := gateway.NewRegistry(appLogger)
	gw := gateway.NewGateway(
		cfg.Gateway,
		services.Auth,
		services.Access,
		services.Chat,
		services.RateLimit,
		broadcaster,
		registry,
		appLogger,
	)

	handlers := handler.NewHandlers(gw, cfg, appLogger)
	router := setupRouter(handlers, cfg, appLogger)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// No WriteTimeout: it would kill long-lived websocket sessions.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port, "broadcast_driver", cfg.Gateway.BroadcastDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Live connections first: notice, grace delay, close. Then the
	// listener.
	registry.Shutdown(ctx, cfg.Gateway.ShutdownGrace)

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("server forced to shutdown", "error", err)
	}

	appLogger.Info("server exited")
}

func newBroadcaster(cfg *config.Config, rdb *redis.Client, log logger.Logger) (gateway.Broadcaster, error) {
	switch cfg.Gateway.BroadcastDriver {
	case "redis":
		return gateway.NewRedisBroadcaster(rdb, log), nil
	case "nats":
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		return gateway.NewNATSBroadcaster(nc, log), nil
	default:
		return gateway.NewMemoryBroadcaster(log), nil
	}
}

func setupRouter(handlers *handler.Handlers, cfg *config.Config, log logger.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.Health.Check)

	// WebSocket endpoint: the whole chat protocol lives behind this.
	router.GET("/ws/chat/:id", handlers.WebSocket.HandleChat)

	return router
}
