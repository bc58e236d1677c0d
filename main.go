package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CUknot/nexus_chat/config"
	"github.com/CUknot/nexus_chat/database"
	"github.com/CUknot/nexus_chat/docs"
	"github.com/CUknot/nexus_chat/routes"
	"github.com/CUknot/nexus_chat/services"
	"github.com/CUknot/nexus_chat/utils"
	"github.com/CUknot/nexus_chat/websocket"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// @title           Nexus Chat API
// @version         1.0
// @description     One-to-one chat server: rooms, history and realtime delivery
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if cfg.JWTSecret == "your-secret-key" {
		logger.Warn("JWT_SECRET is not set, using the development secret")
	}

	// Initialize database
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	tokens := utils.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	users := services.NewUserService(db, tokens)
	rooms := services.NewRoomService(db, users)
	messages := services.NewMessageService(db)
	verifier := services.NewTokenVerifier(tokens, users)
	hub := websocket.NewHub(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}

		relay := websocket.NewRedisRelay(rdb, hub, cfg.ChannelPrefix, logger)
		hub.UseRelay(relay)
		g.Go(func() error { return relay.Run(gctx) })
	}

	// Set up Swagger info
	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	router := routes.Setup(routes.Dependencies{
		DB:             db,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		Verifier:       verifier,
		Users:          users,
		Rooms:          rooms,
		Messages:       messages,
		Gateway:        websocket.NewGateway(hub, verifier, messages, cfg.AllowedOrigins, logger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Server running", "port", cfg.Port)
		logger.Info("Swagger documentation available", "url", fmt.Sprintf("http://localhost:%s/swagger/index.html", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		hub.Shutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
