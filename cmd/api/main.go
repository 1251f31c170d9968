package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"splitsteal-backend/internal/config"
	"splitsteal-backend/internal/handlers"
	"splitsteal-backend/internal/services"
)

func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.IsProduction() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := setupLogger(cfg)
	if envErr != nil {
		logger.Info().Msg("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := quartz.NewReal()

	var (
		store   services.GameStore
		escrow  services.Escrow
		limiter services.RateLimiter
	)

	switch cfg.StoreBackend {
	case config.StoreRedis:
		redisService, err := services.NewRedisService(ctx, cfg, clock)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisURL).Msg("failed to connect to redis")
		}
		defer redisService.Close()

		store, escrow, limiter = redisService, redisService, redisService
	default:
		store = services.NewMemoryStore()
		escrow = services.NewMemoryEscrow(clock)
		limiter = services.NewMemoryRateLimiter(clock)
	}

	registry := services.NewRegistry(store, escrow, clock, cfg.RevealWindow, logger)
	gameEngine := services.NewGameEngine(registry, escrow, clock, logger)

	wsHandler := handlers.NewWebSocketHandler(clock, logger)
	defer wsHandler.Stop()
	gameEngine.SetBroadcaster(wsHandler)

	jwtService := services.NewJWTService(cfg, clock)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := (&handlers.Router{
		Auth:         handlers.NewAuthHandler(jwtService, cfg.AdminKey),
		Games:        handlers.NewGameHandler(gameEngine, clock),
		Users:        handlers.NewUserHandler(escrow),
		WebSocket:    wsHandler,
		JWT:          jwtService,
		RateLimiter:  limiter,
		RateLimit:    cfg.RateLimitPerMinute,
		EnableFaucet: !cfg.IsProduction(),
		Logger:       logger,
	}).Engine()

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreBackend).
			Dur("reveal_window", cfg.RevealWindow).
			Msg("server starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
