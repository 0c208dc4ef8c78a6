package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"oba-connect/internal/config"
	"oba-connect/internal/db"
	"oba-connect/internal/email"
	apihttp "oba-connect/internal/http"
	"oba-connect/internal/realtime"
	"oba-connect/internal/repository"
	"oba-connect/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	client, database, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer func() {
		if err := db.Disconnect(client); err != nil {
			logger.Warn("mongo disconnect", zap.Error(err))
		}
	}()
	if err := db.EnsureIndexes(ctx, database); err != nil {
		logger.Warn("ensure indexes failed", zap.Error(err))
	}

	userRepo := repository.NewMongoUserRepository(database)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	cacheTTL := time.Duration(cfg.SessionCacheTTLMinutes) * time.Minute
	rateWindow := time.Duration(cfg.RateLimitWindowSeconds) * time.Second

	var (
		accessBlacklist  service.RevocationRegistry
		refreshBlacklist service.RevocationRegistry
		sessionCache     service.SessionCache
		refreshSlot      service.RefreshSlot
		limiter          service.RateLimiter
		redisClient      *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using memory fallbacks", zap.Error(err))
		} else {
			accessBlacklist = service.NewRedisRevocationRegistry(redisClient, logger, service.AccessBlacklistPrefix)
			refreshBlacklist = service.NewRedisRevocationRegistry(redisClient, logger, service.RefreshBlacklistPrefix)
			sessionCache = service.NewRedisSessionCache(redisClient, logger, cacheTTL)
			refreshSlot = service.NewRedisRefreshSlot(redisClient)
			limiter = service.NewRedisRateLimiter(redisClient, rateWindow, cfg.RateLimitMax)
		}
		cancel()
		defer redisClient.Close()
	}
	if limiter == nil {
		limiter = service.NewMemoryRateLimiter(rateWindow, cfg.RateLimitMax)
	}

	tokenSvc := service.NewTokenService(
		cfg.JWTAccessSecret,
		cfg.JWTRefreshSecret,
		time.Duration(cfg.AccessTTLMinutes)*time.Minute,
		time.Duration(cfg.RefreshTTLMinutes)*time.Minute,
	)
	authSvc := service.NewAuthService(
		logger,
		userRepo,
		tokenSvc,
		accessBlacklist,
		refreshBlacklist,
		sessionCache,
		refreshSlot,
		emailSender,
		cfg.PublicBaseURL,
		cfg.BcryptCost,
	)

	hub := realtime.NewHub(logger)
	authHandler := apihttp.NewAuthHandler(logger, authSvc, hub)
	realtimeHandler := apihttp.NewRealtimeHandler(hub)
	router := apihttp.NewRouter(logger, authSvc, limiter, authHandler, realtimeHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}
}
