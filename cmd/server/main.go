// Package main runs the recording controller HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/livekit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/duetcast/controller/config"
	"github.com/duetcast/controller/internal/egress"
	"github.com/duetcast/controller/internal/middleware"
	"github.com/duetcast/controller/internal/presence"
	"github.com/duetcast/controller/internal/recordings"
	"github.com/duetcast/controller/internal/roomkey"
	"github.com/duetcast/controller/internal/tokens"
	"github.com/duetcast/controller/pkg/database"
	"github.com/duetcast/controller/pkg/redis"
	"github.com/duetcast/controller/pkg/rtstore"
	"github.com/duetcast/controller/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()
	rt := rtstore.NewClient(rdb.Client, logger)

	var s3Client *storage.S3
	if cfg.AWS.RecordingsBucket != "" {
		s3Cfg := storage.S3Config{
			Region:                cfg.AWS.Region,
			AccessKeyID:           cfg.AWS.AccessKeyID,
			SecretAccessKey:       cfg.AWS.SecretAccessKey,
			RecordingsBucket:      cfg.AWS.RecordingsBucket,
			PresignExpireMinutes:  cfg.AWS.PresignExpireMinutes,
			SignedLinkExpireHours: cfg.AWS.SignedLinkExpireHours,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	livekitOK := cfg.LiveKit.URL != "" && cfg.LiveKit.APIKey != "" && cfg.LiveKit.APISecret != ""
	if !livekitOK {
		logger.Warn("LiveKit credentials incomplete; egress and tokens will fail until configured")
	}

	resolver := roomkey.Resolver{BaseURL: cfg.LiveKit.RoomBaseURL}

	// Tokens (presence guard runs first)
	guard := presence.NewGuard(rt, cfg.Presence, logger)
	issuer := tokens.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, time.Duration(cfg.LiveKit.TokenTTLHours)*time.Hour)
	tokenHandler := tokens.NewHandler(issuer, guard, resolver, logger)

	// Recording lifecycle
	recRepo := recordings.NewRepository(pool)
	registry := egress.NewRegistry()
	var objectStore egress.ObjectStore
	if s3Client != nil {
		objectStore = s3Client
	}
	finalizer := egress.NewFinalizer(registry, objectStore, rt, recRepo, resolver, cfg.Recording, logger)
	controller := egress.NewController(
		egress.NewClient(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret),
		registry, recRepo, cfg.Recording, logger,
	)
	controller.SetFinalizeFunc(func(egressID string, info *livekit.EgressInfo) {
		go finalizer.Finalize(context.Background(), egressID, info)
	})
	recordingHandler := egress.NewHandler(controller, registry, rt, livekitOK, logger)
	webhookHandler := egress.NewWebhookHandler(cfg.LiveKit.WebhookKey, cfg.LiveKit.WebhookSecret, finalizer, logger)
	catalogHandler := recordings.NewHandler(recRepo, s3Client, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Webhook authenticates by signature, not by API key
	router.POST("/webhooks/livekit", webhookHandler.Handle)

	api := router.Group("")
	api.Use(middleware.APIKey(cfg.Server.ControlAPIKey))
	{
		api.GET("/health", recordingHandler.Health)
		api.POST("/token", tokenHandler.Issue)
		api.POST("/recordings/start", recordingHandler.Start)
		api.POST("/recordings/stop", recordingHandler.Stop)
		api.GET("/rooms/:room/recordings", catalogHandler.ListByRoom)
		api.GET("/recordings/:id/download-url", catalogHandler.GenerateDownloadURL)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
