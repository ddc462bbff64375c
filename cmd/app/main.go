package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"support-bot-backend/internal/common/logger"
	"support-bot-backend/internal/config"
	botHTTP "support-bot-backend/internal/features/bot/delivery/http"
	botService "support-bot-backend/internal/features/bot/service"
	moderationService "support-bot-backend/internal/features/moderation/service"
	panelService "support-bot-backend/internal/features/panel/service"
	relayRepo "support-bot-backend/internal/features/relay/repository/redis"
	relayService "support-bot-backend/internal/features/relay/service"
	settingsRepo "support-bot-backend/internal/features/settings/repository/redis"
	settingsService "support-bot-backend/internal/features/settings/service"
	userRepo "support-bot-backend/internal/features/user/repository/redis"
	verificationHTTP "support-bot-backend/internal/features/verification/delivery/http"
	verificationService "support-bot-backend/internal/features/verification/service"
	"support-bot-backend/internal/platform/redis"
	"support-bot-backend/internal/platform/telegram"
)

func main() {
	cfg := config.Load()

	logger.Init("support-bot-backend", cfg.Debug)
	logger.Info().Bool("debug", cfg.Debug).Msg("Starting support bot backend")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	redisClient, err := redis.Open(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()
	logger.Info().Str("host", cfg.Redis.Host).Msg("Redis connection established")

	tg := telegram.NewClient(cfg.Telegram.BotToken)

	userRepository := userRepo.NewUserRepository(redisClient.Client)
	messageRepository := relayRepo.NewMessageRepository(redisClient.Client)
	settingsRepository := settingsRepo.NewSettingsRepository(redisClient.Client)

	settingsSvc := settingsService.NewService(settingsRepository)
	relaySvc := relayService.NewService(tg, userRepository, messageRepository, settingsSvc, cfg.Telegram.AdminGroupID)
	moderationSvc := moderationService.NewService(tg, userRepository, settingsSvc, cfg.Telegram.AdminGroupID)
	panelSvc := panelService.NewService(tg, settingsSvc)
	verificationSvc := verificationService.NewService(tg, userRepository, settingsSvc, relaySvc, cfg)
	dispatcher := botService.NewDispatcher(cfg, tg, userRepository, messageRepository, settingsSvc, relaySvc, moderationSvc, panelSvc, verificationSvc)

	logger.Info().Msg("Services initialized")

	{
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		dispatcher.RegisterCommands(ctx)
		cancel()
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type"}
	router.Use(cors.New(corsConfig))

	botHTTP.NewHandler(dispatcher).RegisterRoutes(router)
	verificationHTTP.NewHandler(verificationSvc).RegisterRoutes(router)

	logger.Info().Msg("Routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}
