package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"washery_chat/internal/api/handlers"
	"washery_chat/internal/api/router"
	"washery_chat/internal/chat/app"
	"washery_chat/internal/chat/domain"
	"washery_chat/internal/chat/repository"
	"washery_chat/pkg/config"
	"washery_chat/pkg/database"
	"washery_chat/pkg/logger"
	"washery_chat/pkg/metrics"
	"washery_chat/pkg/token"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatClient, config.EnvConfig.ChatClientLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.ChatClient](config.EnvConfig.ChatClient, config.EnvConfig.ChatClientYAMLPath)
	cfg.ApplyDefaults()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 目前登入者
	userID, err := token.CurrentUserID(cfg.AuthToken)
	if err != nil {
		logger.Log.Warn("auth token carries no user id, own messages are treated as incoming", zap.Error(err))
	}

	// 2. Redis (optional) 保存連線狀態
	var recorder app.StatusRecorder
	if cfg.Redis.Enabled {
		conn := database.RedisConnection{
			Addr:          cfg.Redis.Addr,
			DB:            cfg.Redis.RedisDB,
			RetryCount:    3,
			RetryInterval: 2 * time.Second,
		}
		if conn.Addr == "" {
			conn.MasterName, conn.SentinelAddrs = config.GetRedisSetting()
		}
		redisClient, err := database.NewRedisClient(ctx, conn)
		if err != nil {
			logger.Log.Fatal("connect redis", zap.Error(err))
		}
		defer redisClient.Close()

		statusRepo := repository.NewStatusRepository(
			database.NewRedisRepository[domain.ConnectionStatus](redisClient), userID, cfg.Redis.StatusTTL)
		if last, err := statusRepo.LoadStatus(ctx); err != nil {
			logger.Log.Warn("load last connection status", zap.Error(err))
		} else if last != nil {
			logger.Log.Info("last connection status",
				zap.String("state", string(last.State)),
				zap.Time("updated_at", last.UpdatedAt),
				zap.String("error", last.Error),
			)
		}
		recorder = statusRepo
	}

	// 3. stores, inbound handlers, connection
	stores := app.NewStores(cfg.Typing.TTL)
	eventRouter := app.NewEventRouter()
	syncHandler := app.NewChatSyncHandler(stores, userID)
	syncHandler.Register(eventRouter)

	manager := app.NewConnectionManager(eventRouter, stores.Status, cfg, recorder)
	actions := app.NewChatActions(manager, stores, syncHandler, cfg.Typing.EmitInterval)

	var links *app.LinkUseCase
	if cfg.APIBaseURL != "" {
		links = app.NewLinkUseCase(repository.NewLinkRepository(cfg.APIBaseURL, cfg.AuthToken, cfg.HTTPTimeout), stores.Links)
	}

	// 重連成功後重新加入目前的 room
	unsubscribe := manager.OnStateChange(func(st domain.ConnectionStatus) {
		logger.Log.Info("connection state", zap.String("state", string(st.State)), zap.Int("attempt", st.ReconnectAttempt))
		if st.State != domain.StateConnected {
			return
		}
		if err := actions.Rejoin(); err != nil {
			logger.Log.Warn("rejoin active thread", zap.Error(err))
		}
	})
	defer unsubscribe()

	go app.RunTypingSweeper(ctx, stores.Presence, cfg.Typing.SweepInterval)

	if err := manager.Connect(ctx, cfg.ServerURL, cfg.AuthToken); err != nil {
		logger.Log.Error("initial connect", zap.String("server_url", cfg.ServerURL), zap.Error(err))
	}

	// 4. debug API
	r := fiber.New(fiber.Config{DisableStartupMessage: config.IsProduction()})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatClientLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))
	router.RegisterRoutes(r, handlers.NewStateHandler(stores, links), cfg.DebugAuth)

	port := cfg.DebugPort
	if config.EnvConfig.ChatClientPort != "" {
		port = config.EnvConfig.ChatClientPort
	}

	go func() {
		logger.Log.Info("chat client debug api listening", zap.String("port", port))
		if err := r.Listen(":" + port); err != nil {
			logger.Log.Error("debug api stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info("shutting down chat client")

	manager.Disconnect()
	if err := r.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Log.Warn("debug api shutdown", zap.Error(err))
	}
}
