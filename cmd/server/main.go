package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/api"
	"github.com/hyleo/genmedia_go_server/internal/api/handler"
	"github.com/hyleo/genmedia_go_server/internal/database"
	"github.com/hyleo/genmedia_go_server/internal/pkg/cron"
	"github.com/hyleo/genmedia_go_server/internal/pkg/oss"
	"github.com/hyleo/genmedia_go_server/internal/pkg/pubsub"
	"github.com/hyleo/genmedia_go_server/internal/pkg/queue"
	"github.com/hyleo/genmedia_go_server/internal/pkg/ws"
	"github.com/hyleo/genmedia_go_server/internal/provider"
	"github.com/hyleo/genmedia_go_server/internal/repository"
	"github.com/hyleo/genmedia_go_server/internal/service"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化存储（可选）
	var store service.MediaStore
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			store = ossClient
			log.Println("OSS client initialized")
		}
	}

	// 初始化队列和进度推送
	videoQueue := queue.NewQueue(rdb, cfg.Queue.VideoQueue)
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()

	// 初始化 Repository
	accountRepo := repository.NewAccountRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	genRepo := repository.NewGenerationRepository(db)
	usageRepo := repository.NewUsageLogRepository(db)

	// 初始化生成服务适配器
	providerClient := provider.NewClient(&cfg.Provider)

	// 初始化 Service
	ledgerService := service.NewLedgerService(db, accountRepo, txRepo, cfg)
	generationService := service.NewGenerationService(db, genRepo, accountRepo, usageRepo,
		ledgerService, providerClient, store, videoQueue, publisher, cfg)
	reconcileService := service.NewReconcileService(genRepo, ledgerService, store)

	// 进度消息转发到 WebSocket
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.ProgressMessage) {
			wsHub.SendToAccount(msg.AccountID, &ws.Message{Type: msg.Type, Data: msg})
		})
		if err != nil && err != context.Canceled {
			log.Printf("Progress subscriber stopped: %v", err)
		}
	}()

	// 定时任务：残留清扫 + 月度发放
	staleAfter := time.Duration(cfg.Reconcile.StaleAfterMinutes) * time.Minute
	sweepInterval := time.Duration(cfg.Reconcile.SweepIntervalMinutes) * time.Minute
	cronService := cron.NewService(ledgerService, reconcileService, staleAfter, sweepInterval)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Handler
	generationHandler := handler.NewGenerationHandler(generationService)
	accountHandler := handler.NewAccountHandler(ledgerService)
	paymentHandler := handler.NewPaymentHandler(ledgerService, cfg)
	adminHandler := handler.NewAdminHandler(ledgerService, reconcileService, cfg)
	modelsHandler := handler.NewModelsHandler(generationService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret)

	// 初始化 Router
	router := api.NewRouter(
		generationHandler,
		accountHandler,
		paymentHandler,
		adminHandler,
		modelsHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
