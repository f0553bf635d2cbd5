package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/database"
	"github.com/hyleo/genmedia_go_server/internal/pkg/oss"
	"github.com/hyleo/genmedia_go_server/internal/pkg/pubsub"
	"github.com/hyleo/genmedia_go_server/internal/pkg/queue"
	"github.com/hyleo/genmedia_go_server/internal/provider"
	"github.com/hyleo/genmedia_go_server/internal/repository"
	"github.com/hyleo/genmedia_go_server/internal/service"
	"github.com/hyleo/genmedia_go_server/internal/worker"
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

	// 初始化 Repository 和 Service
	accountRepo := repository.NewAccountRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	genRepo := repository.NewGenerationRepository(db)
	ledgerService := service.NewLedgerService(db, accountRepo, txRepo, cfg)

	providerClient := provider.NewClient(&cfg.Provider)

	// 创建任务处理器
	processor := worker.NewProcessor(genRepo, accountRepo, ledgerService, providerClient, store, publisher, cfg)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	maxWorkers := cfg.Queue.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	log.Printf("Worker started, max workers: %d", maxWorkers)

	// 启动 worker 循环
	for i := 0; i < maxWorkers; i++ {
		go func(workerID int) {
			for {
				select {
				case <-ctx.Done():
					log.Printf("Worker %d shutting down", workerID)
					return
				default:
					// 从队列获取任务
					msg, err := videoQueue.Pop(ctx, 5*time.Second)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Printf("Worker %d: failed to pop job: %v", workerID, err)
						continue
					}

					if msg == nil {
						continue // 超时，继续等待
					}

					log.Printf("Worker %d: processing generation %d", workerID, msg.GenerationID)
					if err := processor.Process(ctx, msg); err != nil {
						log.Printf("Worker %d: generation %d failed: %v", workerID, msg.GenerationID, err)
					}
				}
			}
		}(i)
	}

	// 等待 context 取消
	<-ctx.Done()
	log.Println("Worker shutdown complete")
}
