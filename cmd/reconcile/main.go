package main

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/database"
	"github.com/hyleo/genmedia_go_server/internal/pkg/oss"
	"github.com/hyleo/genmedia_go_server/internal/repository"
	"github.com/hyleo/genmedia_go_server/internal/service"
)

var (
	dryRun       = flag.Bool("dry-run", true, "Dry run mode, count without reconciling")
	staleMinutes = flag.Int("stale-after", 0, "Minutes before a non-terminal generation is stale (0 = use config)")
)

func main() {
	flag.Parse()

	log.Println("Starting reconcile task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 连接数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	// 初始化存储（可选，缺省时跳过产物清理的远端删除）
	var store service.MediaStore
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			store = ossClient
		}
	}

	ledgerService := service.NewLedgerService(db,
		repository.NewAccountRepository(db), repository.NewTransactionRepository(db), cfg)
	reconcileService := service.NewReconcileService(repository.NewGenerationRepository(db), ledgerService, store)

	minutes := *staleMinutes
	if minutes <= 0 {
		minutes = cfg.Reconcile.StaleAfterMinutes
	}
	if minutes <= 0 {
		minutes = 60
	}
	staleAfter := time.Duration(minutes) * time.Minute
	log.Printf("Stale threshold: %s", staleAfter)

	count, err := reconcileService.Count(staleAfter)
	if err != nil {
		log.Fatalf("Failed to count reconcilable records: %v", err)
	}

	log.Println(strings.Repeat("=", 60))
	log.Println("Reconcile Summary")
	log.Println(strings.Repeat("=", 60))
	log.Printf("Stuck processing: %d", count.StuckProcessing)
	log.Printf("Stuck pending:    %d", count.StuckPending)
	log.Printf("Missed refunds:   %d", count.MissedRefunds)
	log.Printf("Failed cleanup:   %d", count.FailedCleanup)

	if *dryRun {
		log.Println("DRY RUN MODE - nothing was reconciled")
		log.Println("Run with -dry-run=false to reconcile")
		log.Println(strings.Repeat("=", 60))
		return
	}

	result, err := reconcileService.Reconcile(staleAfter)
	if err != nil {
		log.Fatalf("Reconcile failed: %v", err)
	}

	log.Printf("Marked failed (refunded): %d", result.MarkedFailed)
	log.Printf("Deleted pending:          %d", result.Deleted)
	log.Printf("Refunds backfilled:       %d", result.Refunded)
	log.Printf("Artifacts cleaned:        %d", result.ArtifactsCleaned)
	log.Println("Reconcile completed")
	log.Println(strings.Repeat("=", 60))
}
