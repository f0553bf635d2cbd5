package cron

import (
	"log"
	"time"

	"github.com/hyleo/genmedia_go_server/internal/service"
)

type Service struct {
	ledgerService    *service.LedgerService
	reconcileService *service.ReconcileService
	staleAfter       time.Duration
	sweepInterval    time.Duration
	stopChan         chan struct{}
}

func NewService(
	ledgerService *service.LedgerService,
	reconcileService *service.ReconcileService,
	staleAfter time.Duration,
	sweepInterval time.Duration,
) *Service {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &Service{
		ledgerService:    ledgerService,
		reconcileService: reconcileService,
		staleAfter:       staleAfter,
		sweepInterval:    sweepInterval,
		stopChan:         make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runReconcileSweep()
	go s.runMonthlyAllowance()
	log.Println("Cron service started (reconcile sweep + monthly allowance)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runReconcileSweep 周期性清扫残留记录
func (s *Service) runReconcileSweep() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	result, err := s.reconcileService.Reconcile(s.staleAfter)
	if err != nil {
		log.Printf("Reconcile sweep failed: %v", err)
		return
	}
	if result.Deleted > 0 || result.MarkedFailed > 0 || result.Refunded > 0 || result.ArtifactsCleaned > 0 {
		log.Printf("Reconcile sweep: deleted=%d, marked_failed=%d, refunded=%d, artifacts_cleaned=%d",
			result.Deleted, result.MarkedFailed, result.Refunded, result.ArtifactsCleaned)
	}
}

// runMonthlyAllowance 每月一号发放月度积分
func (s *Service) runMonthlyAllowance() {
	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	timer := time.NewTimer(next.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.grantAllowances()
			now := time.Now().UTC()
			next := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
			timer.Reset(next.Sub(now))
		}
	}
}

func (s *Service) grantAllowances() {
	log.Println("Starting monthly allowance grant...")
	if err := s.ledgerService.GrantMonthlyAllowances(); err != nil {
		log.Printf("Monthly allowance grant failed: %v", err)
		return
	}
	log.Println("Monthly allowance grant completed")
}

// RunNow 立即执行一轮清扫（手动触发或测试用）
func (s *Service) RunNow() error {
	_, err := s.reconcileService.Reconcile(s.staleAfter)
	return err
}
