package service

import (
	"log"
	"time"

	"github.com/hyleo/genmedia_go_server/internal/model"
	"github.com/hyleo/genmedia_go_server/internal/model/dto"
	"github.com/hyleo/genmedia_go_server/internal/repository"
)

const reconcileBatchSize = 500

type ReconcileService struct {
	gens   *repository.GenerationRepository
	ledger *LedgerService
	store  MediaStore
}

func NewReconcileService(gens *repository.GenerationRepository, ledger *LedgerService, store MediaStore) *ReconcileService {
	return &ReconcileService{
		gens:   gens,
		ledger: ledger,
		store:  store,
	}
}

// Count 统计可回收的记录数，dry-run 展示用
func (s *ReconcileService) Count(staleAfter time.Duration) (*dto.ReconcileCount, error) {
	before := time.Now().Add(-staleAfter)

	stuckProcessing, err := s.gens.CountStale(model.StatusProcessing, before)
	if err != nil {
		return nil, err
	}
	stuckPending, err := s.gens.CountStale(model.StatusPending, before)
	if err != nil {
		return nil, err
	}
	failedCleanup, err := s.gens.CountFailedWithArtifact()
	if err != nil {
		return nil, err
	}
	missedRefunds, err := s.gens.CountFailedMissingRefund()
	if err != nil {
		return nil, err
	}

	return &dto.ReconcileCount{
		StuckProcessing: stuckProcessing,
		StuckPending:    stuckPending,
		FailedCleanup:   failedCleanup,
		MissedRefunds:   missedRefunds,
	}, nil
}

// Reconcile 清扫四类残留，整个过程可重复执行
// 单条失败只记日志，不中断本轮清扫
func (s *ReconcileService) Reconcile(staleAfter time.Duration) (*dto.ReconcileResult, error) {
	before := time.Now().Add(-staleAfter)
	result := &dto.ReconcileResult{}

	if err := s.reconcileStuckProcessing(before, result); err != nil {
		return result, err
	}
	if err := s.reconcileStuckPending(before, result); err != nil {
		return result, err
	}
	if err := s.reconcileMissedRefunds(result); err != nil {
		return result, err
	}
	if err := s.cleanupFailedArtifacts(result); err != nil {
		return result, err
	}

	return result, nil
}

// reconcileStuckProcessing 卡在 processing 的记录：标记失败并退款
// worker 可能在轮询途中死掉，远端结果已不可达
func (s *ReconcileService) reconcileStuckProcessing(before time.Time, result *dto.ReconcileResult) error {
	gens, err := s.gens.ListStale(model.StatusProcessing, before, reconcileBatchSize)
	if err != nil {
		return err
	}

	for _, gen := range gens {
		ok, err := s.gens.MarkFailed(gen.ID, "处理超时，已由对账任务回收")
		if err != nil {
			log.Printf("Reconcile: mark generation %d failed error: %v", gen.ID, err)
			continue
		}
		if !ok {
			// worker 在清扫间隙写入了终态，跳过
			continue
		}

		if err := s.ledger.Refund(gen.AccountID, gen.CreditsReserved, gen.ID, "处理超时退款"); err != nil {
			log.Printf("Reconcile: refund for generation %d failed: %v", gen.ID, err)
			continue
		}
		result.MarkedFailed++
	}

	return nil
}

// reconcileStuckPending 卡在 pending 的记录：扣款后进程崩溃的残留
// 退款后直接删除，这类记录从未提交过远端任务
func (s *ReconcileService) reconcileStuckPending(before time.Time, result *dto.ReconcileResult) error {
	gens, err := s.gens.ListStale(model.StatusPending, before, reconcileBatchSize)
	if err != nil {
		return err
	}

	for _, gen := range gens {
		// 退款幂等，崩溃重跑不会重复入账
		if err := s.ledger.Refund(gen.AccountID, gen.CreditsReserved, gen.ID, "未完成提交退款"); err != nil {
			log.Printf("Reconcile: refund for pending generation %d failed: %v", gen.ID, err)
			continue
		}
		if err := s.gens.Delete(gen.ID); err != nil {
			log.Printf("Reconcile: delete generation %d failed: %v", gen.ID, err)
			continue
		}
		result.Deleted++
	}

	return nil
}

// reconcileMissedRefunds 已扣款的失败记录缺少退款：当时退款失败的残留
// 退款本身幂等，扫到一条补退一条
func (s *ReconcileService) reconcileMissedRefunds(result *dto.ReconcileResult) error {
	gens, err := s.gens.ListFailedMissingRefund(reconcileBatchSize)
	if err != nil {
		return err
	}

	for _, gen := range gens {
		if err := s.ledger.Refund(gen.AccountID, gen.CreditsReserved, gen.ID, "失败补退"); err != nil {
			log.Printf("Reconcile: refund for failed generation %d failed: %v", gen.ID, err)
			continue
		}
		result.Refunded++
	}

	return nil
}

// cleanupFailedArtifacts 失败记录残留的产物：删存储再清字段
func (s *ReconcileService) cleanupFailedArtifacts(result *dto.ReconcileResult) error {
	gens, err := s.gens.ListFailedWithArtifact(reconcileBatchSize)
	if err != nil {
		return err
	}

	for _, gen := range gens {
		if s.store != nil {
			if err := s.store.Delete(gen.OutputURL); err != nil {
				// 存储删除失败时保留字段，下一轮重试
				log.Printf("Reconcile: delete artifact for generation %d failed: %v", gen.ID, err)
				continue
			}
		}
		if err := s.gens.ClearOutput(gen.ID); err != nil {
			log.Printf("Reconcile: clear output for generation %d failed: %v", gen.ID, err)
			continue
		}
		result.ArtifactsCleaned++
	}

	return nil
}
