package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/model"
	"github.com/hyleo/genmedia_go_server/internal/pkg/pubsub"
	"github.com/hyleo/genmedia_go_server/internal/pkg/queue"
	"github.com/hyleo/genmedia_go_server/internal/provider"
	"github.com/hyleo/genmedia_go_server/internal/repository"
	"github.com/hyleo/genmedia_go_server/internal/service"
)

// Processor 视频任务处理器：轮询远端任务直到终态并完成善后
type Processor struct {
	gens      *repository.GenerationRepository
	accounts  *repository.AccountRepository
	ledger    *service.LedgerService
	provider  provider.Provider
	store     service.MediaStore
	publisher *pubsub.Publisher
	cfg       *config.Config
}

func NewProcessor(
	gens *repository.GenerationRepository,
	accounts *repository.AccountRepository,
	ledger *service.LedgerService,
	prov provider.Provider,
	store service.MediaStore,
	publisher *pubsub.Publisher,
	cfg *config.Config,
) *Processor {
	return &Processor{
		gens:      gens,
		accounts:  accounts,
		ledger:    ledger,
		provider:  prov,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Process 处理一条视频任务消息
// 队列消息可能重复投递，所有终态写入都是条件更新，重复处理无副作用
func (p *Processor) Process(ctx context.Context, msg *queue.VideoJobMessage) error {
	gen, err := p.gens.GetByID(msg.GenerationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 对账任务可能已把残留记录删掉
			log.Printf("Job %d: generation not found, skip", msg.GenerationID)
			return nil
		}
		return fmt.Errorf("failed to get generation: %w", err)
	}

	if gen.Status.IsTerminal() {
		log.Printf("Job %d: already %s, skip", gen.ID, gen.Status)
		return nil
	}

	pollInterval := time.Duration(p.cfg.Provider.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	pollBudget := time.Duration(p.cfg.Provider.PollBudgetSeconds) * time.Second
	if pollBudget <= 0 {
		pollBudget = 5 * time.Minute
	}
	deadline := time.Now().Add(pollBudget)

	for {
		status, err := p.provider.PollJob(ctx, msg.JobHandle)
		if err != nil {
			// 瞬时故障继续轮询，预算耗尽由下面的超时分支兜底
			log.Printf("Job %d: poll error: %v", gen.ID, err)
		} else {
			switch status.State {
			case provider.JobStateSuccess:
				return p.complete(ctx, gen, status.OutputURL)
			case provider.JobStateFailed:
				return p.fail(gen, status.FailureReason)
			}
		}

		if time.Now().After(deadline) {
			return p.fail(gen, fmt.Sprintf("轮询超时（%s）", pollBudget))
		}

		select {
		case <-ctx.Done():
			// 进程退出，记录留给对账任务回收
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// complete 转存产物并标记完成
func (p *Processor) complete(ctx context.Context, gen *model.Generation, outputURL string) error {
	finalURL := outputURL
	if p.store != nil {
		if mirrored, err := p.store.MirrorMedia(ctx, gen.ID, outputURL); err != nil {
			log.Printf("Job %d: mirror media failed: %v", gen.ID, err)
		} else {
			finalURL = mirrored
		}
	}

	ok, err := p.gens.MarkCompleted(gen.ID, finalURL)
	if err != nil {
		return fmt.Errorf("failed to mark completed: %w", err)
	}
	if !ok {
		// 轮询期间被取消，积分已退，产物不保留
		log.Printf("Job %d: finished remotely but already terminal, dropping artifact", gen.ID)
		if p.store != nil && finalURL != outputURL {
			if err := p.store.Delete(finalURL); err != nil {
				log.Printf("Job %d: delete orphan artifact failed: %v", gen.ID, err)
			}
		}
		return nil
	}

	if err := p.accounts.IncrementUsageCounters(gen.AccountID, gen.Kind); err != nil {
		log.Printf("Job %d: increment usage counters failed: %v", gen.ID, err)
	}

	p.publishProgress(gen, string(model.StatusCompleted), finalURL, "")
	log.Printf("Job %d: completed, output=%s", gen.ID, finalURL)
	return nil
}

// fail 标记失败并退款，输掉竞争时不重复退款
func (p *Processor) fail(gen *model.Generation, reason string) error {
	ok, err := p.gens.MarkFailed(gen.ID, reason)
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	if !ok {
		return nil
	}

	if err := p.ledger.Refund(gen.AccountID, gen.CreditsReserved, gen.ID, "生成失败退款"); err != nil {
		return fmt.Errorf("refund failed: %w", err)
	}

	p.publishProgress(gen, string(model.StatusFailed), "", reason)
	log.Printf("Job %d: failed, reason=%s", gen.ID, reason)
	return nil
}

func (p *Processor) publishProgress(gen *model.Generation, status, outputURL, errMsg string) {
	if p.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := p.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
		AccountID:    gen.AccountID,
		GenerationID: gen.ID,
		Status:       status,
		OutputURL:    outputURL,
		Error:        errMsg,
	})
	if err != nil {
		log.Printf("Job %d: publish progress failed: %v", gen.ID, err)
	}
}
