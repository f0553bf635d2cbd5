package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/model"
	"github.com/hyleo/genmedia_go_server/internal/model/dto"
	"github.com/hyleo/genmedia_go_server/internal/pkg/pubsub"
	"github.com/hyleo/genmedia_go_server/internal/pkg/queue"
	"github.com/hyleo/genmedia_go_server/internal/provider"
	"github.com/hyleo/genmedia_go_server/internal/repository"
)

var (
	ErrUnsupportedModel   = errors.New("不支持的模型")
	ErrInputNotSupported  = errors.New("该模型不支持条件输入")
	ErrGenerationNotFound = errors.New("生成记录不存在")
	ErrNotOwner           = errors.New("无权操作该生成记录")
	ErrAlreadyFinished    = errors.New("任务已结束，无法取消")
	ErrProviderFailure    = errors.New("生成服务调用失败")
)

// MediaStore 产物存储，上传成功后对外提供持久链接
type MediaStore interface {
	MirrorMedia(ctx context.Context, generationID int64, sourceURL string) (string, error)
	Delete(url string) error
}

type GenerationService struct {
	db        *gorm.DB
	gens      *repository.GenerationRepository
	accounts  *repository.AccountRepository
	usageLogs *repository.UsageLogRepository
	ledger    *LedgerService
	provider  provider.Provider
	store     MediaStore
	queue     *queue.Queue
	publisher *pubsub.Publisher
	cfg       *config.Config
}

func NewGenerationService(
	db *gorm.DB,
	gens *repository.GenerationRepository,
	accounts *repository.AccountRepository,
	usageLogs *repository.UsageLogRepository,
	ledger *LedgerService,
	prov provider.Provider,
	store MediaStore,
	q *queue.Queue,
	publisher *pubsub.Publisher,
	cfg *config.Config,
) *GenerationService {
	return &GenerationService{
		db:        db,
		gens:      gens,
		accounts:  accounts,
		usageLogs: usageLogs,
		ledger:    ledger,
		provider:  prov,
		store:     store,
		queue:     q,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Submit 提交生成请求
// 图片和语音在请求内同步完成，视频落库后进入队列由 worker 处理
func (s *GenerationService) Submit(ctx context.Context, accountID int64, req *dto.CreateGenerationRequest) (*dto.CreateGenerationResponse, error) {
	start := time.Now()

	modelCfg := s.cfg.FindModel(req.ModelName)
	if modelCfg == nil {
		s.logUsage(accountID, 0, req.ModelName, "rejected", 400, start)
		return nil, ErrUnsupportedModel
	}
	if req.InputURL != "" && !modelCfg.SupportsInput {
		s.logUsage(accountID, 0, req.ModelName, "rejected", 400, start)
		return nil, ErrInputNotSupported
	}

	price := modelCfg.Credits

	// 预检查余额，尽早拒绝。真正的扣款以 Debit 的条件更新为准
	sufficient, err := s.ledger.HasSufficientBalance(accountID, price)
	if err != nil {
		return nil, err
	}
	if !sufficient {
		account, err := s.accounts.GetByID(accountID)
		if err != nil {
			return nil, err
		}
		s.logUsage(accountID, 0, req.ModelName, "rejected", 402, start)
		return nil, &InsufficientCreditsError{Required: price, Balance: account.Balance}
	}

	gen := &model.Generation{
		AccountID:       accountID,
		Kind:            modelCfg.Kind,
		ModelName:       req.ModelName,
		Prompt:          req.Prompt,
		AspectRatio:     req.AspectRatio,
		InputURL:        req.InputURL,
		CreditsReserved: price,
		Status:          model.StatusPending,
	}
	if err := s.gens.Create(gen); err != nil {
		return nil, err
	}

	// 先扣款后调用，调用失败退款
	if err := s.ledger.Debit(accountID, price, fmt.Sprintf("生成扣费: %s", req.ModelName), &gen.ID); err != nil {
		var insufficient *InsufficientCreditsError
		if errors.As(err, &insufficient) {
			// 预检查后余额被并发消耗
			s.gens.MarkFailed(gen.ID, "积分不足")
			s.logUsage(accountID, gen.ID, req.ModelName, "rejected", 402, start)
		}
		return nil, err
	}

	if modelCfg.Kind == model.KindVideo {
		return s.submitVideo(ctx, gen, req, start)
	}
	return s.generateSync(ctx, gen, req, start)
}

// generateSync 图片/语音：在请求内等待远端完成
func (s *GenerationService) generateSync(ctx context.Context, gen *model.Generation, req *dto.CreateGenerationRequest, start time.Time) (*dto.CreateGenerationResponse, error) {
	outputURL, err := s.provider.GenerateSync(ctx, &provider.GenerateRequest{
		Model:       req.ModelName,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		InputURL:    req.InputURL,
	})
	if err != nil {
		reason := translateProviderError(err)
		refundErr := s.failAndRefund(gen, reason)
		s.logUsage(gen.AccountID, gen.ID, gen.ModelName, "failed", providerStatusCode(err), start)
		if refundErr != nil {
			return nil, refundErr
		}
		return nil, fmt.Errorf("%w: %s", ErrProviderFailure, reason)
	}

	// 远端链接有时效，转存失败时退回使用原始链接
	finalURL := outputURL
	if s.store != nil {
		if mirrored, err := s.store.MirrorMedia(ctx, gen.ID, outputURL); err != nil {
			log.Printf("Mirror media failed for generation %d: %v", gen.ID, err)
		} else {
			finalURL = mirrored
		}
	}

	ok, err := s.gens.MarkCompleted(gen.ID, finalURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 等待期间被取消，积分已退，产物不保留
		if s.store != nil && finalURL != outputURL {
			if err := s.store.Delete(finalURL); err != nil {
				log.Printf("Delete orphan media failed for generation %d: %v", gen.ID, err)
			}
		}
		return nil, ErrAlreadyFinished
	}

	if err := s.accounts.IncrementUsageCounters(gen.AccountID, gen.Kind); err != nil {
		log.Printf("Increment usage counters failed for account %d: %v", gen.AccountID, err)
	}
	s.publishProgress(gen.AccountID, gen.ID, string(model.StatusCompleted), finalURL, "")
	s.logUsage(gen.AccountID, gen.ID, gen.ModelName, "completed", 200, start)

	return &dto.CreateGenerationResponse{
		GenerationID:   gen.ID,
		Status:         string(model.StatusCompleted),
		OutputURL:      finalURL,
		CreditsCharged: gen.CreditsReserved,
	}, nil
}

// submitVideo 视频：提交远端任务后入队，由 worker 轮询
func (s *GenerationService) submitVideo(ctx context.Context, gen *model.Generation, req *dto.CreateGenerationRequest, start time.Time) (*dto.CreateGenerationResponse, error) {
	handle, err := s.provider.SubmitJob(ctx, &provider.GenerateRequest{
		Model:       req.ModelName,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		InputURL:    req.InputURL,
	})
	if err != nil {
		reason := translateProviderError(err)
		refundErr := s.failAndRefund(gen, reason)
		s.logUsage(gen.AccountID, gen.ID, gen.ModelName, "failed", providerStatusCode(err), start)
		if refundErr != nil {
			return nil, refundErr
		}
		return nil, fmt.Errorf("%w: %s", ErrProviderFailure, reason)
	}

	ok, err := s.gens.MarkProcessing(gen.ID, handle)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 提交远端前已被取消，积分已退
		return nil, ErrAlreadyFinished
	}

	if err := s.queue.Push(ctx, &queue.VideoJobMessage{
		GenerationID: gen.ID,
		AccountID:    gen.AccountID,
		ModelName:    gen.ModelName,
		JobHandle:    handle,
	}); err != nil {
		// 入队失败不退款，对账任务会按超时回收
		log.Printf("Enqueue video job failed for generation %d: %v", gen.ID, err)
	}

	s.publishProgress(gen.AccountID, gen.ID, string(model.StatusProcessing), "", "")

	return &dto.CreateGenerationResponse{
		GenerationID:   gen.ID,
		Status:         string(model.StatusProcessing),
		CreditsCharged: gen.CreditsReserved,
	}, nil
}

// Cancel 取消未完成的生成并退款
// 与完成竞争时由条件更新裁决，只有赢家才会触发退款
func (s *GenerationService) Cancel(accountID, generationID int64) error {
	gen, err := s.gens.GetByID(generationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGenerationNotFound
		}
		return err
	}
	if gen.AccountID != accountID {
		return ErrNotOwner
	}

	ok, err := s.gens.MarkFailed(generationID, "用户取消")
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyFinished
	}

	if err := s.ledger.Refund(accountID, gen.CreditsReserved, generationID, "取消退款"); err != nil {
		return err
	}

	s.publishProgress(accountID, generationID, string(model.StatusFailed), "", "用户取消")
	return nil
}

// Get 获取生成详情，只能看自己的
func (s *GenerationService) Get(accountID, generationID int64) (*dto.GenerationDetail, error) {
	gen, err := s.gens.GetByID(generationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, err
	}
	if gen.AccountID != accountID {
		return nil, ErrNotOwner
	}

	detail := &dto.GenerationDetail{
		ID:              gen.ID,
		Kind:            gen.Kind,
		ModelName:       gen.ModelName,
		Prompt:          gen.Prompt,
		AspectRatio:     gen.AspectRatio,
		InputURL:        gen.InputURL,
		CreditsReserved: gen.CreditsReserved,
		Status:          string(gen.Status),
		OutputURL:       gen.OutputURL,
		ErrorMessage:    gen.ErrorMessage,
		CreatedAt:       gen.CreatedAt.Format(time.RFC3339),
	}
	if gen.CompletedAt != nil {
		detail.CompletedAt = gen.CompletedAt.Format(time.RFC3339)
	}
	return detail, nil
}

// List 分页查询账户的生成记录
func (s *GenerationService) List(accountID int64, page, pageSize int, status string) ([]*dto.GenerationListItem, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	gens, total, err := s.gens.ListByAccountID(accountID, page, pageSize, status)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.GenerationListItem, 0, len(gens))
	for _, gen := range gens {
		items = append(items, &dto.GenerationListItem{
			ID:        gen.ID,
			Kind:      gen.Kind,
			ModelName: gen.ModelName,
			Status:    string(gen.Status),
			OutputURL: gen.OutputURL,
			CreatedAt: gen.CreatedAt.Format(time.RFC3339),
		})
	}
	return items, total, nil
}

// ListModels 对外公开的模型目录
func (s *GenerationService) ListModels() []*dto.ModelInfo {
	models := make([]*dto.ModelInfo, 0, len(s.cfg.Models))
	for _, m := range s.cfg.Models {
		models = append(models, &dto.ModelInfo{
			Name:          m.Name,
			DisplayName:   m.DisplayName,
			Kind:          m.Kind,
			Credits:       m.Credits,
			SupportsInput: m.SupportsInput,
			Description:   m.Description,
		})
	}
	return models
}

// failAndRefund 远端调用失败的统一善后：标记失败并退款
// 退款失败时返回错误，由调用方上抛，未退成的记录另由对账任务补退
func (s *GenerationService) failAndRefund(gen *model.Generation, reason string) error {
	if _, err := s.gens.MarkFailed(gen.ID, reason); err != nil {
		log.Printf("Mark generation %d failed error: %v", gen.ID, err)
	}
	refundErr := s.ledger.Refund(gen.AccountID, gen.CreditsReserved, gen.ID, "生成失败退款")
	if refundErr != nil {
		log.Printf("Refund for generation %d failed: %v", gen.ID, refundErr)
	}
	s.publishProgress(gen.AccountID, gen.ID, string(model.StatusFailed), "", reason)
	return refundErr
}

// logUsage 侧信道日志，异步尽力而为
func (s *GenerationService) logUsage(accountID, generationID int64, modelName, outcome string, statusCode int, start time.Time) {
	entry := &model.UsageLog{
		AccountID:    accountID,
		GenerationID: generationID,
		ModelName:    modelName,
		Outcome:      outcome,
		StatusCode:   statusCode,
		LatencyMS:    time.Since(start).Milliseconds(),
	}
	go func() {
		if err := s.usageLogs.Create(entry); err != nil {
			log.Printf("Write usage log failed: %v", err)
		}
	}()
}

func (s *GenerationService) publishProgress(accountID, generationID int64, status, outputURL, errMsg string) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
		AccountID:    accountID,
		GenerationID: generationID,
		Status:       status,
		OutputURL:    outputURL,
		Error:        errMsg,
	})
	if err != nil {
		log.Printf("Publish progress failed for generation %d: %v", generationID, err)
	}
}

// translateProviderError 把上游错误翻译成用户可读的原因
func translateProviderError(err error) string {
	var provErr *provider.Error
	if !errors.As(err, &provErr) {
		return err.Error()
	}

	switch {
	case provErr.StatusCode == 401 || provErr.StatusCode == 403:
		return "生成服务鉴权失败，请联系管理员"
	case provErr.StatusCode == 429:
		return "生成服务限流，请稍后重试"
	case provErr.StatusCode >= 500:
		return "生成服务暂时不可用，请稍后重试"
	case provErr.StatusCode >= 400:
		return fmt.Sprintf("请求被生成服务拒绝: %s", provErr.Message)
	default:
		return provErr.Message
	}
}

func providerStatusCode(err error) int {
	var provErr *provider.Error
	if errors.As(err, &provErr) {
		return provErr.StatusCode
	}
	return 502
}
