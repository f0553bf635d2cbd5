package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/internal/model"
)

// 非终态集合，终态写入都以此为条件
var nonTerminalStatuses = []model.GenerationStatus{model.StatusPending, model.StatusProcessing}

type GenerationRepository struct {
	db *gorm.DB
}

func NewGenerationRepository(db *gorm.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Create(gen *model.Generation) error {
	return r.db.Create(gen).Error
}

func (r *GenerationRepository) GetByID(id int64) (*model.Generation, error) {
	var gen model.Generation
	err := r.db.Where("id = ?", id).First(&gen).Error
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

// MarkProcessing 记录任务句柄并进入 processing，仅在仍为 pending 时生效
func (r *GenerationRepository) MarkProcessing(id int64, jobHandle string) (bool, error) {
	result := r.db.Model(&model.Generation{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":     model.StatusProcessing,
			"job_handle": jobHandle,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkCompleted 条件终态写入：仅当记录仍处于非终态时生效
// 取消与自然完成竞争时，先写者胜出
func (r *GenerationRepository) MarkCompleted(id int64, outputURL string) (bool, error) {
	now := time.Now()
	result := r.db.Model(&model.Generation{}).
		Where("id = ? AND status IN ?", id, nonTerminalStatuses).
		Updates(map[string]interface{}{
			"status":       model.StatusCompleted,
			"output_url":   outputURL,
			"completed_at": &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed 条件终态写入，同 MarkCompleted
func (r *GenerationRepository) MarkFailed(id int64, reason string) (bool, error) {
	now := time.Now()
	result := r.db.Model(&model.Generation{}).
		Where("id = ? AND status IN ?", id, nonTerminalStatuses).
		Updates(map[string]interface{}{
			"status":        model.StatusFailed,
			"error_message": reason,
			"completed_at":  &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByAccountID 按时间倒序分页，status 为空时不过滤
func (r *GenerationRepository) ListByAccountID(accountID int64, page, pageSize int, status string) ([]*model.Generation, int64, error) {
	query := r.db.Model(&model.Generation{}).Where("account_id = ?", accountID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var gens []*model.Generation
	err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&gens).Error
	return gens, total, err
}

// ListStale 获取早于 before 创建且仍处于指定状态的记录
func (r *GenerationRepository) ListStale(status model.GenerationStatus, before time.Time, limit int) ([]*model.Generation, error) {
	var gens []*model.Generation
	err := r.db.Where("status = ? AND created_at < ?", status, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&gens).Error
	return gens, err
}

func (r *GenerationRepository) CountStale(status model.GenerationStatus, before time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.Generation{}).
		Where("status = ? AND created_at < ?", status, before).
		Count(&count).Error
	return count, err
}

// ListFailedWithArtifact 失败但产物尚未清理的记录
func (r *GenerationRepository) ListFailedWithArtifact(limit int) ([]*model.Generation, error) {
	var gens []*model.Generation
	err := r.db.Where("status = ? AND output_url <> ''", model.StatusFailed).
		Order("created_at ASC").
		Limit(limit).
		Find(&gens).Error
	return gens, err
}

func (r *GenerationRepository) CountFailedWithArtifact() (int64, error) {
	var count int64
	err := r.db.Model(&model.Generation{}).
		Where("status = ? AND output_url <> ''", model.StatusFailed).
		Count(&count).Error
	return count, err
}

// ListFailedMissingRefund 已扣款却没有对应退款记录的失败生成
// 余额不足导致的失败从未扣过款，通过扣款子查询天然排除
func (r *GenerationRepository) ListFailedMissingRefund(limit int) ([]*model.Generation, error) {
	debited := r.db.Model(&model.Transaction{}).
		Select("reference_id").
		Where("kind = ? AND reference_id IS NOT NULL", model.TxKindGenerationDebit)
	refunded := r.db.Model(&model.Transaction{}).
		Select("reference_id").
		Where("kind = ? AND reference_id IS NOT NULL", model.TxKindRefund)

	var gens []*model.Generation
	err := r.db.Where("status = ?", model.StatusFailed).
		Where("id IN (?)", debited).
		Where("id NOT IN (?)", refunded).
		Order("created_at ASC").
		Limit(limit).
		Find(&gens).Error
	return gens, err
}

func (r *GenerationRepository) CountFailedMissingRefund() (int64, error) {
	debited := r.db.Model(&model.Transaction{}).
		Select("reference_id").
		Where("kind = ? AND reference_id IS NOT NULL", model.TxKindGenerationDebit)
	refunded := r.db.Model(&model.Transaction{}).
		Select("reference_id").
		Where("kind = ? AND reference_id IS NOT NULL", model.TxKindRefund)

	var count int64
	err := r.db.Model(&model.Generation{}).
		Where("status = ?", model.StatusFailed).
		Where("id IN (?)", debited).
		Where("id NOT IN (?)", refunded).
		Count(&count).Error
	return count, err
}

// ClearOutput 产物清理完成后清空位置字段
func (r *GenerationRepository) ClearOutput(id int64) error {
	return r.db.Model(&model.Generation{}).Where("id = ?", id).
		Update("output_url", "").Error
}

func (r *GenerationRepository) Delete(id int64) error {
	return r.db.Where("id = ?", id).Delete(&model.Generation{}).Error
}
