package repository

import (
	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/internal/model"
)

type UsageLogRepository struct {
	db *gorm.DB
}

func NewUsageLogRepository(db *gorm.DB) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

func (r *UsageLogRepository) Create(entry *model.UsageLog) error {
	return r.db.Create(entry).Error
}

func (r *UsageLogRepository) CountByAccountID(accountID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.UsageLog{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}
