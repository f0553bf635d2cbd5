package model

import (
	"time"
)

// UsageLog 调用侧信道日志，尽力而为写入，失败不影响主流程
type UsageLog struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	AccountID    int64     `gorm:"not null;index" json:"account_id"`
	GenerationID int64     `gorm:"index" json:"generation_id"`
	ModelName    string    `gorm:"size:100" json:"model_name"`
	Outcome      string    `gorm:"size:20" json:"outcome"` // completed, failed, rejected
	StatusCode   int       `json:"status_code"`
	LatencyMS    int64     `json:"latency_ms"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (UsageLog) TableName() string {
	return "usage_logs"
}
