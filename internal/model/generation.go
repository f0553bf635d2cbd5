package model

import (
	"time"
)

// GenerationStatus 生成状态机：pending -> processing -> completed/failed
type GenerationStatus string

const (
	StatusPending    GenerationStatus = "pending"
	StatusProcessing GenerationStatus = "processing"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// IsTerminal 终态后不允许再变更
func (s GenerationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// 生成类型
const (
	KindImage  = "image"
	KindVideo  = "video"
	KindSpeech = "speech"
)

type Generation struct {
	ID              int64            `gorm:"primaryKey" json:"id"`
	AccountID       int64            `gorm:"not null;index" json:"account_id"`
	Kind            string           `gorm:"size:20;not null" json:"kind"` // image, video, speech
	ModelName       string           `gorm:"size:100;not null" json:"model_name"`
	Prompt          string           `gorm:"type:text" json:"prompt"`
	AspectRatio     string           `gorm:"size:20" json:"aspect_ratio,omitempty"`
	InputURL        string           `gorm:"size:500" json:"input_url,omitempty"`
	CreditsReserved int64            `gorm:"not null" json:"credits_reserved"` // 创建后不变
	Status          GenerationStatus `gorm:"size:20;default:pending;index" json:"status"`
	JobHandle       string           `gorm:"size:200" json:"job_handle,omitempty"`
	OutputURL       string           `gorm:"size:500" json:"output_url,omitempty"`
	ErrorMessage    string           `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time        `gorm:"index" json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

func (Generation) TableName() string {
	return "generations"
}
