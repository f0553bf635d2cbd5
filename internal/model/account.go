package model

import (
	"time"
)

type Account struct {
	// ID 由外部身份服务分配，开通账户时写入
	ID               int64     `gorm:"primaryKey" json:"id"`
	Tier             string    `gorm:"size:20;default:free" json:"tier"` // free, pro, enterprise
	Balance          int64     `gorm:"not null;default:0" json:"balance"`
	MonthlyAllowance int64     `gorm:"not null;default:0" json:"monthly_allowance"`
	TotalGenerations int64     `gorm:"not null;default:0" json:"total_generations"`
	TotalImages      int64     `gorm:"not null;default:0" json:"total_images"`
	TotalVideos      int64     `gorm:"not null;default:0" json:"total_videos"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
