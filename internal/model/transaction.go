package model

import (
	"time"
)

// 交易类型
const (
	TxKindGenerationDebit    = "generation_debit"
	TxKindSubscriptionCredit = "subscription_credit"
	TxKindCreditPurchase     = "credit_purchase"
	TxKindAdminAdjustment    = "admin_adjustment"
	TxKindRefund             = "refund"
)

// Transaction 余额变更审计记录，只追加，不更新不删除
type Transaction struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	AccountID    int64     `gorm:"not null;index" json:"account_id"`
	Amount       int64     `gorm:"not null" json:"amount"` // 负数为扣款
	Kind         string    `gorm:"size:30;not null;index" json:"kind"`
	Description  string    `gorm:"size:500" json:"description"`
	ReferenceID  *int64    `gorm:"index" json:"reference_id,omitempty"` // 关联的生成记录
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
