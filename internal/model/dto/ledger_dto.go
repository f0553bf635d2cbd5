package dto

// AccountInfo 账户信息
type AccountInfo struct {
	AccountID        int64  `json:"account_id"`
	Tier             string `json:"tier"`
	Balance          int64  `json:"balance"`
	MonthlyAllowance int64  `json:"monthly_allowance"`
	TotalGenerations int64  `json:"total_generations"`
	TotalImages      int64  `json:"total_images"`
	TotalVideos      int64  `json:"total_videos"`
}

// TransactionItem 交易列表项
type TransactionItem struct {
	ID           int64  `json:"id"`
	Amount       int64  `json:"amount"`
	Kind         string `json:"kind"`
	Description  string `json:"description"`
	ReferenceID  *int64 `json:"reference_id,omitempty"`
	BalanceAfter int64  `json:"balance_after"`
	CreatedAt    string `json:"created_at"`
}

// ProvisionAccountRequest 开通账户（由外部身份服务回调）
type ProvisionAccountRequest struct {
	AccountID int64  `json:"account_id" binding:"required"`
	Tier      string `json:"tier"`
}

// PaymentWebhookRequest 支付事件入账（订阅或单次购买）
type PaymentWebhookRequest struct {
	AccountID int64  `json:"account_id" binding:"required"`
	Credits   int64  `json:"credits" binding:"required"`
	Kind      string `json:"kind" binding:"required"` // subscription_credit 或 credit_purchase
	Reference string `json:"reference"`
}

// AdjustCreditsRequest 管理员手工调整余额
type AdjustCreditsRequest struct {
	AccountID   int64  `json:"account_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"` // 可为负
	Description string `json:"description"`
}
