package handler

import (
	"crypto/subtle"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/model"
	"github.com/hyleo/genmedia_go_server/internal/model/dto"
	"github.com/hyleo/genmedia_go_server/internal/pkg/response"
	"github.com/hyleo/genmedia_go_server/internal/service"
)

// PaymentHandler 外部系统回调：身份服务开户、支付服务入账
type PaymentHandler struct {
	ledgerService *service.LedgerService
	cfg           *config.Config
}

func NewPaymentHandler(ledgerService *service.LedgerService, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{
		ledgerService: ledgerService,
		cfg:           cfg,
	}
}

// checkWebhookSecret 回调共享密钥校验
func (h *PaymentHandler) checkWebhookSecret(c *gin.Context) bool {
	secret := h.cfg.Billing.WebhookSecret
	if secret == "" {
		response.PermissionError(c, "回调接口未启用")
		return false
	}
	got := c.GetHeader("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		response.PermissionError(c, "回调签名校验失败")
		return false
	}
	return true
}

// Provision 身份服务开户回调
// POST /api/v1/accounts/provision
func (h *PaymentHandler) Provision(c *gin.Context) {
	if !h.checkWebhookSecret(c) {
		return
	}

	var req dto.ProvisionAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	account, err := h.ledgerService.ProvisionAccount(req.AccountID, req.Tier)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{
		"account_id": account.ID,
		"tier":       account.Tier,
		"balance":    account.Balance,
	})
}

// Webhook 支付事件入账
// POST /api/v1/payments/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	if !h.checkWebhookSecret(c) {
		return
	}

	var req dto.PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if req.Kind != model.TxKindSubscriptionCredit && req.Kind != model.TxKindCreditPurchase {
		response.ParamError(c, "不支持的入账类型")
		return
	}

	description := "支付入账"
	if req.Reference != "" {
		description = "支付入账: " + req.Reference
	}

	err := h.ledgerService.Credit(req.AccountID, req.Credits, req.Kind, description, nil)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrInvalidAmount):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "入账成功", nil)
}
