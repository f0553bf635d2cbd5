package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/model/dto"
	"github.com/hyleo/genmedia_go_server/internal/pkg/response"
	"github.com/hyleo/genmedia_go_server/internal/service"
)

// AdminHandler 管理接口：手工调整积分、触发对账
type AdminHandler struct {
	ledgerService    *service.LedgerService
	reconcileService *service.ReconcileService
	cfg              *config.Config
}

func NewAdminHandler(ledgerService *service.LedgerService, reconcileService *service.ReconcileService, cfg *config.Config) *AdminHandler {
	return &AdminHandler{
		ledgerService:    ledgerService,
		reconcileService: reconcileService,
		cfg:              cfg,
	}
}

// AdjustCredits 手工调整账户余额
// POST /api/v1/admin/credits/adjust
func (h *AdminHandler) AdjustCredits(c *gin.Context) {
	var req dto.AdjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	err := h.ledgerService.AdminAdjust(req.AccountID, req.Amount, req.Description)
	if err != nil {
		var insufficient *service.InsufficientCreditsError
		switch {
		case errors.Is(err, service.ErrAccountNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrInvalidAmount):
			response.ParamError(c, err.Error())
		case errors.As(err, &insufficient):
			response.InsufficientCreditsError(c, err.Error(), insufficient.Deficit())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "调整成功", nil)
}

// staleAfter 对账超时阈值
func (h *AdminHandler) staleAfter() time.Duration {
	minutes := h.cfg.Reconcile.StaleAfterMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// ReconcileCount 统计可回收记录
// GET /api/v1/admin/reconcile
func (h *AdminHandler) ReconcileCount(c *gin.Context) {
	count, err := h.reconcileService.Count(h.staleAfter())
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, count)
}

// Reconcile 立即执行一轮清扫
// POST /api/v1/admin/reconcile
func (h *AdminHandler) Reconcile(c *gin.Context) {
	result, err := h.reconcileService.Reconcile(h.staleAfter())
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, result)
}

// VerifyLedger 回放指定账户的流水
// GET /api/v1/admin/accounts/:id/verify
func (h *AdminHandler) VerifyLedger(c *gin.Context) {
	accountID, err := parseIDParam(c)
	if err != nil {
		response.ParamError(c, "无效的账户ID")
		return
	}

	if err := h.ledgerService.VerifyLedger(accountID); err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "账本一致", nil)
}
