package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hyleo/genmedia_go_server/internal/api/middleware"
	"github.com/hyleo/genmedia_go_server/internal/pkg/response"
	"github.com/hyleo/genmedia_go_server/internal/service"
)

type AccountHandler struct {
	ledgerService *service.LedgerService
}

func NewAccountHandler(ledgerService *service.LedgerService) *AccountHandler {
	return &AccountHandler{
		ledgerService: ledgerService,
	}
}

// Get 获取当前账户信息
// GET /api/v1/account
func (h *AccountHandler) Get(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.ledgerService.GetAccount(accountID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, info)
}

// ListTransactions 获取交易记录
// GET /api/v1/account/transactions
func (h *AccountHandler) ListTransactions(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	kind := c.Query("kind")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.ledgerService.ListTransactions(accountID, page, pageSize, kind)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}
