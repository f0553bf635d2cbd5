package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hyleo/genmedia_go_server/internal/api/middleware"
	"github.com/hyleo/genmedia_go_server/internal/model/dto"
	"github.com/hyleo/genmedia_go_server/internal/pkg/response"
	"github.com/hyleo/genmedia_go_server/internal/service"
)

type GenerationHandler struct {
	generationService *service.GenerationService
}

func NewGenerationHandler(generationService *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
	}
}

// Create 提交生成请求
// POST /api/v1/generations
func (h *GenerationHandler) Create(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.generationService.Submit(c.Request.Context(), accountID, &req)
	if err != nil {
		var insufficient *service.InsufficientCreditsError
		switch {
		case errors.As(err, &insufficient):
			response.InsufficientCreditsError(c, err.Error(), insufficient.Deficit())
		case errors.Is(err, service.ErrUnsupportedModel), errors.Is(err, service.ErrInputNotSupported):
			response.UnsupportedModelError(c, err.Error())
		case errors.Is(err, service.ErrProviderFailure):
			response.ProviderError(c, err.Error())
		case errors.Is(err, service.ErrAccountNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrAlreadyFinished):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}

// List 获取生成记录列表
// GET /api/v1/generations
func (h *GenerationHandler) List(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	status := c.Query("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.generationService.List(accountID, page, pageSize, status)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 获取生成详情
// GET /api/v1/generations/:id
func (h *GenerationHandler) Get(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	generationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的生成记录ID")
		return
	}

	detail, err := h.generationService.Get(accountID, generationID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGenerationNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrNotOwner):
			response.PermissionError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, detail)
}

// Cancel 取消未完成的生成
// POST /api/v1/generations/:id/cancel
func (h *GenerationHandler) Cancel(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	generationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的生成记录ID")
		return
	}

	if err := h.generationService.Cancel(accountID, generationID); err != nil {
		switch {
		case errors.Is(err, service.ErrGenerationNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrNotOwner):
			response.PermissionError(c, err.Error())
		case errors.Is(err, service.ErrAlreadyFinished):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "已取消，积分退还", nil)
}
