package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hyleo/genmedia_go_server/internal/pkg/response"
	"github.com/hyleo/genmedia_go_server/internal/service"
)

type ModelsHandler struct {
	generationService *service.GenerationService
}

func NewModelsHandler(generationService *service.GenerationService) *ModelsHandler {
	return &ModelsHandler{
		generationService: generationService,
	}
}

// List 模型目录
// GET /api/v1/models
func (h *ModelsHandler) List(c *gin.Context) {
	response.Success(c, h.generationService.ListModels())
}

func parseIDParam(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
