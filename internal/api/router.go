package api

import (
	"github.com/gin-gonic/gin"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/api/handler"
	"github.com/hyleo/genmedia_go_server/internal/api/middleware"
)

type Router struct {
	generationHandler *handler.GenerationHandler
	accountHandler    *handler.AccountHandler
	paymentHandler    *handler.PaymentHandler
	adminHandler      *handler.AdminHandler
	modelsHandler     *handler.ModelsHandler
	websocketHandler  *handler.WebSocketHandler
	cfg               *config.Config
}

func NewRouter(
	generationHandler *handler.GenerationHandler,
	accountHandler *handler.AccountHandler,
	paymentHandler *handler.PaymentHandler,
	adminHandler *handler.AdminHandler,
	modelsHandler *handler.ModelsHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		generationHandler: generationHandler,
		accountHandler:    accountHandler,
		paymentHandler:    paymentHandler,
		adminHandler:      adminHandler,
		modelsHandler:     modelsHandler,
		websocketHandler:  websocketHandler,
		cfg:               cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 模型目录
		api.GET("/models", r.modelsHandler.List)

		// 外部系统回调（共享密钥校验在 handler 内）
		api.POST("/accounts/provision", r.paymentHandler.Provision)
		api.POST("/payments/webhook", r.paymentHandler.Webhook)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 账户
			account := authenticated.Group("/account")
			{
				account.GET("", r.accountHandler.Get)
				account.GET("/transactions", r.accountHandler.ListTransactions)
			}

			// 生成
			generations := authenticated.Group("/generations")
			{
				generations.POST("", r.generationHandler.Create)
				generations.GET("", r.generationHandler.List)
				generations.GET("/:id", r.generationHandler.Get)
				generations.POST("/:id/cancel", r.generationHandler.Cancel)
			}
		}

		// 管理接口
		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuth(r.cfg.Billing.AdminSecret))
		{
			admin.POST("/credits/adjust", r.adminHandler.AdjustCredits)
			admin.GET("/reconcile", r.adminHandler.ReconcileCount)
			admin.POST("/reconcile", r.adminHandler.Reconcile)
			admin.GET("/accounts/:id/verify", r.adminHandler.VerifyLedger)
		}
	}

	return engine
}
