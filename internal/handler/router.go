package handler

import (
	"net/http"

	"loyaltyledger/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// API 路由组
	api := r.Group("/api/v1")
	if cfg.Server.RateLimitRPS > 0 {
		api.Use(RateLimitMiddleware(cfg.Server.RateLimitRPS, cfg.Server.RateBurst))
	}
	{
		users := api.Group("/users")
		{
			users.POST("/register", h.Register)
			users.POST("/login", h.Login)
			users.GET("/:id", h.GetUser)
			users.GET("/:id/transactions", h.ListUserTransactions)
			users.GET("/:id/redemptions", h.ListUserRedemptions)
		}

		rewards := api.Group("/rewards")
		{
			rewards.GET("", h.ListRewards)
			rewards.POST("/redeem", h.Redeem)
		}

		redemptions := api.Group("/redemptions")
		{
			redemptions.GET("", h.ListRedemptions)
			redemptions.POST("/claim", h.Claim)
		}

		api.GET("/leaderboard", h.Leaderboard)

		// 后台（店员）
		admin := api.Group("/admin")
		{
			admin.POST("/login", h.AdminLogin)
			admin.GET("/users", h.ListUsers)
			admin.POST("/credit", h.Credit)
			admin.GET("/transactions", h.ListTransactions)
			admin.POST("/rewards/:id/active", h.SetRewardActive)
			admin.GET("/reconcile/:id", h.Reconcile)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
