package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(svc Services, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware(logger))
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(svc, logger)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
			account.POST("/deposit", h.Deposit)
			account.POST("/withdraw", h.Withdraw)
		}

		// 黄金相关
		gold := api.Group("/gold")
		{
			gold.GET("/price", h.GetPrice)
			gold.POST("/trade", h.Trade)
			gold.POST("/redeem", h.Redeem)
			gold.GET("/redemptions", h.ListRedemptions)
		}

		// DeFi 相关
		defi := api.Group("/defi")
		{
			defi.POST("/stake", h.Stake)
			defi.POST("/unstake", h.Unstake)
			defi.POST("/borrow", h.Borrow)
			defi.POST("/repay", h.Repay)
			defi.GET("/status", h.GetLoanStatus)
			defi.GET("/loans", h.ListLoans)
		}

		// 风控管理
		admin := api.Group("/admin")
		{
			admin.POST("/loan/liquidate", h.LiquidateLoan)
			admin.POST("/loan/default", h.DefaultLoan)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
