package handler

import (
	"ewallet/internal/config"
	"ewallet/internal/infrastructure/lock"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, locker lock.Locker, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, locker, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 认证相关（无需令牌）
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
			auth.POST("/refresh", h.Refresh)
		}

		// 账户与交易相关（需要令牌）
		accounts := api.Group("/accounts")
		accounts.Use(AuthMiddleware(h.authService))
		{
			accounts.POST("", h.CreateAccount)
			accounts.GET("", h.ListAccounts)
			accounts.GET("/:accountNumber", h.GetAccount)
			accounts.PATCH("/:accountNumber/pin", h.ChangePin)
			accounts.GET("/:accountNumber/transactions", h.ListTransactions)
			accounts.POST("/:accountNumber/transactions", h.SubmitTransaction)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
