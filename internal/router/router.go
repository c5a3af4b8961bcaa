package router

import (
	"net/http"

	"github.com/blues/eos/internal/auth"
	"github.com/blues/eos/internal/chain"
	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/currency"
	"github.com/blues/eos/internal/handler"
	"github.com/blues/eos/internal/inference"
	"github.com/blues/eos/internal/logic"
	"github.com/blues/eos/internal/reconcile"
	"github.com/blues/eos/internal/settle"
	"github.com/blues/eos/internal/verify"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(db *gorm.DB, backend chain.Backend, inferBackend inference.Backend, rates *currency.Service, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 上传的证据文件由静态路由对外提供
	r.Static("/static/uploads", cfg.Storage.UploadDir)

	// 业务逻辑与引擎
	milestoneLogic := logic.NewMilestoneLogic(db, inferBackend)
	projectLogic := logic.NewProjectLogic(db, rates, milestoneLogic)
	verifyEngine := verify.NewEngine(inferBackend, cfg.Inference)
	settleEngine := settle.NewEngine(db, backend, cfg.Chain)
	reconciler := reconcile.NewReconciler(db, backend)

	// 处理器
	contractorHandler := handler.NewContractorHandler(db, cfg.Auth)
	projectHandler := handler.NewProjectHandler(projectLogic, rates)
	milestoneHandler := handler.NewMilestoneHandler(milestoneLogic)
	verificationHandler := handler.NewVerificationHandler(
		milestoneLogic, verifyEngine, settleEngine, backend,
		cfg.Storage, cfg.Inference, cfg.Chain)
	currencyHandler := handler.NewCurrencyHandler(rates)
	syncHandler := handler.NewSyncHandler(db, reconciler)
	healthHandler := handler.NewHealthHandler(db, backend)

	// 健康检查
	r.GET("/health", healthHandler.Health)

	// 承包商
	r.POST("/contractors/register", contractorHandler.Register)
	r.POST("/contractors/login", contractorHandler.Login)
	r.GET("/contractors/me", authMiddleware(cfg.Auth), contractorHandler.Me)

	// 项目
	r.POST("/projects", projectHandler.CreateProject)
	r.GET("/projects", projectHandler.GetProjects)
	r.GET("/projects/:id", projectHandler.GetProject)
	r.PUT("/projects/:id", projectHandler.UpdateProject)
	r.DELETE("/projects/:id", projectHandler.DeleteProject)
	r.PUT("/projects/:id/on-chain-id", projectHandler.UpdateOnChainId)
	r.GET("/projects/:id/milestones", milestoneHandler.GetProjectMilestones)
	r.POST("/projects/:id/sync", syncHandler.SyncProject)

	// 里程碑
	r.POST("/milestones", milestoneHandler.CreateMilestone)
	r.GET("/milestones/:id", milestoneHandler.GetMilestone)

	// 验证与放款
	r.POST("/upload-video", verificationHandler.UploadVideo)
	r.POST("/verify-milestone", verificationHandler.VerifyMilestone)
	r.POST("/approve-milestone", verificationHandler.ApproveMilestone)
	r.GET("/contract-state/:id", verificationHandler.ContractState)

	// 汇率
	r.GET("/exchange-rate", currencyHandler.GetRate)
	r.GET("/rate", currencyHandler.GetRate)
	r.POST("/convert-currency", currencyHandler.Convert)
	r.GET("/convert/ngn-to-mnt/:amount", currencyHandler.ConvertNgnToMnt)

	// 对账
	r.POST("/sync-projects", syncHandler.SyncAllProjects)

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// JWT认证中间件，校验通过后把钱包地址放进上下文
func authMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少访问令牌"})
			return
		}

		wallet, err := auth.VerifyToken(token, cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的访问令牌"})
			return
		}

		c.Set("wallet_address", wallet)
		c.Next()
	}
}
