package handler

import (
	"context"
	"net/http"

	"github.com/blues/eos/internal/chain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db      *gorm.DB
	backend chain.Backend
}

func NewHealthHandler(db *gorm.DB, backend chain.Backend) *HealthHandler {
	return &HealthHandler{db: db, backend: backend}
}

// Health 服务健康检查：数据库连通性 + 链后端状态
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"

	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = err.Error()
		status = http.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = err.Error()
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":     "healthy",
		"database":   dbStatus,
		"chain_type": h.backend.ChainType(),
	}

	// EVM后端额外暴露RPC/合约/签名账户的详细状态
	if checker, ok := h.backend.(interface {
		CheckHealth(ctx context.Context) map[string]interface{}
	}); ok {
		body["chain"] = checker.CheckHealth(c.Request.Context())
	}

	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}
