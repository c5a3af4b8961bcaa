package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/blues/eos/internal/model"
	"github.com/blues/eos/internal/reconcile"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SyncHandler struct {
	db         *gorm.DB
	reconciler *reconcile.Reconciler
}

func NewSyncHandler(db *gorm.DB, reconciler *reconcile.Reconciler) *SyncHandler {
	return &SyncHandler{db: db, reconciler: reconciler}
}

// SyncProject 手动触发单个项目的链上对账
func (h *SyncHandler) SyncProject(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目ID"})
		return
	}

	var project model.ProjectModel
	if err := h.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "项目不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	report, err := h.reconciler.SyncProject(c.Request.Context(), &project)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "对账完成",
		"report":  report,
	})
}

// SyncAllProjects 手动触发全量对账
func (h *SyncHandler) SyncAllProjects(c *gin.Context) {
	reports, err := h.reconciler.SyncAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "对账完成",
		"total":   len(reports),
		"reports": reports,
	})
}
