package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/eos/internal/logic"
	"github.com/blues/eos/internal/model"
	"github.com/gin-gonic/gin"
)

type MilestoneHandler struct {
	milestoneLogic *logic.MilestoneLogic
}

func NewMilestoneHandler(milestoneLogic *logic.MilestoneLogic) *MilestoneHandler {
	return &MilestoneHandler{milestoneLogic: milestoneLogic}
}

// CreateMilestone 手工创建里程碑
func (h *MilestoneHandler) CreateMilestone(c *gin.Context) {
	var req CreateMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	milestone := &model.MilestoneModel{
		ProjectId:   req.ProjectId,
		Description: req.Description,
		Amount:      req.Amount,
		OrderIndex:  req.OrderIndex,
	}
	if err := h.milestoneLogic.CreateMilestone(milestone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "里程碑创建成功",
		"milestone": ToMilestoneResponse(milestone),
	})
}

// GetMilestone 获取里程碑详情及其所属项目
func (h *MilestoneHandler) GetMilestone(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的里程碑ID"})
		return
	}

	milestone, project, err := h.milestoneLogic.GetMilestoneWithProject(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"milestone":   ToMilestoneResponse(milestone),
		"project_id":  project.Id,
		"on_chain_id": project.OnChainId,
		"deployed":    project.Deployed(),
	})
}

// GetProjectMilestones 获取项目的全部里程碑
func (h *MilestoneHandler) GetProjectMilestones(c *gin.Context) {
	projectId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目ID"})
		return
	}

	milestones, err := h.milestoneLogic.GetProjectMilestones(projectId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"milestones": ToMilestoneResponseList(milestones),
		"total":      len(milestones),
	})
}
