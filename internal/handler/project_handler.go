package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/eos/internal/currency"
	"github.com/blues/eos/internal/logic"
	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	projectLogic *logic.ProjectLogic
	rates        *currency.Service
}

func NewProjectHandler(projectLogic *logic.ProjectLogic, rates *currency.Service) *ProjectHandler {
	return &ProjectHandler{
		projectLogic: projectLogic,
		rates:        rates,
	}
}

// CreateProject 创建项目（含里程碑生成与预算换算）
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, milestones, err := h.projectLogic.CreateProject(c.Request.Context(), logic.CreateProjectInput{
		Name:           req.Name,
		Description:    req.Description,
		BudgetNgn:      req.BudgetNgn,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		ToleranceKm:    req.ToleranceKm,
		ContractorId:   req.ContractorId,
		GovWallet:      req.GovWallet,
		UseAi:          req.UseAi,
		MilestoneCount: req.MilestoneCount,
		Milestones:     req.Milestones,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rate := h.rates.NgnPerMnt(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{
		"message":    "项目创建成功",
		"project":    ToProjectResponse(project, rate),
		"milestones": ToMilestoneResponseList(milestones),
	})
}

// GetProjects 获取项目列表
func (h *ProjectHandler) GetProjects(c *gin.Context) {
	projects, err := h.projectLogic.GetProjects()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rate := h.rates.NgnPerMnt(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"projects": ToProjectResponseList(projects, rate),
		"total":    len(projects),
	})
}

// GetProject 获取单个项目详情
func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目ID"})
		return
	}

	project, milestones, err := h.projectLogic.GetProject(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	rate := h.rates.NgnPerMnt(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"project":    ToProjectResponse(project, rate),
		"milestones": ToMilestoneResponseList(milestones),
	})
}

// UpdateProject 更新项目
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目ID"})
		return
	}

	// 只允许更新特定字段
	var updateData struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		Latitude    *float64 `json:"project_latitude"`
		Longitude   *float64 `json:"project_longitude"`
		ToleranceKm *float64 `json:"location_tolerance_km"`
		GovWallet   *string  `json:"gov_wallet"`
	}
	if err := c.ShouldBindJSON(&updateData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if updateData.Name != nil {
		updates["name"] = *updateData.Name
	}
	if updateData.Description != nil {
		updates["description"] = *updateData.Description
	}
	if updateData.Latitude != nil {
		updates["latitude"] = *updateData.Latitude
	}
	if updateData.Longitude != nil {
		updates["longitude"] = *updateData.Longitude
	}
	if updateData.ToleranceKm != nil {
		updates["tolerance_km"] = *updateData.ToleranceKm
	}
	if updateData.GovWallet != nil {
		updates["gov_wallet"] = *updateData.GovWallet
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "没有要更新的字段"})
		return
	}

	if err := h.projectLogic.UpdateProject(id, updates); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "项目更新成功"})
}

// UpdateOnChainId 更新项目的链上关联ID
func (h *ProjectHandler) UpdateOnChainId(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目ID"})
		return
	}

	var req struct {
		OnChainId string `json:"on_chain_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.projectLogic.UpdateOnChainId(id, req.OnChainId); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "链上ID更新成功",
		"on_chain_id": req.OnChainId,
	})
}

// DeleteProject 删除项目及其里程碑
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目ID"})
		return
	}

	if err := h.projectLogic.DeleteProject(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "项目已删除"})
}
