package handler

import (
	"net/http"

	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/logic"
	"github.com/blues/eos/internal/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ContractorHandler struct {
	contractorLogic *logic.ContractorLogic
}

func NewContractorHandler(db *gorm.DB, cfg config.AuthConfig) *ContractorHandler {
	return &ContractorHandler{
		contractorLogic: logic.NewContractorLogic(db, cfg),
	}
}

// Register 注册承包商
func (h *ContractorHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contractor := &model.ContractorModel{
		WalletAddress: req.WalletAddress,
		CompanyName:   req.CompanyName,
		Email:         req.Email,
	}
	if err := h.contractorLogic.Register(contractor, req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "注册成功",
		"contractor": contractor,
	})
}

// Login 登录，返回JWT访问令牌
func (h *ContractorHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, contractor, err := h.contractorLogic.Login(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"contractor":   contractor,
	})
}

// Me 返回当前登录的承包商信息
func (h *ContractorHandler) Me(c *gin.Context) {
	wallet := c.GetString("wallet_address")
	if wallet == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未登录"})
		return
	}

	contractor, err := h.contractorLogic.GetByWallet(wallet)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contractor": contractor})
}
