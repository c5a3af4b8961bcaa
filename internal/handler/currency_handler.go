package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/blues/eos/internal/currency"
	"github.com/gin-gonic/gin"
)

type CurrencyHandler struct {
	rates *currency.Service
}

func NewCurrencyHandler(rates *currency.Service) *CurrencyHandler {
	return &CurrencyHandler{rates: rates}
}

// GetRate 返回当前NGN/MNT汇率
func (h *CurrencyHandler) GetRate(c *gin.Context) {
	rate := h.rates.NgnPerMnt(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"pair":        "NGN/MNT",
		"ngn_per_mnt": rate,
	})
}

// Convert 双向换算NGN与MNT
func (h *CurrencyHandler) Convert(c *gin.Context) {
	var req ConvertCurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	from := strings.ToUpper(req.From)
	to := strings.ToUpper(req.To)

	var converted float64
	switch {
	case from == "NGN" && to == "MNT":
		converted = h.rates.NgnToMnt(ctx, req.Amount)
	case from == "MNT" && to == "NGN":
		converted = h.rates.MntToNgn(ctx, req.Amount)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "仅支持NGN与MNT互转"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":      from,
		"to":        to,
		"amount":    req.Amount,
		"converted": converted,
		"rate":      h.rates.NgnPerMnt(ctx),
	})
}

// ConvertNgnToMnt 路径参数形式的NGN转MNT
func (h *CurrencyHandler) ConvertNgnToMnt(c *gin.Context) {
	amount, err := strconv.ParseFloat(c.Param("amount"), 64)
	if err != nil || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的金额"})
		return
	}

	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"ngn":  amount,
		"mnt":  h.rates.NgnToMnt(ctx, amount),
		"rate": h.rates.NgnPerMnt(ctx),
	})
}
