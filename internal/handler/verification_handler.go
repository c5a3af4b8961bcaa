package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blues/eos/internal/chain"
	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/logger"
	"github.com/blues/eos/internal/logic"
	"github.com/blues/eos/internal/settle"
	"github.com/blues/eos/internal/verify"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VerificationHandler 验证与放款入口
type VerificationHandler struct {
	milestoneLogic *logic.MilestoneLogic
	verifyEngine   *verify.Engine
	settleEngine   *settle.Engine
	backend        chain.Backend
	storage        config.StorageConfig
	inference      config.InferenceConfig
	chainCfg       config.ChainConfig
}

func NewVerificationHandler(
	milestoneLogic *logic.MilestoneLogic,
	verifyEngine *verify.Engine,
	settleEngine *settle.Engine,
	backend chain.Backend,
	storage config.StorageConfig,
	inference config.InferenceConfig,
	chainCfg config.ChainConfig,
) *VerificationHandler {
	return &VerificationHandler{
		milestoneLogic: milestoneLogic,
		verifyEngine:   verifyEngine,
		settleEngine:   settleEngine,
		backend:        backend,
		storage:        storage,
		inference:      inference,
		chainCfg:       chainCfg,
	}
}

// UploadVideo 接收证据视频并存入静态目录
func (h *VerificationHandler) UploadVideo(c *gin.Context) {
	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少视频文件"})
		return
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".mp4"
	}
	name := uuid.NewString() + ext

	if err := os.MkdirAll(h.storage.UploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	dst := filepath.Join(h.storage.UploadDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	videoUrl := strings.TrimSuffix(h.storage.BaseUrl, "/") + "/static/uploads/" + name
	logger.Info("Evidence uploaded: %s (%d bytes)", name, file.Size)
	c.JSON(http.StatusCreated, gin.H{
		"message":   "上传成功",
		"video_url": videoUrl,
		"filename":  name,
	})
}

// VerifyMilestone 对里程碑执行完整的验证与放款流水线
func (h *VerificationHandler) VerifyMilestone(c *gin.Context) {
	var req VerifyMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	milestone, project, err := h.milestoneLogic.GetMilestoneWithProject(req.MilestoneId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	// 证据本地化
	evidence, err := verify.FetchEvidence(req.VideoUrl, h.storage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer evidence.Cleanup()

	ctx := c.Request.Context()
	verdict, err := h.verifyEngine.Verify(ctx, verify.Input{
		VideoPath:   evidence.Path,
		Criteria:    milestone.Description,
		Latitude:    project.Latitude,
		Longitude:   project.Longitude,
		ToleranceKm: project.ToleranceKm,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	resp := VerificationResponse{
		MilestoneId: milestone.Id,
		Verified:    verdict.Verified,
		Confidence:  verdict.Confidence,
		Reasoning:   verdict.Reasoning,
		Degraded:    verdict.Degraded,
	}

	// 放款门槛：verified且置信度达标
	if !verdict.Verified || verdict.Confidence < h.inference.ReleaseThreshold {
		logger.Info("Milestone %d not released: verified=%v confidence=%d (threshold %d)",
			milestone.Id, verdict.Verified, verdict.Confidence, h.inference.ReleaseThreshold)
		c.JSON(http.StatusOK, resp)
		return
	}

	result, serr := h.settleEngine.ReleaseMilestone(ctx, project, milestone)
	if serr != nil {
		// 判定结果仍然返回，放款侧异常单独标注
		resp.ReleaseError = serr.Error()
		resp.TxHash = serr.TxRef
		if serr.Code == settle.CodeFinalityUnknown {
			resp.Notice = "transaction submitted but finality is unknown, run reconciliation before retrying"
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	resp.Released = true
	resp.ChainIndex = result.ChainIndex
	resp.TxHash = result.TxRef
	if result.AlreadySettled {
		resp.Notice = "milestone was already released on chain"
	} else {
		resp.ExplorerUrl = h.chainCfg.ExplorerTxUrl + result.TxRef
	}
	c.JSON(http.StatusOK, resp)
}

// ApproveMilestone 人工审批放款，跳过AI验证但保持同样的结算强度
func (h *VerificationHandler) ApproveMilestone(c *gin.Context) {
	var req ApproveMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	milestone, project, err := h.milestoneLogic.GetMilestoneWithProject(req.MilestoneId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	result, serr := h.settleEngine.ReleaseMilestone(c.Request.Context(), project, milestone)
	if serr != nil {
		c.JSON(settleErrorStatus(serr.Code), gin.H{
			"error":   serr.Message,
			"code":    string(serr.Code),
			"hint":    serr.Hint,
			"tx_hash": serr.TxRef,
		})
		return
	}

	body := gin.H{
		"message":     "放款成功",
		"released":    true,
		"chain_index": result.ChainIndex,
		"tx_hash":     result.TxRef,
	}
	if result.AlreadySettled {
		body["message"] = "链上已释放，无需重复放款"
	} else {
		body["explorer_url"] = h.chainCfg.ExplorerTxUrl + result.TxRef
	}
	c.JSON(http.StatusOK, body)
}

// ContractState 查询里程碑的链上状态（调试/审计用）
func (h *VerificationHandler) ContractState(c *gin.Context) {
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
	if !project.Deployed() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "项目未上链"})
		return
	}

	ctx := c.Request.Context()
	authority, err := h.backend.GetAuthority(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	signer := h.backend.SignerAddress()

	// 两个索引候选都查一遍，便于排查索引口径问题
	states := gin.H{}
	for _, idx := range []uint64{milestone.ChainIndex(), uint64(milestone.OrderIndex)} {
		state, err := h.backend.GetMilestoneState(ctx, project.OnChainId, idx)
		key := fmt.Sprintf("index_%d", idx)
		if err != nil {
			states[key] = gin.H{"error": err.Error()}
			continue
		}
		states[key] = gin.H{
			"description": state.Description,
			"amount":      chain.FormatAmount(state.Amount, h.backend.Decimals(), "MNT"),
			"completed":   state.Completed,
			"released":    state.Released,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"milestone_id":    milestone.Id,
		"on_chain_id":     project.OnChainId,
		"authority":       authority,
		"signer":          signer,
		"authority_match": strings.EqualFold(authority, signer),
		"states":          states,
	})
}

// settleErrorStatus 结算错误分类到HTTP状态码的映射
func settleErrorStatus(code settle.Code) int {
	switch code {
	case settle.CodeNotDeployed:
		return http.StatusBadRequest
	case settle.CodeInFlight:
		return http.StatusConflict
	case settle.CodeUnauthorized, settle.CodeStoreFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
