package settle

import (
	"context"
	"errors"
	"strings"

	"github.com/blues/eos/internal/chain"
	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/logger"
	"github.com/blues/eos/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Result 一次成功（或等效成功）的结算结果
type Result struct {
	TxRef           string // 规范化的交易引用；AlreadySettled时为空
	ChainIndex      uint64 // 实际使用的链上索引
	AlreadySettled  bool   // 链上已释放，本次无事可做
	UsedFallbackGas bool   // gas估算失败，使用了固定上限
}

// Engine 结算引擎。每次放款按固定顺序推进：
// 前置检查 -> 索引换算 -> 冲突检查 -> 授权检查 -> 费用估算 -> 提交 -> 等待确认 -> 结果归类 -> 本地落库。
// 任何一步的结果决定下一步是否安全，不可跳过或重排。
type Engine struct {
	db       *gorm.DB
	backend  chain.Backend
	cfg      config.ChainConfig
	inflight *inflightLocks
}

// NewEngine 创建结算引擎
func NewEngine(db *gorm.DB, backend chain.Backend, cfg config.ChainConfig) *Engine {
	return &Engine{
		db:       db,
		backend:  backend,
		cfg:      cfg,
		inflight: newInflightLocks(),
	}
}

// ReleaseMilestone 为已验证的里程碑执行链上放款并同步本地状态。
// 本地状态只在拿到交易引用之后更新：链上不同意时本地永远不会显示verified。
func (e *Engine) ReleaseMilestone(ctx context.Context, project *model.ProjectModel, milestone *model.MilestoneModel) (*Result, *Error) {
	// 同一里程碑的并发结算在提交前拒绝
	if !e.inflight.tryAcquire(project.Id, milestone.Id) {
		return nil, newError(CodeInFlight,
			"wait for the in-flight settlement to finish",
			"settlement for project %d milestone %d is already in flight", project.Id, milestone.Id)
	}
	defer e.inflight.release(project.Id, milestone.Id)

	// 1. 前置检查：未上链的项目不发起任何链上调用
	if !project.Deployed() {
		return nil, newError(CodeNotDeployed,
			"create the project on chain and set its on_chain_id first",
			"project %d has no on-chain correlation id", project.Id)
	}

	logger.Info("Releasing funds: project %d (chain ref %s), milestone %d (order index %d)",
		project.Id, project.OnChainId, milestone.Id, milestone.OrderIndex)

	// 2+3. 索引换算与冲突检查
	chainIndex, state, serr := e.resolveChainIndex(ctx, project.OnChainId, milestone.OrderIndex)
	if serr != nil {
		return nil, serr
	}

	if state.Released {
		// 幂等短路：不重复提交
		logger.Info("Milestone already released on chain (project %s, index %d), nothing to do",
			project.OnChainId, chainIndex)
		return &Result{ChainIndex: chainIndex, AlreadySettled: true}, nil
	}

	// 4. 授权检查：签名账户必须是链上注册的授权方，不匹配不重试
	authority, err := e.backend.GetAuthority(ctx)
	if err != nil {
		return nil, newError(CodeLookupFailed, "check chain RPC connectivity",
			"failed to read settlement authority: %v", err)
	}
	signer := e.backend.SignerAddress()
	if !strings.EqualFold(authority, signer) {
		return nil, newError(CodeUnauthorized,
			"register this signer as the settlement authority or switch keys",
			"signer %s is not the chain-registered authority %s", signer, authority)
	}

	// 5. 费用估算，失败时退回固定上限继续（可用性优先，但要醒目地记录）
	gasLimit := e.cfg.GasLimitFixed
	usedFallback := false
	if estimated, err := e.backend.EstimateRelease(ctx, project.OnChainId, chainIndex); err != nil {
		usedFallback = true
		logger.Error("GAS ESTIMATION FALLBACK: estimation failed for project %s index %d, using fixed limit %d. The call itself may revert. Error: %v",
			project.OnChainId, chainIndex, gasLimit, err)
	} else {
		gasLimit = estimated + estimated*uint64(e.cfg.GasBufferPct)/100
		logger.Info("Gas estimate: %d, submitting with limit %d (+%d%%)", estimated, gasLimit, e.cfg.GasBufferPct)
	}

	// 6. 提交并等待确认
	txRef, err := e.backend.SubmitRelease(ctx, project.OnChainId, chainIndex, gasLimit)
	if err != nil {
		return nil, classifySubmission(err)
	}

	status, err := e.backend.AwaitFinality(ctx, txRef, e.cfg.FinalityWait())
	if err != nil {
		if errors.Is(err, chain.ErrFinalityTimeout) {
			// 结果未知：交易仍在途，既不能当成功也不能当失败
			return nil, &Error{
				Code:    CodeFinalityUnknown,
				Message: "timed out waiting for transaction finality, outcome unknown",
				Hint:    "run reconciliation for this project before retrying",
				TxRef:   txRef,
			}
		}
		return nil, &Error{
			Code:    CodeFinalityUnknown,
			Message: "failed while awaiting finality: " + err.Error(),
			Hint:    "run reconciliation for this project before retrying",
			TxRef:   txRef,
		}
	}

	// 7. 结果归类
	if status == chain.TxStatusReverted {
		reason := e.backend.ReplayCall(ctx, project.OnChainId, chainIndex)
		if reason == "" {
			reason = "revert reason could not be recovered"
		}
		return nil, &Error{
			Code:    CodeReverted,
			Message: "release transaction reverted on chain: " + reason,
			Hint:    "inspect contract state for this milestone",
			TxRef:   txRef,
		}
	}

	// 8. 本地落库：只有走到这里本地状态才会变化
	if err := e.commitLocalState(milestone.Id); err != nil {
		// 链上已放款但本地未更新：对账任务会修正这种漂移
		logger.Error("Funds released on chain (tx %s) but local status update failed: %v", txRef, err)
		return nil, &Error{
			Code:    CodeStoreFailed,
			Message: "funds released on chain but local status update failed: " + err.Error(),
			Hint:    "run reconciliation to repair local state",
			TxRef:   txRef,
		}
	}

	logger.Info("Milestone released successfully: tx %s", txRef)
	return &Result{TxRef: txRef, ChainIndex: chainIndex, UsedFallbackGas: usedFallback}, nil
}

// resolveChainIndex 将1起始的order_index换算为链上0起始索引。
// 规则：先减1查询；404时退回原值（兼容历史上已按0起始写入的数据）。
func (e *Engine) resolveChainIndex(ctx context.Context, projectRef string, orderIndex int) (uint64, *chain.MilestoneState, *Error) {
	if orderIndex < 1 {
		// 已经是0起始的数据，按原值查
		state, err := e.backend.GetMilestoneState(ctx, projectRef, 0)
		if err != nil {
			return 0, nil, newError(CodeLookupFailed, "verify the project's on-chain id and milestone count",
				"milestone lookup failed for project %s index 0: %v", projectRef, err)
		}
		return 0, state, nil
	}

	primary := uint64(orderIndex - 1)
	state, err := e.backend.GetMilestoneState(ctx, projectRef, primary)
	if err == nil {
		return primary, state, nil
	}
	if !errors.Is(err, chain.ErrMilestoneNotFound) {
		return 0, nil, newError(CodeLookupFailed, "check chain RPC connectivity",
			"milestone lookup failed for project %s index %d: %v", projectRef, primary, err)
	}

	// 兼容回退：按原始order_index再查一次
	fallback := uint64(orderIndex)
	logger.Warn("Milestone not found at chain index %d, falling back to raw order index %d (project %s)",
		primary, fallback, projectRef)
	state, err = e.backend.GetMilestoneState(ctx, projectRef, fallback)
	if err != nil {
		return 0, nil, newError(CodeLookupFailed, "verify the project's on-chain id and milestone count",
			"milestone not found at chain index %d or %d for project %s", primary, fallback, projectRef)
	}
	return fallback, state, nil
}

// classifySubmission 将提交拒绝转换为带补救提示的结算错误
func classifySubmission(err error) *Error {
	var submitErr *chain.SubmitError
	if errors.As(err, &submitErr) {
		switch submitErr.Rejection {
		case chain.RejectInsufficientFunds:
			return newError(CodeSubmissionRejected, "fund the signer wallet with gas",
				"submission rejected: insufficient funds: %v", submitErr.Err)
		case chain.RejectStaleSequence:
			return newError(CodeSubmissionRejected, "retry, the sequence number will be re-read",
				"submission rejected: stale sequence number: %v", submitErr.Err)
		case chain.RejectDuplicate:
			return newError(CodeSubmissionRejected, "an identical transaction is already pending, await it or run reconciliation",
				"submission rejected: duplicate transaction: %v", submitErr.Err)
		}
	}
	return newError(CodeSubmissionRejected, "inspect node logs", "submission rejected: %v", err)
}

// commitLocalState 在行锁保护下将里程碑标记为已验证
func (e *Engine) commitLocalState(milestoneId int64) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		query := tx
		// sqlite不支持FOR UPDATE，行锁只在postgres下生效
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var milestone model.MilestoneModel
		if err := query.First(&milestone, milestoneId).Error; err != nil {
			return err
		}

		return tx.Model(&milestone).Updates(map[string]interface{}{
			"status":       model.MilestoneStatusVerified,
			"is_completed": true,
		}).Error
	})
}
