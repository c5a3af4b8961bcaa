package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"
)

// MilestoneState 链上里程碑状态
type MilestoneState struct {
	Description string   // 里程碑描述
	Amount      *big.Int // 金额（最小单位）
	Completed   bool     // 是否已完成
	Released    bool     // 资金是否已释放
}

// ProjectState 链上项目状态
type ProjectState struct {
	Name        string
	TotalBudget *big.Int // 总预算（最小单位）
	Milestones  []MilestoneState
}

// TxStatus 交易最终状态
type TxStatus int

const (
	TxStatusOk       TxStatus = iota // 已确认且执行成功
	TxStatusReverted                 // 已确认但链上回滚
)

// 链上查询的哨兵错误
var (
	// ErrMilestoneNotFound 指定索引的里程碑在链上不存在
	ErrMilestoneNotFound = errors.New("milestone not found on chain")
	// ErrFinalityTimeout 等待确认超时，交易结果未知
	ErrFinalityTimeout = errors.New("timed out waiting for transaction finality")
)

// SubmitRejection 交易提交被拒的分类
type SubmitRejection string

const (
	RejectInsufficientFunds SubmitRejection = "insufficient_funds" // 签名账户余额不足
	RejectStaleSequence     SubmitRejection = "stale_sequence"     // nonce过期
	RejectDuplicate         SubmitRejection = "duplicate"          // 重复提交
	RejectUnknown           SubmitRejection = "unknown"
)

// SubmitError 提交层面的拒绝，带分类信息
type SubmitError struct {
	Rejection SubmitRejection
	Err       error
}

func (e *SubmitError) Error() string {
	return "transaction submission rejected (" + string(e.Rejection) + "): " + e.Err.Error()
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Backend 结算链后端接口。结算引擎只通过该接口访问链，
// 链类型相关的逻辑全部收敛在各实现内部。
type Backend interface {
	// GetMilestoneState 查询链上里程碑状态；索引不存在时返回 ErrMilestoneNotFound
	GetMilestoneState(ctx context.Context, projectRef string, index uint64) (*MilestoneState, error)

	// GetProjectState 查询链上项目全量状态（对账用）
	GetProjectState(ctx context.Context, projectRef string) (*ProjectState, error)

	// GetAuthority 查询链上注册的放款授权地址
	GetAuthority(ctx context.Context) (string, error)

	// SignerAddress 本进程配置的签名账户地址
	SignerAddress() string

	// EstimateRelease 估算放款调用的资源消耗
	EstimateRelease(ctx context.Context, projectRef string, index uint64) (uint64, error)

	// SubmitRelease 签名并广播放款交易，返回规范化的交易引用；
	// 提交层面的拒绝以 *SubmitError 返回
	SubmitRelease(ctx context.Context, projectRef string, index uint64, gasLimit uint64) (string, error)

	// AwaitFinality 等待交易确认；超时返回 ErrFinalityTimeout（结果未知，不可当作失败）
	AwaitFinality(ctx context.Context, txRef string, timeout time.Duration) (TxStatus, error)

	// ReplayCall 只读重放放款调用以恢复回滚原因；恢复失败返回空串
	ReplayCall(ctx context.Context, projectRef string, index uint64) string

	// Decimals 结算资产的最小单位精度（如 wei 为18）
	Decimals() int32

	// ChainType 链类型标识
	ChainType() string
}

// NormalizeTxRef 将交易引用规范化为带0x前缀的小写形式
func NormalizeTxRef(txRef string) string {
	ref := strings.TrimSpace(txRef)
	if ref == "" {
		return ""
	}
	if !strings.HasPrefix(ref, "0x") && !strings.HasPrefix(ref, "0X") {
		ref = "0x" + ref
	}
	return strings.ToLower(ref)
}
