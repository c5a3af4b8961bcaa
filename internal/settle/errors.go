package settle

import (
	"fmt"
)

// Code 结算失败的分类
type Code string

const (
	// CodeNotDeployed 项目缺少链上关联ID，属预期状态，不自动重试
	CodeNotDeployed Code = "not_deployed"
	// CodeUnauthorized 签名账户不是链上注册的放款授权方，致命错误
	CodeUnauthorized Code = "unauthorized"
	// CodeLookupFailed 两种索引方案都查不到链上里程碑
	CodeLookupFailed Code = "lookup_failed"
	// CodeSubmissionRejected 提交层面被节点拒绝
	CodeSubmissionRejected Code = "submission_rejected"
	// CodeReverted 交易上链后回滚
	CodeReverted Code = "reverted"
	// CodeFinalityUnknown 等待确认超时，结果未知，需对账确认
	CodeFinalityUnknown Code = "finality_unknown"
	// CodeInFlight 同一里程碑已有在途结算
	CodeInFlight Code = "in_flight"
	// CodeStoreFailed 本地状态提交失败
	CodeStoreFailed Code = "store_failed"
)

// Error 结算失败，带分类、补救提示和可选的交易引用。
// 没有交易引用的失败一定带有分类，不存在裸的空结果。
type Error struct {
	Code    Code
	Message string
	Hint    string
	TxRef   string // FinalityUnknown时为在途交易引用
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("settlement %s: %s (%s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("settlement %s: %s", e.Code, e.Message)
}

// Retriable 该类失败是否值得调用方稍后重试
func (e *Error) Retriable() bool {
	switch e.Code {
	case CodeNotDeployed, CodeUnauthorized, CodeReverted:
		return false
	default:
		return true
	}
}

func newError(code Code, hint string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Hint:    hint,
	}
}
