package inference

import (
	"context"
	"fmt"
)

// FileState 远端媒体文件的处理状态
type FileState int

const (
	FileStateProcessing FileState = iota // 处理中
	FileStateActive                      // 可用于推理
	FileStateFailed                      // 处理失败（终态）
)

// MediaHandle 已上传媒体的远端句柄
type MediaHandle struct {
	Name string // 资源名，用于查询状态和删除
	URI  string // 推理请求中引用的URI
}

// APIError 推理后端的HTTP层错误
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inference backend returned %d: %s", e.StatusCode, e.Body)
}

// RateLimited 实现 retry.RateLimited，429需要长退避
func (e *APIError) RateLimited() bool {
	return e.StatusCode == 429
}

// Backend 视觉推理后端接口
type Backend interface {
	// UploadMedia 上传本地媒体文件，返回远端句柄
	UploadMedia(ctx context.Context, path string, displayName string) (*MediaHandle, error)

	// PollStatus 查询媒体文件的处理状态
	PollStatus(ctx context.Context, handle *MediaHandle) (FileState, error)

	// Infer 提交推理请求；handle为nil时执行纯文本推理
	Infer(ctx context.Context, prompt string, handle *MediaHandle) (string, error)

	// DeleteMedia 删除远端媒体文件
	DeleteMedia(ctx context.Context, handle *MediaHandle) error
}
