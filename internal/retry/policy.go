package retry

import (
	"context"
	"errors"
	"time"
)

// Policy 重试策略
type Policy struct {
	MaxAttempts    int           // 最大尝试次数
	BaseDelay      time.Duration // 普通失败的重试间隔
	RateLimitDelay time.Duration // 命中限流时的重试间隔
}

// RateLimited 判断错误是否为限流信号
type RateLimited interface {
	RateLimited() bool
}

// Do 按策略执行fn直到成功或次数耗尽，返回最后一次错误
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.BaseDelay
		// 包装链里任意一层的限流信号都要识别
		var rl RateLimited
		if errors.As(lastErr, &rl) && rl.RateLimited() {
			delay = p.RateLimitDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
