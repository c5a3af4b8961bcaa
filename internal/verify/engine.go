package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/inference"
	"github.com/blues/eos/internal/logger"
	"github.com/blues/eos/internal/retry"
	"github.com/google/uuid"
)

// Input 一次验证请求的输入
type Input struct {
	VideoPath   string  // 本地证据文件路径
	Criteria    string  // 里程碑验证标准
	Latitude    float64 // 项目坐标
	Longitude   float64
	ToleranceKm float64 // 允许偏差半径（公里）
}

// Engine 验证引擎：地理围栏 -> 上传 -> 轮询 -> 推理 -> 判定解析
type Engine struct {
	backend inference.Backend
	cfg     config.InferenceConfig
	policy  retry.Policy
	locate  func(path string) (lat, lon float64, ok bool)
}

// NewEngine 创建验证引擎
func NewEngine(backend inference.Backend, cfg config.InferenceConfig) *Engine {
	return &Engine{
		backend: backend,
		cfg:     cfg,
		policy: retry.Policy{
			MaxAttempts:    cfg.MaxAttempts,
			BaseDelay:      time.Duration(cfg.RetryDelay) * time.Second,
			RateLimitDelay: time.Duration(cfg.RateLimitDelay) * time.Second,
		},
		locate: ExtractLocation,
	}
}

// Verify 执行一次完整验证。推理耗尽重试时返回显式错误判定而非error；
// error只用于上传失败、处理失败、轮询超时这类硬故障。
func (e *Engine) Verify(ctx context.Context, in Input) (Verdict, error) {
	if in.Criteria == "" {
		return Verdict{}, fmt.Errorf("verification criteria must not be empty")
	}

	// 1. 地理围栏：证据带GPS且超出容差时直接拒绝，不消耗推理额度
	if lat, lon, ok := e.locate(in.VideoPath); ok {
		dist := Distance(lat, lon, in.Latitude, in.Longitude)
		logger.Info("Evidence GPS (%.5f, %.5f) is %.2fkm from project site (tolerance: %.2fkm)",
			lat, lon, dist, in.ToleranceKm)
		if dist > in.ToleranceKm {
			return Verdict{
				Verified:   false,
				Confidence: 0,
				Reasoning: fmt.Sprintf(
					"Location mismatch: evidence was recorded %.2fkm from the project site, outside the %.2fkm tolerance. Possible location fraud.",
					dist, in.ToleranceKm),
			}, nil
		}
	} else {
		logger.Info("Evidence carries no GPS metadata, proceeding to inference")
	}

	// 2. 上传证据
	displayName := "eos-milestone-" + uuid.NewString()
	handle, err := e.backend.UploadMedia(ctx, in.VideoPath, displayName)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to upload evidence: %w", err)
	}

	// 远端产物在任何退出路径上都要清理，包括调用方取消
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := e.backend.DeleteMedia(cleanupCtx, handle); err != nil {
			logger.Warn("Failed to delete inference artifact %s: %v", handle.Name, err)
		}
	}()

	// 3. 轮询处理状态直到就绪
	if err := e.awaitProcessing(ctx, handle); err != nil {
		return Verdict{}, err
	}

	// 文件就绪后稍作等待再推理
	if e.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		case <-time.After(time.Duration(e.cfg.SettleDelay) * time.Second):
		}
	}

	// 4. 带重试的推理
	prompt := fmt.Sprintf(
		`Verify milestone: %s. Return ONLY a JSON object: {"verified": true, "confidence_score": 95, "reasoning": "Activity detected."}`,
		in.Criteria)

	var output string
	err = e.policy.Do(ctx, func(attempt int) error {
		logger.Info("Inference attempt %d/%d", attempt, e.policy.MaxAttempts)
		text, inferErr := e.backend.Infer(ctx, prompt, handle)
		if inferErr != nil {
			logger.Warn("Inference attempt %d failed: %v", attempt, inferErr)
			return inferErr
		}
		output = text
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		// 重试耗尽：返回显式错误判定，调用方总能拿到结构化结果
		logger.Error("Inference retries exhausted: %v", err)
		return ErrorVerdict(fmt.Sprintf("AI inference failed after %d attempts: %v", e.policy.MaxAttempts, err)), nil
	}

	// 5. 结构化判定恢复
	verdict := ParseVerdict(output)
	if verdict.Degraded {
		logger.Warn("Verdict JSON parse failed, degraded to keyword heuristic (verified=%v)", verdict.Verified)
	}
	return verdict, nil
}

// awaitProcessing 轮询文件处理状态，带硬性时间上限
func (e *Engine) awaitProcessing(ctx context.Context, handle *inference.MediaHandle) error {
	interval := time.Duration(e.cfg.PollInterval) * time.Second
	deadline := time.Now().Add(time.Duration(e.cfg.PollTimeout) * time.Second)
	start := time.Now()

	for {
		state, err := e.backend.PollStatus(ctx, handle)
		if err != nil {
			return fmt.Errorf("failed to poll media status: %w", err)
		}

		switch state {
		case inference.FileStateActive:
			logger.Info("Media processing complete after %.0fs", time.Since(start).Seconds())
			return nil
		case inference.FileStateFailed:
			return fmt.Errorf("inference backend failed to process evidence %s", handle.Name)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %ds waiting for media processing", e.cfg.PollTimeout)
		}

		logger.Debug("Media still processing (%.0fs elapsed)", time.Since(start).Seconds())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
