package task

import (
	"context"
	"time"

	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/currency"
	"github.com/blues/eos/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// RateWarmJob 汇率缓存预热任务，在TTL过期前刷新，避免请求路径上穿透到外部API
type RateWarmJob struct {
	rates  *currency.Service
	config *config.Config
}

// NewRateWarmJob 创建汇率预热任务
func NewRateWarmJob(rates *currency.Service, cfg *config.Config) *RateWarmJob {
	return &RateWarmJob{rates: rates, config: cfg}
}

// GetName 获取任务名称
func (j *RateWarmJob) GetName() string {
	return "rate_cache_warmer"
}

// GetSchedule 获取调度配置
func (j *RateWarmJob) GetSchedule() gocron.JobDefinition {
	// 略早于缓存TTL刷新
	interval := j.config.Currency.CacheTTL * 4 / 5
	if interval < 60 {
		interval = 60
	}
	return gocron.DurationJob(time.Duration(interval) * time.Second)
}

// Execute 执行任务
func (j *RateWarmJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rate := j.rates.NgnPerMnt(ctx)
	logger.Debug("Rate cache warmed: %.2f NGN/MNT", rate)
}
