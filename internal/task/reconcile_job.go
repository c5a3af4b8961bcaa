package task

import (
	"context"
	"sync"
	"time"

	"github.com/blues/eos/internal/chain"
	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/logger"
	"github.com/blues/eos/internal/model"
	"github.com/blues/eos/internal/reconcile"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// 对账任务的并发度与单项目超时
const (
	reconcilePoolSize   = 4
	reconcileTimeout    = 2 * time.Minute
	reconcileJobTimeout = 10 * time.Minute
)

// ReconcileJob 周期性链上对账任务。
// 每个项目独立对账，单个失败不影响其他项目。
type ReconcileJob struct {
	db      *gorm.DB
	backend chain.Backend
	config  *config.Config
}

// NewReconcileJob 创建对账任务
func NewReconcileJob(db *gorm.DB, backend chain.Backend, cfg *config.Config) *ReconcileJob {
	return &ReconcileJob{
		db:      db,
		backend: backend,
		config:  cfg,
	}
}

// GetName 获取任务名称
func (j *ReconcileJob) GetName() string {
	return "chain_reconciler"
}

// GetSchedule 获取调度配置
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.Interval) * time.Second)
}

// Execute 执行任务
func (j *ReconcileJob) Execute() {
	logger.Info("Starting chain reconciliation task")

	ctx, cancel := context.WithTimeout(context.Background(), reconcileJobTimeout)
	defer cancel()

	var projects []model.ProjectModel
	if err := j.db.Where("on_chain_id <> ''").Find(&projects).Error; err != nil {
		logger.Error("Failed to fetch deployed projects: %v", err)
		return
	}
	if len(projects) == 0 {
		logger.Debug("No deployed projects to reconcile")
		return
	}

	pool, err := ants.NewPool(reconcilePoolSize)
	if err != nil {
		logger.Error("Failed to create reconcile worker pool: %v", err)
		return
	}
	defer pool.Release()

	reconciler := reconcile.NewReconciler(j.db, j.backend)

	var wg sync.WaitGroup
	var mu sync.Mutex
	synced, failed := 0, 0

	for i := range projects {
		project := projects[i]
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			projectCtx, cancel := context.WithTimeout(ctx, reconcileTimeout)
			defer cancel()

			report, err := reconciler.SyncProject(projectCtx, &project)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.Error("Reconciliation failed for project %d: %v", project.Id, err)
				return
			}
			synced++
			if report.DriftWarning || len(report.OrphanMilestones) > 0 {
				logger.Warn("Project %d reconciled with anomalies: drift=%s orphans=%d",
					project.Id, report.BudgetDrift, len(report.OrphanMilestones))
			}
		})
		if submitErr != nil {
			wg.Done()
			logger.Error("Failed to submit reconcile task for project %d: %v", project.Id, submitErr)
		}
	}
	wg.Wait()

	logger.Info("Chain reconciliation completed: %d synced, %d failed", synced, failed)
}
