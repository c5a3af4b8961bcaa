package task

import (
	"github.com/blues/eos/internal/chain"
	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/currency"
	"github.com/blues/eos/internal/logger"
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	db        *gorm.DB
	backend   chain.Backend
	rates     *currency.Service
	config    *config.Config
}

// NewManager 创建新的任务管理器
func NewManager(db *gorm.DB, backend chain.Backend, rates *currency.Service, cfg *config.Config) *Manager {
	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	return &Manager{
		scheduler: s,
		db:        db,
		backend:   backend,
		rates:     rates,
		config:    cfg,
	}
}

// Start 启动任务管理器
func Start(db *gorm.DB, backend chain.Backend, rates *currency.Service, cfg *config.Config) *Manager {
	manager := NewManager(db, backend, rates, cfg)

	// 注册所有任务
	manager.RegisterJobs()

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully")
	return manager
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() {
	// 周期性链上对账
	m.registerJob(NewReconcileJob(m.db, m.backend, m.config))
	// 汇率缓存预热
	m.registerJob(NewRateWarmJob(m.rates, m.config))
}

// Job 周期任务接口
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// registerJob 注册单个任务，单例模式避免上一轮未结束时重入
func (m *Manager) registerJob(job Job) {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
