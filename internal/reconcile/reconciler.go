package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/blues/eos/internal/chain"
	"github.com/blues/eos/internal/logger"
	"github.com/blues/eos/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 金额比较的容差，低于此差异不视为漂移
var amountEpsilon = decimal.New(1, -6) // 0.000001

// MilestoneDiff 单个里程碑的对账差异
type MilestoneDiff struct {
	MilestoneId  int64                 `json:"milestone_id"`
	OrderIndex   int                   `json:"order_index"`
	ChainIndex   uint64                `json:"chain_index"`
	AmountBefore float64               `json:"amount_before"`
	AmountAfter  float64               `json:"amount_after"`
	StatusBefore model.MilestoneStatus `json:"status_before"`
	StatusAfter  model.MilestoneStatus `json:"status_after"`
	Changed      bool                  `json:"changed"`
}

// SyncReport 单个项目的对账结果
type SyncReport struct {
	ProjectId       int64           `json:"project_id"`
	OnChainId       string          `json:"on_chain_id"`
	ChainMilestones int             `json:"chain_milestones"`
	LocalMilestones int             `json:"local_milestones"`
	Diffs           []MilestoneDiff `json:"diffs"`
	// OrphanMilestones 本地存在但超出链上里程碑数量的记录，只标记不删除
	OrphanMilestones []int64 `json:"orphan_milestones,omitempty"`
	// BudgetDrift 本地金额合计与链上总预算的差值
	BudgetDrift  string `json:"budget_drift"`
	DriftWarning bool   `json:"drift_warning"`
	Error        string `json:"error,omitempty"`
}

// Reconciler 以链上状态为准修正本地台账
type Reconciler struct {
	db      *gorm.DB
	backend chain.Backend
}

// NewReconciler 创建对账器
func NewReconciler(db *gorm.DB, backend chain.Backend) *Reconciler {
	return &Reconciler{db: db, backend: backend}
}

// SyncProject 将单个项目的本地台账与链上状态对齐。
// 金额以链为准；released -> verified；completed未released -> completed。
func (r *Reconciler) SyncProject(ctx context.Context, project *model.ProjectModel) (*SyncReport, error) {
	if !project.Deployed() {
		return nil, fmt.Errorf("project %d has no on-chain correlation id", project.Id)
	}

	report := &SyncReport{
		ProjectId: project.Id,
		OnChainId: project.OnChainId,
	}

	chainState, err := r.backend.GetProjectState(ctx, project.OnChainId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain state for project %d: %w", project.Id, err)
	}
	report.ChainMilestones = len(chainState.Milestones)

	var milestones []model.MilestoneModel
	if err := r.db.Where("project_id = ?", project.Id).
		Order("order_index ASC").Find(&milestones).Error; err != nil {
		return nil, fmt.Errorf("failed to load local milestones for project %d: %w", project.Id, err)
	}
	report.LocalMilestones = len(milestones)

	decimals := r.backend.Decimals()
	localTotal := decimal.Zero

	for i := range milestones {
		ms := &milestones[i]
		chainIndex := ms.ChainIndex()

		// 本地多出链上数量的里程碑：标记为孤儿，不删除
		if chainIndex >= uint64(len(chainState.Milestones)) {
			logger.Warn("Local milestone %d (order index %d) has no chain counterpart (chain has %d milestones)",
				ms.Id, ms.OrderIndex, len(chainState.Milestones))
			report.OrphanMilestones = append(report.OrphanMilestones, ms.Id)
			localTotal = localTotal.Add(decimal.NewFromFloat(ms.Amount))
			continue
		}

		onChain := chainState.Milestones[chainIndex]
		diff := MilestoneDiff{
			MilestoneId:  ms.Id,
			OrderIndex:   ms.OrderIndex,
			ChainIndex:   chainIndex,
			AmountBefore: ms.Amount,
			AmountAfter:  ms.Amount,
			StatusBefore: ms.Status,
			StatusAfter:  ms.Status,
		}

		updates := map[string]interface{}{}

		// 金额以链为准
		chainAmount := chain.FromSmallestUnit(onChain.Amount, decimals)
		localAmount := decimal.NewFromFloat(ms.Amount)
		if chainAmount.Sub(localAmount).Abs().GreaterThan(amountEpsilon) {
			amountAfter, _ := chainAmount.Float64()
			diff.AmountAfter = amountAfter
			updates["amount"] = amountAfter
		}

		// 状态以链为准：released强制verified，completed未released只到completed
		switch {
		case onChain.Released && ms.Status != model.MilestoneStatusVerified:
			diff.StatusAfter = model.MilestoneStatusVerified
			updates["status"] = model.MilestoneStatusVerified
			updates["is_completed"] = true
		case onChain.Completed && !onChain.Released && ms.Status == model.MilestoneStatusPending:
			diff.StatusAfter = model.MilestoneStatusCompleted
			updates["status"] = model.MilestoneStatusCompleted
		}

		if len(updates) > 0 {
			if err := r.db.Model(ms).Updates(updates).Error; err != nil {
				return nil, fmt.Errorf("failed to update milestone %d: %w", ms.Id, err)
			}
			diff.Changed = true
		}

		localTotal = localTotal.Add(decimal.NewFromFloat(diff.AmountAfter))
		report.Diffs = append(report.Diffs, diff)
	}

	// 总预算漂移检查
	chainTotal := chain.FromSmallestUnit(chainState.TotalBudget, decimals)
	drift := localTotal.Sub(chainTotal)
	report.BudgetDrift = drift.String()
	if drift.Abs().GreaterThan(amountEpsilon) {
		report.DriftWarning = true
		logger.Warn("Budget drift for project %d: local total %s vs chain total %s",
			project.Id, localTotal.String(), chainTotal.String())
	}

	logger.Info("Synced project %d from chain: %d milestones compared, %d orphans, drift %s",
		project.Id, len(report.Diffs), len(report.OrphanMilestones), report.BudgetDrift)
	return report, nil
}

// SyncAll 对所有已上链项目执行对账。
// 单个项目失败不会中断批次，失败信息记录在各自的报告里。
func (r *Reconciler) SyncAll(ctx context.Context) ([]SyncReport, error) {
	var projects []model.ProjectModel
	if err := r.db.Where("on_chain_id <> ''").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list deployed projects: %w", err)
	}

	reports := make([]SyncReport, 0, len(projects))
	for i := range projects {
		project := &projects[i]
		report, err := r.SyncProject(ctx, project)
		if err != nil {
			logger.Error("Reconciliation failed for project %d: %v", project.Id, err)
			reports = append(reports, SyncReport{
				ProjectId: project.Id,
				OnChainId: project.OnChainId,
				Error:     err.Error(),
			})
			continue
		}
		reports = append(reports, *report)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].ProjectId < reports[j].ProjectId })
	return reports, nil
}
