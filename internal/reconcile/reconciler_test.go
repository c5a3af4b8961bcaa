package reconcile

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/blues/eos/internal/chain"
	"github.com/blues/eos/internal/database"
	"github.com/blues/eos/internal/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// fakeChain 只实现对账需要的查询
type fakeChain struct {
	state *chain.ProjectState
	err   error
}

func (f *fakeChain) GetProjectState(ctx context.Context, ref string) (*chain.ProjectState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func (f *fakeChain) GetMilestoneState(ctx context.Context, ref string, index uint64) (*chain.MilestoneState, error) {
	return nil, chain.ErrMilestoneNotFound
}

func (f *fakeChain) GetAuthority(ctx context.Context) (string, error) { return "", nil }

func (f *fakeChain) SignerAddress() string { return "" }

func (f *fakeChain) EstimateRelease(ctx context.Context, ref string, index uint64) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeChain) SubmitRelease(ctx context.Context, ref string, index uint64, gasLimit uint64) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeChain) AwaitFinality(ctx context.Context, txRef string, timeout time.Duration) (chain.TxStatus, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeChain) ReplayCall(ctx context.Context, ref string, index uint64) string { return "" }

func (f *fakeChain) Decimals() int32 { return 18 }

func (f *fakeChain) ChainType() string { return "fake" }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		NamingStrategy: &schema.NamingStrategy{SingularTable: true},
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// mnt 把资产数量转换为18位精度的最小单位
func mnt(amount float64) *big.Int {
	return chain.ToSmallestUnitFloat(amount, 18)
}

func seedDeployedProject(t *testing.T, db *gorm.DB, amounts []float64) *model.ProjectModel {
	t.Helper()
	project := &model.ProjectModel{
		Name:         "Bridge repair",
		TotalBudget:  0,
		ContractorId: 1,
		OnChainId:    "7",
	}
	for _, a := range amounts {
		project.TotalBudget += a
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	for i, a := range amounts {
		milestone := &model.MilestoneModel{
			ProjectId:   project.Id,
			Description: "Milestone",
			Amount:      a,
			OrderIndex:  i + 1,
			Status:      model.MilestoneStatusPending,
		}
		if err := db.Create(milestone).Error; err != nil {
			t.Fatalf("Failed to seed milestone: %v", err)
		}
	}
	return project
}

func TestSyncAmountOverwrite(t *testing.T) {
	db := setupTestDB(t)
	project := seedDeployedProject(t, db, []float64{10.5})

	// 链上金额10.0与本地10.5不一致，链上为准
	backend := &fakeChain{state: &chain.ProjectState{
		Name:        "Bridge repair",
		TotalBudget: mnt(10.0),
		Milestones: []chain.MilestoneState{
			{Amount: mnt(10.0)},
		},
	}}

	report, err := NewReconciler(db, backend).SyncProject(context.Background(), project)
	if err != nil {
		t.Fatalf("SyncProject failed: %v", err)
	}
	if len(report.Diffs) != 1 || !report.Diffs[0].Changed {
		t.Fatalf("Expected one changed diff, got %+v", report.Diffs)
	}

	var updated model.MilestoneModel
	db.Where("project_id = ?", project.Id).First(&updated)
	if math.Abs(updated.Amount-10.0) > 1e-9 {
		t.Errorf("Expected amount overwritten to 10.0, got %f", updated.Amount)
	}
	if report.DriftWarning {
		t.Error("Drift must be resolved once amounts are overwritten")
	}
}

func TestSyncReleasedForcesVerified(t *testing.T) {
	db := setupTestDB(t)
	project := seedDeployedProject(t, db, []float64{5})

	backend := &fakeChain{state: &chain.ProjectState{
		TotalBudget: mnt(5),
		Milestones: []chain.MilestoneState{
			{Amount: mnt(5), Completed: true, Released: true},
		},
	}}

	if _, err := NewReconciler(db, backend).SyncProject(context.Background(), project); err != nil {
		t.Fatalf("SyncProject failed: %v", err)
	}

	var updated model.MilestoneModel
	db.Where("project_id = ?", project.Id).First(&updated)
	if updated.Status != model.MilestoneStatusVerified || !updated.IsCompleted {
		t.Errorf("Released on chain must force verified locally, got status=%s completed=%v",
			updated.Status, updated.IsCompleted)
	}
}

func TestSyncCompletedNotReleased(t *testing.T) {
	db := setupTestDB(t)
	project := seedDeployedProject(t, db, []float64{5})

	backend := &fakeChain{state: &chain.ProjectState{
		TotalBudget: mnt(5),
		Milestones: []chain.MilestoneState{
			{Amount: mnt(5), Completed: true, Released: false},
		},
	}}

	if _, err := NewReconciler(db, backend).SyncProject(context.Background(), project); err != nil {
		t.Fatalf("SyncProject failed: %v", err)
	}

	var updated model.MilestoneModel
	db.Where("project_id = ?", project.Id).First(&updated)
	if updated.Status != model.MilestoneStatusCompleted {
		t.Errorf("Completed-not-released must map to completed, got %s", updated.Status)
	}
	if updated.Status == model.MilestoneStatusVerified {
		t.Error("Unreleased milestone must never be verified")
	}
}

func TestSyncOrphanFlaggedNotDeleted(t *testing.T) {
	db := setupTestDB(t)
	project := seedDeployedProject(t, db, []float64{5, 5, 5})

	// 链上只有2个里程碑，本地第3个是孤儿
	backend := &fakeChain{state: &chain.ProjectState{
		TotalBudget: mnt(10),
		Milestones: []chain.MilestoneState{
			{Amount: mnt(5)},
			{Amount: mnt(5)},
		},
	}}

	report, err := NewReconciler(db, backend).SyncProject(context.Background(), project)
	if err != nil {
		t.Fatalf("SyncProject failed: %v", err)
	}
	if len(report.OrphanMilestones) != 1 {
		t.Fatalf("Expected 1 orphan, got %d", len(report.OrphanMilestones))
	}

	var count int64
	db.Model(&model.MilestoneModel{}).Where("project_id = ?", project.Id).Count(&count)
	if count != 3 {
		t.Errorf("Orphans must be flagged, not deleted: %d milestones left", count)
	}
	if !report.DriftWarning {
		t.Error("Orphan amount should surface as budget drift")
	}
}

func TestSyncNotDeployed(t *testing.T) {
	db := setupTestDB(t)
	project := &model.ProjectModel{Name: "Pending", ContractorId: 1}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}

	if _, err := NewReconciler(db, &fakeChain{}).SyncProject(context.Background(), project); err == nil {
		t.Fatal("Expected error for project without on-chain id")
	}
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	db := setupTestDB(t)
	seedDeployedProject(t, db, []float64{5})

	backend := &fakeChain{err: errors.New("rpc unreachable")}
	reports, err := NewReconciler(db, backend).SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll must not fail on per-project errors: %v", err)
	}
	if len(reports) != 1 || reports[0].Error == "" {
		t.Fatalf("Expected one failed report, got %+v", reports)
	}
}
