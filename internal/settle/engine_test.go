package settle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/blues/eos/internal/chain"
	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/database"
	"github.com/blues/eos/internal/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// fakeBackend 可编程的结算链后端
type fakeBackend struct {
	milestones  map[uint64]*chain.MilestoneState
	lookupErrs  map[uint64]error
	authority   string
	signer      string
	estimate    uint64
	estimateErr error
	submitErr   error
	txRef       string
	status      chain.TxStatus
	awaitErr    error
	replay      string

	submitted     int
	submittedGas  uint64
	submittedIdx  uint64
	estimateCalls int
	lookups       []uint64
}

func (f *fakeBackend) GetMilestoneState(ctx context.Context, ref string, index uint64) (*chain.MilestoneState, error) {
	f.lookups = append(f.lookups, index)
	if err, ok := f.lookupErrs[index]; ok {
		return nil, err
	}
	state, ok := f.milestones[index]
	if !ok {
		return nil, chain.ErrMilestoneNotFound
	}
	return state, nil
}

func (f *fakeBackend) GetProjectState(ctx context.Context, ref string) (*chain.ProjectState, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBackend) GetAuthority(ctx context.Context) (string, error) {
	return f.authority, nil
}

func (f *fakeBackend) SignerAddress() string {
	return f.signer
}

func (f *fakeBackend) EstimateRelease(ctx context.Context, ref string, index uint64) (uint64, error) {
	f.estimateCalls++
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimate, nil
}

func (f *fakeBackend) SubmitRelease(ctx context.Context, ref string, index uint64, gasLimit uint64) (string, error) {
	f.submitted++
	f.submittedGas = gasLimit
	f.submittedIdx = index
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.txRef, nil
}

func (f *fakeBackend) AwaitFinality(ctx context.Context, txRef string, timeout time.Duration) (chain.TxStatus, error) {
	if f.awaitErr != nil {
		return 0, f.awaitErr
	}
	return f.status, nil
}

func (f *fakeBackend) ReplayCall(ctx context.Context, ref string, index uint64) string {
	return f.replay
}

func (f *fakeBackend) Decimals() int32 { return 18 }

func (f *fakeBackend) ChainType() string { return "fake" }

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

func seedProject(t *testing.T, db *gorm.DB, onChainId string, orderIndex int) (*model.ProjectModel, *model.MilestoneModel) {
	t.Helper()
	project := &model.ProjectModel{
		Name:         "Road rehabilitation",
		TotalBudget:  100,
		ContractorId: 1,
		OnChainId:    onChainId,
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	milestone := &model.MilestoneModel{
		ProjectId:   project.Id,
		Description: "Foundation completed",
		Amount:      25,
		OrderIndex:  orderIndex,
		Status:      model.MilestoneStatusPending,
	}
	if err := db.Create(milestone).Error; err != nil {
		t.Fatalf("Failed to seed milestone: %v", err)
	}
	return project, milestone
}

func testChainConfig() config.ChainConfig {
	return config.ChainConfig{
		GasBufferPct:    20,
		GasLimitFixed:   3000000,
		FinalityTimeout: 1,
	}
}

func authorizedBackend() *fakeBackend {
	return &fakeBackend{
		milestones: map[uint64]*chain.MilestoneState{
			0: {Description: "Foundation completed", Amount: big.NewInt(1), Completed: false, Released: false},
		},
		authority: "0xAAAA",
		signer:    "0xaaaa",
		estimate:  100000,
		txRef:     "0xdeadbeef",
		status:    chain.TxStatusOk,
	}
}

func TestReleaseSuccess(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 1)

	result, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr != nil {
		t.Fatalf("ReleaseMilestone failed: %v", serr)
	}
	if result.TxRef != "0xdeadbeef" {
		t.Errorf("Expected tx 0xdeadbeef, got %s", result.TxRef)
	}
	if result.ChainIndex != 0 {
		t.Errorf("Expected chain index 0, got %d", result.ChainIndex)
	}
	if result.UsedFallbackGas {
		t.Error("Estimation succeeded, fallback gas must not be used")
	}
	// 估算100000 + 20%缓冲
	if backend.submittedGas != 120000 {
		t.Errorf("Expected gas limit 120000, got %d", backend.submittedGas)
	}

	var updated model.MilestoneModel
	if err := db.First(&updated, milestone.Id).Error; err != nil {
		t.Fatalf("Failed to reload milestone: %v", err)
	}
	if updated.Status != model.MilestoneStatusVerified || !updated.IsCompleted {
		t.Errorf("Local state not committed: status=%s completed=%v", updated.Status, updated.IsCompleted)
	}
}

func TestReleaseNotDeployed(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "", 1)

	_, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr == nil || serr.Code != CodeNotDeployed {
		t.Fatalf("Expected CodeNotDeployed, got %+v", serr)
	}
	if backend.submitted != 0 {
		t.Error("Undeployed project must not reach the chain")
	}
}

func TestReleaseAlreadySettled(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	backend.milestones[0].Released = true
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 1)

	result, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr != nil {
		t.Fatalf("ReleaseMilestone failed: %v", serr)
	}
	if !result.AlreadySettled {
		t.Error("Expected AlreadySettled")
	}
	if result.TxRef != "" {
		t.Errorf("Idempotent short-circuit must not carry a tx ref, got %s", result.TxRef)
	}
	if backend.submitted != 0 {
		t.Error("Already-released milestone must not be resubmitted")
	}
}

func TestReleaseIndexFallback(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	// 链上索引2不存在，原始顺序号3存在（历史数据按0起始写入）
	backend.milestones = map[uint64]*chain.MilestoneState{
		3: {Description: "Roofing", Amount: big.NewInt(1)},
	}
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 3)

	result, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr != nil {
		t.Fatalf("ReleaseMilestone failed: %v", serr)
	}
	if result.ChainIndex != 3 {
		t.Errorf("Expected fallback to raw index 3, got %d", result.ChainIndex)
	}
	if backend.submittedIdx != 3 {
		t.Errorf("Submission used index %d, want 3", backend.submittedIdx)
	}
}

func TestReleaseLookupTransportError(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	// RPC故障不是"索引不存在"：不允许退回原始顺序号向错误的索引放款
	backend.lookupErrs = map[uint64]error{
		2: errors.New("milestone lookup rpc error: connection reset by peer"),
	}
	backend.milestones = map[uint64]*chain.MilestoneState{
		3: {Description: "Roofing", Amount: big.NewInt(1)},
	}
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 3)

	_, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr == nil || serr.Code != CodeLookupFailed {
		t.Fatalf("Expected CodeLookupFailed, got %+v", serr)
	}
	if len(backend.lookups) != 1 || backend.lookups[0] != 2 {
		t.Errorf("Transport error must not trigger the raw-index fallback, lookups: %v", backend.lookups)
	}
	if backend.submitted != 0 {
		t.Error("Transport error during lookup must not reach submission")
	}
}

func TestReleaseBothIndexesMissing(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	backend.milestones = map[uint64]*chain.MilestoneState{}
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 2)

	_, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr == nil || serr.Code != CodeLookupFailed {
		t.Fatalf("Expected CodeLookupFailed, got %+v", serr)
	}
}

func TestReleaseUnauthorized(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	backend.authority = "0xBBBB"
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 1)

	_, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr == nil || serr.Code != CodeUnauthorized {
		t.Fatalf("Expected CodeUnauthorized, got %+v", serr)
	}
	if backend.submitted != 0 {
		t.Error("Unauthorized signer must not submit")
	}
	if serr.Retriable() {
		t.Error("Authority mismatch is fatal, not retriable")
	}
}

func TestReleaseGasEstimationFallback(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	backend.estimateErr = errors.New("execution reverted")
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 1)

	result, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr != nil {
		t.Fatalf("ReleaseMilestone failed: %v", serr)
	}
	if !result.UsedFallbackGas {
		t.Error("Expected fallback gas flag")
	}
	if backend.submittedGas != 3000000 {
		t.Errorf("Expected fixed gas limit 3000000, got %d", backend.submittedGas)
	}
}

func TestReleaseReverted(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	backend.status = chain.TxStatusReverted
	backend.replay = "milestone not completed"
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 1)

	_, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr == nil || serr.Code != CodeReverted {
		t.Fatalf("Expected CodeReverted, got %+v", serr)
	}
	if serr.TxRef != "0xdeadbeef" {
		t.Errorf("Reverted error must carry the tx ref, got %q", serr.TxRef)
	}

	// 链上回滚时本地状态不能变化
	var updated model.MilestoneModel
	db.First(&updated, milestone.Id)
	if updated.Status != model.MilestoneStatusPending {
		t.Errorf("Local status must stay pending after revert, got %s", updated.Status)
	}
}

func TestReleaseFinalityTimeout(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	backend.awaitErr = chain.ErrFinalityTimeout
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 1)

	_, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr == nil || serr.Code != CodeFinalityUnknown {
		t.Fatalf("Expected CodeFinalityUnknown, got %+v", serr)
	}
	if serr.TxRef != "0xdeadbeef" {
		t.Error("Finality-unknown error must carry the in-flight tx ref")
	}

	var updated model.MilestoneModel
	db.First(&updated, milestone.Id)
	if updated.Status != model.MilestoneStatusPending {
		t.Errorf("Unknown outcome must not change local state, got %s", updated.Status)
	}
}

func TestReleaseSubmissionRejected(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	backend.submitErr = &chain.SubmitError{
		Rejection: chain.RejectInsufficientFunds,
		Err:       errors.New("insufficient funds for gas"),
	}
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 1)

	_, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr == nil || serr.Code != CodeSubmissionRejected {
		t.Fatalf("Expected CodeSubmissionRejected, got %+v", serr)
	}
}

func TestReleaseInFlightExclusion(t *testing.T) {
	db := setupTestDB(t)
	backend := authorizedBackend()
	engine := NewEngine(db, backend, testChainConfig())
	project, milestone := seedProject(t, db, "1", 1)

	// 模拟另一次在途结算占用了同一里程碑
	if !engine.inflight.tryAcquire(project.Id, milestone.Id) {
		t.Fatal("Failed to acquire in-flight lock")
	}
	defer engine.inflight.release(project.Id, milestone.Id)

	_, serr := engine.ReleaseMilestone(context.Background(), project, milestone)
	if serr == nil || serr.Code != CodeInFlight {
		t.Fatalf("Expected CodeInFlight, got %+v", serr)
	}
	if backend.submitted != 0 {
		t.Error("Concurrent settlement must be refused before submission")
	}
}
