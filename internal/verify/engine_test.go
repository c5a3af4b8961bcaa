package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/inference"
)

// fakeInference 可编程的推理后端
type fakeInference struct {
	uploadErr   error
	uploadCalls int
	pollStates  []inference.FileState
	pollCalls   int
	inferOut    string
	inferErr    error
	inferCalls  int
	deleted     bool
}

func (f *fakeInference) UploadMedia(ctx context.Context, path, displayName string) (*inference.MediaHandle, error) {
	f.uploadCalls++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &inference.MediaHandle{Name: "files/test", URI: "https://example.com/files/test"}, nil
}

func (f *fakeInference) PollStatus(ctx context.Context, handle *inference.MediaHandle) (inference.FileState, error) {
	if f.pollCalls < len(f.pollStates) {
		state := f.pollStates[f.pollCalls]
		f.pollCalls++
		return state, nil
	}
	return inference.FileStateActive, nil
}

func (f *fakeInference) Infer(ctx context.Context, prompt string, handle *inference.MediaHandle) (string, error) {
	f.inferCalls++
	if f.inferErr != nil {
		return "", f.inferErr
	}
	return f.inferOut, nil
}

func (f *fakeInference) DeleteMedia(ctx context.Context, handle *inference.MediaHandle) error {
	f.deleted = true
	return nil
}

func testInferenceConfig() config.InferenceConfig {
	return config.InferenceConfig{
		PollInterval:     0,
		PollTimeout:      2,
		SettleDelay:      0,
		MaxAttempts:      3,
		RetryDelay:       0,
		RateLimitDelay:   0,
		ReleaseThreshold: 70,
	}
}

func testInput() Input {
	return Input{
		VideoPath:   "/nonexistent/evidence.mp4",
		Criteria:    "Foundation completed",
		Latitude:    6.5244,
		Longitude:   3.3792,
		ToleranceKm: 1.0,
	}
}

func TestVerifySuccess(t *testing.T) {
	backend := &fakeInference{
		inferOut: `{"verified": true, "confidence_score": 92, "reasoning": "Foundation visible."}`,
	}
	engine := NewEngine(backend, testInferenceConfig())

	verdict, err := engine.Verify(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !verdict.Verified || verdict.Confidence != 92 {
		t.Errorf("Unexpected verdict: %+v", verdict)
	}
	if !backend.deleted {
		t.Error("Remote artifact must be cleaned up after success")
	}
}

func TestVerifyGeofenceShortCircuit(t *testing.T) {
	backend := &fakeInference{
		inferOut: `{"verified": true, "confidence_score": 95, "reasoning": "Looks done."}`,
	}
	engine := NewEngine(backend, testInferenceConfig())
	// 证据GPS在项目点以北约2公里，超出1公里容差
	engine.locate = func(path string) (float64, float64, bool) {
		return 6.5424, 3.3792, true
	}

	verdict, err := engine.Verify(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if verdict.Verified {
		t.Error("Out-of-tolerance evidence must not verify")
	}
	if verdict.Confidence != 0 {
		t.Errorf("Location-fraud verdict must carry confidence 0, got %d", verdict.Confidence)
	}
	if backend.uploadCalls != 0 || backend.inferCalls != 0 {
		t.Errorf("Geofence rejection must bypass inference entirely, uploads=%d infers=%d",
			backend.uploadCalls, backend.inferCalls)
	}
}

func TestVerifyGeofenceWithinTolerance(t *testing.T) {
	backend := &fakeInference{
		inferOut: `{"verified": true, "confidence_score": 88, "reasoning": "Foundation visible."}`,
	}
	engine := NewEngine(backend, testInferenceConfig())
	// 证据GPS在项目点约500米内，容差之内照常推理
	engine.locate = func(path string) (float64, float64, bool) {
		return 6.5289, 3.3792, true
	}

	verdict, err := engine.Verify(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !verdict.Verified {
		t.Error("In-tolerance evidence must proceed to inference and verify")
	}
	if backend.uploadCalls != 1 {
		t.Errorf("Expected 1 upload, got %d", backend.uploadCalls)
	}
}

func TestVerifyEmptyCriteria(t *testing.T) {
	engine := NewEngine(&fakeInference{}, testInferenceConfig())

	in := testInput()
	in.Criteria = ""
	if _, err := engine.Verify(context.Background(), in); err == nil {
		t.Fatal("Expected error for empty criteria")
	}
}

func TestVerifyUploadFailure(t *testing.T) {
	backend := &fakeInference{uploadErr: errors.New("upload refused")}
	engine := NewEngine(backend, testInferenceConfig())

	if _, err := engine.Verify(context.Background(), testInput()); err == nil {
		t.Fatal("Expected error when upload fails")
	}
}

func TestVerifyProcessingFailed(t *testing.T) {
	backend := &fakeInference{
		pollStates: []inference.FileState{inference.FileStateFailed},
	}
	engine := NewEngine(backend, testInferenceConfig())

	if _, err := engine.Verify(context.Background(), testInput()); err == nil {
		t.Fatal("Expected error when media processing fails")
	}
	if !backend.deleted {
		t.Error("Remote artifact must be cleaned up after processing failure")
	}
}

func TestVerifyRetriesExhausted(t *testing.T) {
	backend := &fakeInference{inferErr: errors.New("backend down")}
	engine := NewEngine(backend, testInferenceConfig())

	verdict, err := engine.Verify(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Exhausted retries must yield a verdict, not an error: %v", err)
	}
	if verdict.Verified {
		t.Error("Error verdict must not be verified")
	}
	if verdict.Confidence != 0 {
		t.Errorf("Expected confidence 0, got %d", verdict.Confidence)
	}
	if backend.inferCalls != 3 {
		t.Errorf("Expected 3 inference attempts, got %d", backend.inferCalls)
	}
	if !backend.deleted {
		t.Error("Remote artifact must be cleaned up after retry exhaustion")
	}
}

func TestVerifyWaitsForProcessing(t *testing.T) {
	backend := &fakeInference{
		pollStates: []inference.FileState{
			inference.FileStateProcessing,
			inference.FileStateProcessing,
			inference.FileStateActive,
		},
		inferOut: `{"verified": false, "confidence_score": 10, "reasoning": "Empty site."}`,
	}
	engine := NewEngine(backend, testInferenceConfig())

	verdict, err := engine.Verify(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if backend.pollCalls != 3 {
		t.Errorf("Expected 3 poll calls, got %d", backend.pollCalls)
	}
	if verdict.Verified {
		t.Error("Expected verified=false")
	}
}

func TestVerifyDegradedOutput(t *testing.T) {
	backend := &fakeInference{
		inferOut: "The milestone looks complete, this can be approved.",
	}
	engine := NewEngine(backend, testInferenceConfig())

	verdict, err := engine.Verify(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !verdict.Degraded {
		t.Error("Non-JSON output must yield a degraded verdict")
	}
	if verdict.Confidence != degradedConfidence {
		t.Errorf("Expected degraded confidence %d, got %d", degradedConfidence, verdict.Confidence)
	}
}
