package manager

import (
	"path/filepath"
	"testing"
	"time"

	"rkllmd/pkg/types"
)

func TestSwitchUnknownModel(t *testing.T) {
	m := newTestManager(t, ManagerConfig{}, &fakeAdapter{})
	if _, err := m.Switch(testCtx(t), "missing.rkllm"); !IsModelNotFound(err) {
		t.Fatalf("expected model-not-found, got %v", err)
	}
}

func TestSwitchLoadsInBackground(t *testing.T) {
	dir := t.TempDir()
	createModelFile(t, dir, "a.rkllm", 1)
	reg := []types.Model{{ID: "a.rkllm", Name: "a", Path: filepath.Join(dir, "a.rkllm")}}
	fa := &fakeAdapter{}
	m := newTestManager(t, ManagerConfig{Registry: reg}, fa)
	defer m.Close()

	op, err := m.Switch(testCtx(t), "a.rkllm")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if op == "" {
		t.Fatalf("expected an operation id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for !m.Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("instance never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if fa.startCount() != 1 {
		t.Fatalf("expected one session start, got %d", fa.startCount())
	}
}
