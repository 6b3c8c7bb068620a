package manager

import (
	"testing"
	"time"

	"rkllmd/pkg/types"
)

func TestUnloadRemovesInstance(t *testing.T) {
	dir := t.TempDir()
	p := createModelFile(t, dir, "m.rkllm", 2)
	a := &fakeAdapter{}
	m := newTestManager(t, ManagerConfig{
		Registry:     []types.Model{{ID: "m", Path: p}},
		DrainTimeout: 100 * time.Millisecond,
	}, a)
	if err := m.EnsureInstance(testCtx(t), "m"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := m.Unload("m"); err != nil {
		t.Fatalf("unload: %v", err)
	}
	st := m.Status()
	if len(st.Instances) != 0 {
		t.Fatalf("instance not removed: %+v", st.Instances)
	}
	if st.UsedMB != 0 {
		t.Fatalf("used estimate not released: %d", st.UsedMB)
	}
	if a.closeCount() != 1 {
		t.Fatalf("session not closed on unload: %d", a.closeCount())
	}
}

func TestUnloadUnknownModel(t *testing.T) {
	m := NewWithConfig(ManagerConfig{})
	if err := m.Unload("ghost"); err == nil || !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
	if err := m.Unload(""); err == nil || !IsModelNotFound(err) {
		t.Fatalf("expected model not found for empty id, got %v", err)
	}
}
