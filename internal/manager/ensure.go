package manager

import (
	"context"
	"log"
	"time"

	"rkllmd/pkg/rkllm"
)

// EnsureInstance ensures a model instance is loaded into the NPU runtime and
// marked ready according to current resource budgeting and readiness state.
func (m *Manager) EnsureInstance(ctx context.Context, modelID string) error {
	startTs := time.Now()
	if modelID == "" {
		// If unspecified, use default if present; else no-op for now
		modelID = m.defaultModel
		if modelID == "" {
			return nil
		}
	}
	log.Printf("manager event=ensure_start model=%q", modelID)
	m.publisher.Publish(Event{Name: "ensure_start", ModelID: modelID, Fields: map[string]any{}})

	m.mu.RLock()
	inst, ok := m.instances[modelID]
	ready := ok && inst != nil && inst.State == StateReady
	m.mu.RUnlock()
	if ready {
		// Upgrade to write lock to safely mutate LastUsed and re-check state
		m.mu.Lock()
		if inst2, ok2 := m.instances[modelID]; ok2 && inst2 != nil && inst2.State == StateReady {
			inst2.LastUsed = time.Now()
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		// If state changed in between, continue with ensure path
	}

	// Resolve model from registry
	mdl, ok := m.getModelByID(modelID)
	if !ok {
		log.Printf("manager event=ensure_model_not_found model=%q", modelID)
		m.publisher.Publish(Event{Name: "ensure_model_not_found", ModelID: modelID, Fields: map[string]any{}})
		return ErrModelNotFound(modelID)
	}
	reqMB := m.estimateMemMB(mdl)

	// Evict until it fits budget + margin, if budget configured
	if m.budgetMB > 0 {
		if err := m.evictUntilFits(reqMB); err != nil {
			log.Printf("manager event=ensure_budget_fail model=%q err=%v", modelID, err)
			m.publisher.Publish(Event{Name: "ensure_budget_fail", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
			return err
		}
	}

	// Perform per-instance load state transition
	m.mu.Lock()
	m.state = StateLoading
	m.err = ""
	inst, existed := m.instances[modelID]
	addedNow := false
	seeded := false
	if !existed || inst == nil {
		inst = &Instance{
			ID:       modelID,
			State:    StateLoading,
			LastUsed: time.Now(),
			EstMemMB: reqMB,
			genCh:    make(chan struct{}, 1),
			queueCh:  make(chan struct{}, m.maxQueueDepth),
		}
		// Seed LastUsed from persisted LRU metadata so restored instances
		// keep their historical recency for eviction ordering.
		if rec, ok := m.lruMeta[modelID]; ok && rec.LastUsedUnix > 0 {
			inst.LastUsed = time.Unix(rec.LastUsedUnix, 0)
			seeded = true
		}
		m.instances[modelID] = inst
		addedNow = true
	} else {
		inst.State = StateLoading
		inst.EstMemMB = reqMB
		inst.LastUsed = time.Now()
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		m.mu.Lock()
		m.state = StateError
		m.err = err.Error()
		m.mu.Unlock()
		return err
	}

	// Load the model into the runtime if this instance has no session yet.
	// loadMu is held across the start so a concurrent ensure of the same
	// model waits here instead of starting a second native instance.
	inst.loadMu.Lock()
	m.mu.RLock()
	loaded := inst.sess != nil
	m.mu.RUnlock()
	if !loaded {
		sess, err := m.adapter.Start(mdl.Path, m.loadParams)
		if err != nil {
			inst.loadMu.Unlock()
			m.mu.Lock()
			m.state = StateError
			m.err = err.Error()
			if addedNow {
				delete(m.instances, modelID)
			}
			m.mu.Unlock()
			log.Printf("manager event=ensure_load_error model=%q err=%v", modelID, err)
			m.publisher.Publish(Event{Name: "ensure_load_error", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
			return err
		}
		m.mu.Lock()
		inst.sess = sess
		inst.CallPath = sessionCallPath(sess)
		m.mu.Unlock()
		m.loadsTotal.Add(1)
	}
	inst.loadMu.Unlock()

	// Commit instance as ready after load
	m.mu.Lock()
	if addedNow {
		// Only add to used estimate when we actually added a new instance
		m.usedEstMB += reqMB
	}
	inst.State = StateReady
	if !seeded {
		inst.LastUsed = time.Now()
	}
	m.cur = &ModelInfo{ID: modelID, Name: mdl.Name, Path: mdl.Path, Quant: mdl.Quant, Family: mdl.Family}
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	log.Printf("manager event=ensure_ready model=%q dur_ms=%d", modelID, time.Since(startTs)/time.Millisecond)
	m.publisher.Publish(Event{Name: "ensure_ready", ModelID: modelID, Fields: map[string]any{"dur_ms": int(time.Since(startTs) / time.Millisecond)}})
	return nil
}

// sessionCallPath reports the interop path a session runs on, when known.
func sessionCallPath(s InferSession) string {
	type pathReporter interface{ Path() rkllm.CallPath }
	if pr, ok := s.(pathReporter); ok {
		return pr.Path().String()
	}
	return ""
}
