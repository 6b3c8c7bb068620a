package manager

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"rkllmd/pkg/types"
)

type Manager struct {
	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	err          string
	registry     []types.Model
	budgetMB     int
	marginMB     int
	defaultModel string
	// Multi-instance fields
	instances map[string]*Instance
	usedEstMB int

	// Queue config
	maxQueueDepth int
	maxWait       time.Duration
	drainTimeout  time.Duration

	// Runtime adapter and load-time parameters
	adapter    InferenceAdapter
	loadParams InferParams

	publisher EventPublisher
	startTime time.Time

	// Counters for status reporting
	evictionsTotal atomic.Uint64
	loadsTotal     atomic.Uint64
	opSeq          atomic.Uint64

	// LRU persistence
	lruPath string
	lruMeta map[string]lruRecord
}

func New(reg []types.Model, budgetMB, marginMB int, defaultModel string) *Manager {
	// Delegate to NewWithConfig to centralize defaults and option parsing
	return NewWithConfig(ManagerConfig{
		Registry:     reg,
		BudgetMB:     budgetMB,
		MarginMB:     marginMB,
		DefaultModel: defaultModel,
	})
}

// SetInferenceAdapter replaces the runtime adapter. Intended for tests and
// must be called before any EnsureInstance.
func (m *Manager) SetInferenceAdapter(a InferenceAdapter) { m.adapter = a }

// SetEventPublisher replaces the event sink. A nil publisher drops events.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.publisher = p
}

func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateError {
		return false
	}
	// Ready if any instance is ready
	for _, inst := range m.instances {
		if inst.State == StateReady {
			return true
		}
	}
	// Fallback to legacy notion
	return m.state == StateReady && m.cur != nil
}

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// DefaultModel returns the configured default model id.
func (m *Manager) DefaultModel() string { return m.defaultModel }

// Close drains and unloads every instance. Used for graceful shutdown.
func (m *Manager) Close() error {
	// Persist LRU metadata before the instances disappear.
	m.saveLRUMetadata()
	m.mu.RLock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	var first error
	for _, id := range ids {
		if err := m.Unload(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manager) nextOpID() string {
	return "op-" + strconv.FormatUint(m.opSeq.Add(1), 10)
}
