package manager

import (
	"time"

	"rkllmd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 5 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry      []types.Model
	BudgetMB      int
	MarginMB      int
	DefaultModel  string
	MaxQueueDepth int
	MaxWait       time.Duration
	DrainTimeout  time.Duration
	// LRUStatePath, when set, persists instance LRU metadata across restarts.
	LRUStatePath string
	// NPU runtime configuration (no envs; set by callers).
	CallPath      string
	MaxContextLen int
	MaxNewTokens  int
	Temperature   float32
	TopK          int
	TopP          float32
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:        StateLoading,
		registry:     cfg.Registry,
		budgetMB:     cfg.BudgetMB,
		marginMB:     cfg.MarginMB,
		defaultModel: cfg.DefaultModel,
		instances:    make(map[string]*Instance),
		publisher:    noopPublisher{},
		lruPath:      cfg.LRUStatePath,
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	// Instance-level runtime parameters applied at every model load.
	m.loadParams = InferParams{
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		TopK:          cfg.TopK,
		MaxTokens:     cfg.MaxNewTokens,
		MaxContextLen: cfg.MaxContextLen,
		CallPath:      cfg.CallPath,
	}
	// Initialize the in-process NPU adapter by default.
	m.adapter = NewNPUAdapter()
	m.startTime = time.Now()
	m.loadLRUMetadata()
	return m
}
