package manager

import (
	"sync"
	"time"
)

// State represents lifecycle state of the manager/instances.
type State string

const (
	StateReady    State = "ready"
	StateLoading  State = "loading"
	StateDraining State = "draining"
	StateError    State = "error"
)

// ModelInfo is a minimal view of the current model.
type ModelInfo struct {
	ID     string
	Name   string
	Path   string
	Quant  string
	Family string
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Err          string
}

// Instance represents a live model context (one per model id).
type Instance struct {
	ID       string
	State    State
	LastUsed time.Time
	EstMemMB int
	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots
	// Session backing this instance; owns the loaded native model.
	// loadMu serializes session starts so concurrent ensures of the same
	// model never load a second native instance.
	loadMu sync.Mutex
	sess   InferSession
	// CallPath the session was initialized on, for status visibility.
	CallPath string
}
