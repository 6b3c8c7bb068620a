package manager

import (
	"context"

	"rkllmd/pkg/types"
)

// InferenceAdapter abstracts the model runtime used by the Manager.
// The production implementation drives the rkllm NPU runtime (adapter_npu.go);
// tests substitute scripted fakes.
type InferenceAdapter interface {
	// Start loads the model at modelPath and returns a live session. The
	// session owns the native instance until Close.
	Start(modelPath string, params InferParams) (InferSession, error)
}

// InferSession is one loaded model context. Sessions are reused across
// requests; the manager serializes Generate calls per instance through
// admission.
type InferSession interface {
	// Generate streams tokens for the given request. The onToken callback is
	// invoked per token in arrival order. Implementations must return when
	// the context is canceled.
	Generate(ctx context.Context, req GenerateRequest, onToken func(Token) error) (FinalResult, error)
	// Close releases the native instance.
	Close() error
}

// kvReporter is optionally implemented by sessions that can report their
// key/value cache occupancy for status.
type kvReporter interface {
	KVCacheTokens() uint64
}

// InferParams captures instance-level parameters fixed at load time.
type InferParams struct {
	Temperature   float32
	TopP          float32
	TopK          int
	MaxTokens     int
	MaxContextLen int
	RepeatPenalty float32
	// CallPath preference passed through to the interop layer
	// ("auto", "compiled-ext", "dynamic-lib").
	CallPath string
}

// GenerateRequest captures per-call parameters.
type GenerateRequest struct {
	Prompt         string
	Role           string
	KeepHistory    bool
	EnableThinking bool
	// Adapters selects previously loaded LoRA adapters by name.
	Adapters []string
}

// Token is one streamed increment.
type Token struct {
	Text string
	ID   int32
}

// FinalResult summarizes the generation after streaming.
type FinalResult struct {
	Content      string
	Usage        types.Usage
	FinishReason string
}
