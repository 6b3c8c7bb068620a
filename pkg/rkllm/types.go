package rkllm

// RuntimeConfig holds every tunable for one native runtime instance. It is
// built fresh per Init attempt, marshalled once, and not retained afterward.
// Only presence of required fields is checked here; numeric ranges are the
// vendor runtime's own validation to enforce.
type RuntimeConfig struct {
	// ModelPath is the absolute path of the .rkllm model file. Required.
	ModelPath string

	MaxContextLen int32
	MaxNewTokens  int32

	TopK             int32
	NKeep            int32
	TopP             float32
	Temperature      float32
	RepeatPenalty    float32
	FrequencyPenalty float32
	PresencePenalty  float32
	Mirostat         int32
	MirostatTau      float32
	MirostatEta      float32

	SkipSpecialToken bool

	// Multimodal prompt markers; empty when the model is text-only.
	ImgStart   string
	ImgEnd     string
	ImgContent string

	Extend ExtendConfig
}

// ExtendConfig is the nested extended-configuration record.
type ExtendConfig struct {
	BaseDomainID   int32
	EmbedFlash     bool
	EnabledCPUSNum int8
	EnabledCPUSMask uint32
	BatchSize      uint8
	UseCrossAttn   bool
}

// InputType discriminates the Input union.
type InputType int32

const (
	InputPrompt InputType = iota
	InputTokens
	InputEmbedding
	InputMultimodal
)

func (t InputType) String() string {
	switch t {
	case InputPrompt:
		return "prompt"
	case InputTokens:
		return "tokens"
	case InputEmbedding:
		return "embedding"
	case InputMultimodal:
		return "multimodal"
	default:
		return "unknown"
	}
}

// Input is a tagged union over the four native input variants. Exactly one
// payload matching Type may be populated; numeric-buffer variants carry a
// declared element count that must equal the buffer length.
type Input struct {
	Type InputType

	Role           string
	EnableThinking bool

	// InputPrompt
	Prompt string

	// InputTokens
	Tokens     []int32
	TokenCount int

	// InputEmbedding
	Embedding  []float32
	EmbedCount int

	// InputMultimodal
	Multimodal *MultimodalInput
}

// MultimodalInput bundles a text prompt with precomputed image embeddings.
type MultimodalInput struct {
	Prompt          string
	ImageEmbed      []float32
	ImageEmbedCount int
	ImageCount      int
	ImageWidth      int
	ImageHeight     int
}

// InferMode selects what the runtime returns per call.
type InferMode int32

const (
	InferGenerate InferMode = iota
	InferGetLastHiddenLayer
	InferGetLogits
)

// InferParams configures one run/runAsync call.
type InferParams struct {
	Mode InferMode
	// Adapters selects previously loaded LoRA adapters by name.
	Adapters []string
	// PromptCache, when set, persists or reuses the prompt cache on disk.
	PromptCache *PromptCacheParams
	// KeepHistory retains conversation state inside the runtime across calls.
	KeepHistory bool
}

// PromptCacheParams describes prompt-cache persistence for a call. The path
// format on disk is owned by the vendor runtime.
type PromptCacheParams struct {
	Path string
	Save bool
}

// LoraAdapter describes an adapter file to load into a live instance.
type LoraAdapter struct {
	Path  string
	Name  string
	Scale float32
}

// CrossAttnParams carries precomputed encoder caches for cross-attention.
// MaskCount declares the element count of Mask and must equal its length.
type CrossAttnParams struct {
	EncoderKCache []float32
	EncoderVCache []float32
	Mask          []float32
	MaskCount     int
	NumTokens     int32
}

// CallState is the per-callback state discriminant delivered by the runtime.
type CallState int32

const (
	CallNormal CallState = iota
	CallWaiting
	CallFinish
	CallError
)

func (s CallState) String() string {
	switch s {
	case CallNormal:
		return "normal"
	case CallWaiting:
		return "waiting"
	case CallFinish:
		return "finish"
	case CallError:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether no further callbacks follow this state.
func (s CallState) Terminal() bool { return s == CallFinish || s == CallError }

// Result is synthesized per callback invocation and forwarded immediately;
// accumulation is the caller's responsibility.
type Result struct {
	State   CallState
	Text    string
	TokenID int32

	// Populated for InferGetLastHiddenLayer / InferGetLogits modes.
	HiddenLayer *HiddenLayerTensor
	Logits      *LogitsTensor

	Perf PerfStats

	// Err is set when State is CallError. A host-raised stream fault
	// satisfies IsStreamFault; a vendor-reported error carries nil Err
	// (the native runtime reports no detail beyond the state).
	Err error
}

// HiddenLayerTensor is the last hidden layer, flattened row-major.
type HiddenLayerTensor struct {
	States    []float32
	EmbdSize  int32
	NumTokens int32
}

// LogitsTensor is the logits tensor, flattened row-major.
type LogitsTensor struct {
	Logits    []float32
	VocabSize int32
	NumTokens int32
}

// PerfStats are the vendor-reported performance counters.
type PerfStats struct {
	PrefillTokens  int32
	PrefillTimeMS  float32
	GenerateTokens int32
	GenerateTimeMS float32
	MemoryUsageMB  float32
}

// Completion aggregates a finished (non-streaming) call.
type Completion struct {
	Text        string
	HiddenLayer *HiddenLayerTensor
	Logits      *LogitsTensor
	Perf        PerfStats
	// FinishState is CallFinish, or CallError when the stream ended in an
	// error (Run also returns the error in that case).
	FinishState CallState
}
