package types

// InferRequest represents an inference request payload.
type InferRequest struct {
	// Optional model identifier. If empty, the server default is used.
	// example: qwen2.5-1.5b-w8a8
	Model string `json:"model,omitempty" example:"qwen2.5-1.5b-w8a8"`
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Optional chat role applied to the prompt (user, system, tool).
	// example: user
	Role string `json:"role,omitempty" example:"user"`
	// If true, stream results as NDJSON tokens. When false, the server may still stream internally but buffer.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Repeat penalty applied by the runtime sampler.
	// example: 1.1
	RepeatPenalty float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Keep conversation state inside the runtime across calls.
	// example: true
	KeepHistory bool `json:"keep_history,omitempty" example:"true"`
	// Enable the model's thinking mode, when the model supports it.
	// example: false
	EnableThinking bool `json:"enable_thinking,omitempty" example:"false"`
	// Names of previously loaded LoRA adapters to apply to this call.
	// example: ["style-formal"]
	Adapters []string `json:"adapters,omitempty" example:"[\"style-formal\"]"`
}

// TokenEvent is one NDJSON line of a streamed inference response.
type TokenEvent struct {
	// Incremental token text.
	// example: Hello
	Token string `json:"token,omitempty" example:"Hello"`
	// Vendor token id for the increment.
	// example: 9707
	TokenID int32 `json:"token_id,omitempty" example:"9707"`
	// True on the final line of the stream.
	// example: false
	Done bool `json:"done,omitempty" example:"false"`
	// Full accumulated content, only on the final line.
	Content string `json:"content,omitempty"`
	// Why generation stopped (stop, error, aborted). Final line only.
	// example: stop
	FinishReason string `json:"finish_reason,omitempty" example:"stop"`
	// Runtime performance counters. Final line only.
	Usage *Usage `json:"usage,omitempty"`
	// Error message when the stream ended in an error.
	Error string `json:"error,omitempty"`
}

// Usage carries the NPU runtime's performance counters for one call.
type Usage struct {
	// Tokens consumed during prefill.
	// example: 24
	PrefillTokens int32 `json:"prefill_tokens" example:"24"`
	// Prefill wall time in milliseconds.
	// example: 310.5
	PrefillTimeMS float32 `json:"prefill_time_ms" example:"310.5"`
	// Tokens generated.
	// example: 128
	GenerateTokens int32 `json:"generate_tokens" example:"128"`
	// Generation wall time in milliseconds.
	// example: 5120.0
	GenerateTimeMS float32 `json:"generate_time_ms" example:"5120.0"`
	// Peak memory usage in MB as reported by the runtime.
	// example: 1840.2
	MemoryUsageMB float32 `json:"memory_usage_mb" example:"1840.2"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// InstanceStatus summarizes a loaded instance for /status.
type InstanceStatus struct {
	// ID of the model this instance serves.
	// example: qwen2.5-1.5b-w8a8
	ModelID string `json:"model_id" example:"qwen2.5-1.5b-w8a8"`
	// Current lifecycle state of the instance (e.g., unloaded, loading, ready).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last time this instance served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Estimated runtime memory usage in MB.
	// example: 1840
	EstMemMB int `json:"est_mem_mb" example:"1840"`
	// Current queue length for incoming requests.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Number of in-flight requests currently being processed.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Interop call path this instance was initialized on.
	// example: dynamic-lib
	CallPath string `json:"call_path,omitempty" example:"dynamic-lib"`
	// Current key/value cache size in tokens.
	// example: 512
	KVCacheTokens uint64 `json:"kv_cache_tokens,omitempty" example:"512"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded/managed instances.
	Instances []InstanceStatus `json:"instances"`
	// Memory budget in MB across all instances.
	// example: 8192
	BudgetMB int `json:"budget_mb" example:"8192"`
	// Estimated used memory in MB.
	// example: 2048
	UsedMB int `json:"used_est_mb" example:"2048"`
	// Reserved memory margin in MB.
	// example: 512
	MarginMB int `json:"margin_mb" example:"512"`
	// Optional top-level error message.
	Error string `json:"error,omitempty"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of evictions performed to free memory.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total number of model loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Overall manager state (e.g., loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Number of instances currently warming up (loading).
	// example: 1
	WarmupsInProgress int `json:"warmups_in_progress" example:"1"`
	// Number of instances currently draining (unload in progress).
	// example: 1
	DrainingCount int `json:"draining_count" example:"1"`
}

// CapabilityResponse is returned by GET /capability and reports which native
// call paths this process can use.
type CapabilityResponse struct {
	// True when the cgo extension was compiled in.
	// example: false
	CompiledExt bool `json:"compiled_ext" example:"false"`
	// True when this OS/arch can load the vendor library at runtime.
	// example: true
	DynamicLib bool `json:"dynamic_lib" example:"true"`
	// Call path the process has selected, if any.
	// example: dynamic-lib
	Selected string `json:"selected,omitempty" example:"dynamic-lib"`
	// Host runtime name.
	// example: gc
	RuntimeName string `json:"runtime_name" example:"gc"`
	// Host runtime version.
	// example: go1.24.1
	RuntimeVersion string `json:"runtime_version" example:"go1.24.1"`
	// Host operating system.
	// example: linux
	OS string `json:"os" example:"linux"`
	// Host architecture.
	// example: arm64
	Arch string `json:"arch" example:"arm64"`
}
