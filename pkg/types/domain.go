package types

// Model represents a discoverable or loadable .rkllm model on disk.
type Model struct {
	// Stable identifier for the model.
	// example: qwen2.5-1.5b-w8a8
	ID string `json:"id" example:"qwen2.5-1.5b-w8a8"`
	// Human-friendly name.
	// example: Qwen2.5 1.5B (w8a8)
	Name string `json:"name" example:"Qwen2.5 1.5B (w8a8)"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/Qwen2.5-1.5B-w8a8.rkllm
	Path string `json:"path" example:"/home/user/models/Qwen2.5-1.5B-w8a8.rkllm"`
	// Quantization variant string.
	// example: w8a8
	Quant string `json:"quant" example:"w8a8"`
	// Optional family (e.g., qwen, llama, deepseek).
	// example: qwen
	Family string `json:"family,omitempty" example:"qwen"`
	// Model file size in bytes, used for memory admission estimates.
	// example: 1610612736
	SizeBytes int64 `json:"size_bytes,omitempty" example:"1610612736"`
}
