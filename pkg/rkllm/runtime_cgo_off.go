//go:build !rkllm

package rkllm

// Compiled when the 'rkllm' build tag is NOT set, keeping default builds
// and CI CGO-free. The real call path lives in runtime_cgo.go. No mocked
// behavior: initialization on this path fails fast with a capability error.

func newCompiledRuntime() (nativeRuntime, error) {
	return nil, ErrCapability("compiled extension not built (missing 'rkllm' build tag)")
}
