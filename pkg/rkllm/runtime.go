package rkllm

// nativeRuntime is the call-path abstraction over the vendor function set.
// Implementations exist per call path (runtime_cgo.go, runtime_dl.go) plus a
// scripted stub in the tests; business logic never branches on the path.
//
// Status codes are the vendor's, passed through verbatim: 0 is success,
// anything else a failure. isRunning is the exception: it reports 1 when a
// call is in flight on the handle, 0 when idle, negative on failure.
//
// The result callback is not part of this interface: each call path
// registers its own native thunk that funnels every invocation into
// deliverCallback (stream.go), keyed by the per-call token.
type nativeRuntime interface {
	init(param *abiParam) (handle uintptr, status int32)
	run(h uintptr, in *abiInput, ip *abiInferParam, token uintptr) int32
	runAsync(h uintptr, in *abiInput, ip *abiInferParam, token uintptr) int32
	abort(h uintptr) int32
	isRunning(h uintptr) int32
	destroy(h uintptr) int32
	loadLora(h uintptr, ad *abiLoraAdapter) int32
	loadPromptCache(h uintptr, path uintptr) int32
	releasePromptCache(h uintptr) int32
	clearKVCache(h uintptr, keepSystemPrompt int32) int32
	getKVCacheSize(h uintptr, size *uint64) int32
	setChatTemplate(h, system, prefix, postfix uintptr) int32
	setFunctionTools(h, system, tools, toolResponse uintptr) int32
	setCrossAttnParams(h uintptr, p *abiCrossAttnParam) int32
}

// newNativeRuntime returns the implementation for the resolved call path.
func newNativeRuntime(p CallPath) (nativeRuntime, error) {
	switch p {
	case PathCompiledExt:
		return newCompiledRuntime()
	case PathDynamicLib:
		return newDynamicRuntime()
	default:
		return nil, ErrCapability("no call path selected")
	}
}
