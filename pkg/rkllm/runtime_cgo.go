//go:build rkllm

package rkllm

// The compiled-extension call path, enabled with `-tags=rkllm`. Forward
// declarations stand in for the vendor header so only the shared library is
// needed at link time; the rkllmd_init shim exists to pass the exported Go
// callback as the C function pointer.

/*
#cgo LDFLAGS: -lrkllmrt
#include <stdint.h>

typedef void* LLMHandle;
typedef int (*LLMResultCallback)(void* result, void* userdata, int state);

extern int rkllm_init(LLMHandle* handle, void* param, LLMResultCallback callback);
extern int rkllm_run(LLMHandle handle, void* input, void* infer_params, void* userdata);
extern int rkllm_run_async(LLMHandle handle, void* input, void* infer_params, void* userdata);
extern int rkllm_abort(LLMHandle handle);
extern int rkllm_is_running(LLMHandle handle);
extern int rkllm_destroy(LLMHandle handle);
extern int rkllm_load_lora(LLMHandle handle, void* lora_adapter);
extern int rkllm_load_prompt_cache(LLMHandle handle, const char* path);
extern int rkllm_release_prompt_cache(LLMHandle handle);
extern int rkllm_clear_kv_cache(LLMHandle handle, int keep_system_prompt);
extern int rkllm_get_kv_cache_size(LLMHandle handle, uint64_t* size);
extern int rkllm_set_chat_template(LLMHandle handle, const char* system_prompt, const char* prompt_prefix, const char* prompt_postfix);
extern int rkllm_set_function_tools(LLMHandle handle, const char* system_prompt, const char* tools, const char* tool_response_str);
extern int rkllm_set_cross_attn_params(LLMHandle handle, void* params);

extern int goRKLLMCallback(void* result, void* userdata, int state);

int rkllmd_init(LLMHandle* handle, void* param) {
	return rkllm_init(handle, param, (LLMResultCallback)goRKLLMCallback);
}
*/
import "C"
import "unsafe"

func init() { compiledExtBuilt = true }

// compiledRuntime is the compiled-extension call path.
type compiledRuntime struct{}

func newCompiledRuntime() (nativeRuntime, error) {
	return compiledRuntime{}, nil
}

func (compiledRuntime) init(param *abiParam) (uintptr, int32) {
	var h C.LLMHandle
	status := C.rkllmd_init(&h, unsafe.Pointer(param))
	return uintptr(h), int32(status)
}

func (compiledRuntime) run(h uintptr, in *abiInput, ip *abiInferParam, token uintptr) int32 {
	return int32(C.rkllm_run(C.LLMHandle(h), unsafe.Pointer(in), unsafe.Pointer(ip), unsafe.Pointer(token)))
}

func (compiledRuntime) runAsync(h uintptr, in *abiInput, ip *abiInferParam, token uintptr) int32 {
	return int32(C.rkllm_run_async(C.LLMHandle(h), unsafe.Pointer(in), unsafe.Pointer(ip), unsafe.Pointer(token)))
}

func (compiledRuntime) abort(h uintptr) int32 {
	return int32(C.rkllm_abort(C.LLMHandle(h)))
}

func (compiledRuntime) isRunning(h uintptr) int32 {
	return int32(C.rkllm_is_running(C.LLMHandle(h)))
}

func (compiledRuntime) destroy(h uintptr) int32 {
	return int32(C.rkllm_destroy(C.LLMHandle(h)))
}

func (compiledRuntime) loadLora(h uintptr, ad *abiLoraAdapter) int32 {
	return int32(C.rkllm_load_lora(C.LLMHandle(h), unsafe.Pointer(ad)))
}

func (compiledRuntime) loadPromptCache(h uintptr, path uintptr) int32 {
	return int32(C.rkllm_load_prompt_cache(C.LLMHandle(h), (*C.char)(unsafe.Pointer(path))))
}

func (compiledRuntime) releasePromptCache(h uintptr) int32 {
	return int32(C.rkllm_release_prompt_cache(C.LLMHandle(h)))
}

func (compiledRuntime) clearKVCache(h uintptr, keepSystemPrompt int32) int32 {
	return int32(C.rkllm_clear_kv_cache(C.LLMHandle(h), C.int(keepSystemPrompt)))
}

func (compiledRuntime) getKVCacheSize(h uintptr, size *uint64) int32 {
	return int32(C.rkllm_get_kv_cache_size(C.LLMHandle(h), (*C.uint64_t)(unsafe.Pointer(size))))
}

func (compiledRuntime) setChatTemplate(h, system, prefix, postfix uintptr) int32 {
	return int32(C.rkllm_set_chat_template(C.LLMHandle(h),
		(*C.char)(unsafe.Pointer(system)), (*C.char)(unsafe.Pointer(prefix)), (*C.char)(unsafe.Pointer(postfix))))
}

func (compiledRuntime) setFunctionTools(h, system, tools, toolResponse uintptr) int32 {
	return int32(C.rkllm_set_function_tools(C.LLMHandle(h),
		(*C.char)(unsafe.Pointer(system)), (*C.char)(unsafe.Pointer(tools)), (*C.char)(unsafe.Pointer(toolResponse))))
}

func (compiledRuntime) setCrossAttnParams(h uintptr, p *abiCrossAttnParam) int32 {
	return int32(C.rkllm_set_cross_attn_params(C.LLMHandle(h), unsafe.Pointer(p)))
}
