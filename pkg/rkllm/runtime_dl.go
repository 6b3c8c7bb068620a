//go:build linux && (amd64 || arm64)

package rkllm

import (
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

func init() { dynamicLibSupported = true }

// libraryCandidates returns the paths tried for librkllmrt, in order.
// RKLLM_LIB_PATH overrides discovery; the bare soname comes last so the
// system loader's own search path still applies.
func libraryCandidates() []string {
	if p := os.Getenv("RKLLM_LIB_PATH"); p != "" {
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			return []string{filepath.Join(p, "librkllmrt.so")}
		}
		return []string{p}
	}
	return []string{
		"/usr/lib/librkllmrt.so",
		"/usr/local/lib/librkllmrt.so",
		"/vendor/lib64/librkllmrt.so",
		"librkllmrt.so",
	}
}

// Symbols resolved once, on first dynamic-path initialization.
var (
	dlOnce sync.Once
	dlErr  error

	// dlCallback is the native thunk handed to rkllm_init; every
	// invocation funnels into deliverCallback keyed by the userdata token.
	dlCallback uintptr

	fnInit               func(handle *uintptr, param *abiParam, callback uintptr) int32
	fnRun                func(handle uintptr, in *abiInput, ip *abiInferParam, userdata uintptr) int32
	fnRunAsync           func(handle uintptr, in *abiInput, ip *abiInferParam, userdata uintptr) int32
	fnAbort              func(handle uintptr) int32
	fnIsRunning          func(handle uintptr) int32
	fnDestroy            func(handle uintptr) int32
	fnLoadLora           func(handle uintptr, ad *abiLoraAdapter) int32
	fnLoadPromptCache    func(handle uintptr, path uintptr) int32
	fnReleasePromptCache func(handle uintptr) int32
	fnClearKVCache       func(handle uintptr, keepSystemPrompt int32) int32
	fnGetKVCacheSize     func(handle uintptr, size *uint64) int32
	fnSetChatTemplate    func(handle, system, prefix, postfix uintptr) int32
	fnSetFunctionTools   func(handle, system, tools, toolResponse uintptr) int32
	fnSetCrossAttn       func(handle uintptr, p *abiCrossAttnParam) int32
)

func loadDynamicLibrary() error {
	var lib uintptr
	var lastErr error
	for _, cand := range libraryCandidates() {
		l, err := purego.Dlopen(cand, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		lib = l
		break
	}
	if lib == 0 {
		return ErrCapability("librkllmrt not found: " + lastErr.Error())
	}

	purego.RegisterLibFunc(&fnInit, lib, "rkllm_init")
	purego.RegisterLibFunc(&fnRun, lib, "rkllm_run")
	purego.RegisterLibFunc(&fnRunAsync, lib, "rkllm_run_async")
	purego.RegisterLibFunc(&fnAbort, lib, "rkllm_abort")
	purego.RegisterLibFunc(&fnIsRunning, lib, "rkllm_is_running")
	purego.RegisterLibFunc(&fnDestroy, lib, "rkllm_destroy")
	purego.RegisterLibFunc(&fnLoadLora, lib, "rkllm_load_lora")
	purego.RegisterLibFunc(&fnLoadPromptCache, lib, "rkllm_load_prompt_cache")
	purego.RegisterLibFunc(&fnReleasePromptCache, lib, "rkllm_release_prompt_cache")
	purego.RegisterLibFunc(&fnClearKVCache, lib, "rkllm_clear_kv_cache")
	purego.RegisterLibFunc(&fnGetKVCacheSize, lib, "rkllm_get_kv_cache_size")
	purego.RegisterLibFunc(&fnSetChatTemplate, lib, "rkllm_set_chat_template")
	purego.RegisterLibFunc(&fnSetFunctionTools, lib, "rkllm_set_function_tools")
	purego.RegisterLibFunc(&fnSetCrossAttn, lib, "rkllm_set_cross_attn_params")

	dlCallback = purego.NewCallback(func(res uintptr, userdata uintptr, state int32) int32 {
		var r *abiResult
		if res != 0 {
			r = (*abiResult)(unsafe.Pointer(res))
		}
		deliverCallback(userdata, r, state)
		return 0
	})
	return nil
}

// dynamicRuntime is the direct-dynamic-library call path.
type dynamicRuntime struct{}

func newDynamicRuntime() (nativeRuntime, error) {
	dlOnce.Do(func() { dlErr = loadDynamicLibrary() })
	if dlErr != nil {
		return nil, dlErr
	}
	return dynamicRuntime{}, nil
}

func (dynamicRuntime) init(param *abiParam) (uintptr, int32) {
	var h uintptr
	status := fnInit(&h, param, dlCallback)
	return h, status
}

func (dynamicRuntime) run(h uintptr, in *abiInput, ip *abiInferParam, token uintptr) int32 {
	return fnRun(h, in, ip, token)
}

func (dynamicRuntime) runAsync(h uintptr, in *abiInput, ip *abiInferParam, token uintptr) int32 {
	return fnRunAsync(h, in, ip, token)
}

func (dynamicRuntime) abort(h uintptr) int32     { return fnAbort(h) }
func (dynamicRuntime) isRunning(h uintptr) int32 { return fnIsRunning(h) }
func (dynamicRuntime) destroy(h uintptr) int32   { return fnDestroy(h) }

func (dynamicRuntime) loadLora(h uintptr, ad *abiLoraAdapter) int32 {
	return fnLoadLora(h, ad)
}

func (dynamicRuntime) loadPromptCache(h uintptr, path uintptr) int32 {
	return fnLoadPromptCache(h, path)
}

func (dynamicRuntime) releasePromptCache(h uintptr) int32 { return fnReleasePromptCache(h) }

func (dynamicRuntime) clearKVCache(h uintptr, keepSystemPrompt int32) int32 {
	return fnClearKVCache(h, keepSystemPrompt)
}

func (dynamicRuntime) getKVCacheSize(h uintptr, size *uint64) int32 {
	return fnGetKVCacheSize(h, size)
}

func (dynamicRuntime) setChatTemplate(h, system, prefix, postfix uintptr) int32 {
	return fnSetChatTemplate(h, system, prefix, postfix)
}

func (dynamicRuntime) setFunctionTools(h, system, tools, toolResponse uintptr) int32 {
	return fnSetFunctionTools(h, system, tools, toolResponse)
}

func (dynamicRuntime) setCrossAttnParams(h uintptr, p *abiCrossAttnParam) int32 {
	return fnSetCrossAttn(h, p)
}
