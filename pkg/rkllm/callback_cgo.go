//go:build rkllm

package rkllm

import "C"
import "unsafe"

// goRKLLMCallback is the native result callback for the compiled-extension
// path. It runs on whatever thread the vendor runtime invokes it from and
// must only funnel into the bridge.
//
//export goRKLLMCallback
func goRKLLMCallback(result unsafe.Pointer, userdata unsafe.Pointer, state C.int) C.int {
	deliverCallback(uintptr(userdata), (*abiResult)(result), int32(state))
	return 0
}
