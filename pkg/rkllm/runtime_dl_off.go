//go:build !(linux && (amd64 || arm64))

package rkllm

import "runtime"

// The dynamic-library path needs dlopen and a 64-bit target the vendor
// ships for; elsewhere it reports unavailable and Init falls back to the
// compiled extension (or fails with a capability error).

func newDynamicRuntime() (nativeRuntime, error) {
	return nil, ErrCapability("dynamic library path unsupported on " + runtime.GOOS + "/" + runtime.GOARCH)
}
