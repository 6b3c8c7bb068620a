package rkllm

import (
	"runtime"
	"sync"
)

// CallPath identifies one of the two mechanisms for reaching the vendor
// library.
type CallPath int

const (
	// PathAuto defers to the default selection policy.
	PathAuto CallPath = iota
	// PathCompiledExt is the cgo extension compiled with `-tags=rkllm`.
	PathCompiledExt
	// PathDynamicLib dlopens librkllmrt at runtime via purego.
	PathDynamicLib
)

func (p CallPath) String() string {
	switch p {
	case PathAuto:
		return "auto"
	case PathCompiledExt:
		return "compiled-ext"
	case PathDynamicLib:
		return "dynamic-lib"
	}
	return "unknown"
}

// ParseCallPath maps a config string to a CallPath. Unknown values fall back
// to auto.
func ParseCallPath(s string) CallPath {
	switch s {
	case "compiled-ext", "cgo":
		return PathCompiledExt
	case "dynamic-lib", "dlopen":
		return PathDynamicLib
	default:
		return PathAuto
	}
}

// CapabilityReport states which call paths this process can use, plus the
// host runtime's identity. Produced by Detect without loading the vendor
// library; whether the library file actually exists is only discovered at
// initialization time.
type CapabilityReport struct {
	CompiledExt    bool   `json:"compiled_ext"`
	DynamicLib     bool   `json:"dynamic_lib"`
	RuntimeName    string `json:"runtime_name"`
	RuntimeVersion string `json:"runtime_version"`
	OS             string `json:"os"`
	Arch           string `json:"arch"`
}

// Usable reports whether at least one call path is available.
func (r CapabilityReport) Usable() bool { return r.CompiledExt || r.DynamicLib }

// Set by the build-tag-selected runtime files.
var (
	// compiledExtBuilt is true when the cgo extension was compiled in
	// (`-tags=rkllm`).
	compiledExtBuilt = false
	// dynamicLibSupported is true when this OS/arch can dlopen the vendor
	// library via purego.
	dynamicLibSupported = false
)

// Detect inspects the process environment and reports which call paths are
// usable. It never fails and has no side effects; an unsupported
// environment reports both paths unavailable and the error is deferred to
// Init.
func Detect() CapabilityReport {
	return CapabilityReport{
		CompiledExt:    compiledExtBuilt,
		DynamicLib:     dynamicLibSupported,
		RuntimeName:    runtime.Compiler,
		RuntimeVersion: runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
	}
}

// Process-wide call-path selection. Computed lazily on first interop call,
// cached for the process lifetime. An explicit preference overrides it;
// last writer wins, which is safe because all usable paths are behaviorally
// equivalent.
var (
	pathMu       sync.Mutex
	selectedPath CallPath // PathAuto until first selection
)

// selectCallPath resolves the call path for an interop call. pref is the
// caller's explicit preference (PathAuto for none).
func selectCallPath(pref CallPath) (CallPath, error) {
	rep := Detect()
	pathMu.Lock()
	defer pathMu.Unlock()

	if pref != PathAuto {
		if err := pathUsable(pref, rep); err != nil {
			return PathAuto, err
		}
		selectedPath = pref
		return pref, nil
	}
	if selectedPath != PathAuto {
		return selectedPath, nil
	}
	// Default policy: prefer the dynamic-library path, which needs no
	// compiled shim; fall back to the compiled extension.
	switch {
	case rep.DynamicLib:
		selectedPath = PathDynamicLib
	case rep.CompiledExt:
		selectedPath = PathCompiledExt
	default:
		return PathAuto, ErrCapability(
			"no usable call path: binary built without the rkllm tag and " +
				rep.OS + "/" + rep.Arch + " cannot dlopen librkllmrt")
	}
	return selectedPath, nil
}

func pathUsable(p CallPath, rep CapabilityReport) error {
	switch p {
	case PathCompiledExt:
		if !rep.CompiledExt {
			return ErrCapability("compiled extension not built (missing 'rkllm' build tag)")
		}
	case PathDynamicLib:
		if !rep.DynamicLib {
			return ErrCapability("dynamic library path unsupported on " + rep.OS + "/" + rep.Arch)
		}
	default:
		return ErrCapability("unknown call path requested")
	}
	return nil
}

// resetCallPath clears the cached selection. Test hook.
func resetCallPath() {
	pathMu.Lock()
	selectedPath = PathAuto
	pathMu.Unlock()
}
