package manager

import (
	"rkllmd/pkg/rkllm"
)

// SanityReport describes runtime checks for the NPU runtime dependency.
type SanityReport struct {
	CompiledExt bool   `json:"compiled_ext"`
	DynamicLib  bool   `json:"dynamic_lib"`
	Usable      bool   `json:"usable"`
	OS          string `json:"os"`
	Arch        string `json:"arch"`
	Error       string `json:"error,omitempty"`
}

// SanityCheck reports which interop call paths are available in this process.
// It does not load the vendor library and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	rep := rkllm.Detect()
	r := SanityReport{
		CompiledExt: rep.CompiledExt,
		DynamicLib:  rep.DynamicLib,
		Usable:      rep.Usable(),
		OS:          rep.OS,
		Arch:        rep.Arch,
	}
	if !r.Usable {
		r.Error = "no usable call path: built without the rkllm tag and " +
			rep.OS + "/" + rep.Arch + " cannot load librkllmrt at runtime"
	}
	return r
}
