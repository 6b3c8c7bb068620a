// Package rkllm wraps the vendor RKLLM runtime (librkllmrt) behind Go-safe
// types. It owns every value that crosses the host/native boundary and is
// structured into small files by concern:
//
//   - capability.go: call-path detection and process-wide selection.
//   - abi.go: fixed-layout mirrors of the native ABI structs and constants.
//   - marshal.go: canonical record <-> ABI struct conversion (both ways).
//   - handle.go: opaque handle lifecycle and every operational call.
//   - stream.go: callback bridge from native threads into result channels.
//   - errors.go: error taxonomy and predicate helpers.
//   - types.go: the canonical host-side records.
//
// Call paths:
//
//   - Direct dynamic library (default where supported):
//     dlopens librkllmrt via purego; no compiled shim required.
//     Files: runtime_dl.go (tagged), runtime_dl_off.go.
//
//   - Compiled extension:
//     cgo against the vendor header, enabled with `-tags=rkllm`.
//     Files: runtime_cgo.go, cgo_flags.go (tagged), runtime_cgo_off.go.
//
// The native pointer held by a Handle never leaves this package. Operations
// against the same Handle must be serialized by the caller; the vendor
// runtime does not document reentrancy. Concurrent use of distinct handles
// is permitted and not serialized here.
package rkllm
