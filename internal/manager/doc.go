// Package manager provides lifecycle, admission, and inference coordination for
// NPU model instances. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (State, ModelInfo, Instance, Snapshot).
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound).
//   - helpers.go: small utilities (model lookup, memory estimation).
//   - admission.go: per-instance queueing and generation admission.
//   - ensure.go: EnsureInstance lifecycle and model loading.
//   - evict.go: eviction logic to fit within the NPU memory budget.
//   - inference.go: inference API entry point and NDJSON streaming.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - ops.go: async operations (Switch).
//   - sanity.go: runtime capability checks.
//   - lru_persist.go: optional LRU metadata persistence across restarts.
//
// Model runtimes are reached through the InferenceAdapter interface
// (adapter_iface.go). The production adapter (adapter_npu.go) drives the
// Rockchip rkllm runtime via pkg/rkllm and keeps one live native instance
// per ensured model. Call-path selection (cgo extension vs runtime dlopen)
// happens inside pkg/rkllm; the manager only passes the configured
// preference through.
//
// External packages should treat this package as the orchestration layer and use
// public methods only (e.g., New/NewWithConfig, Ready, ListModels, Status, Infer).
// Internal types are subject to change.
package manager
