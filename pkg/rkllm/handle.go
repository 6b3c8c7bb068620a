package rkllm

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// HandleState is the lifecycle state of a Handle.
type HandleState int32

const (
	HandleUninitialized HandleState = iota
	HandleLive
	HandleDestroyed
)

func (s HandleState) String() string {
	switch s {
	case HandleUninitialized:
		return "uninitialized"
	case HandleLive:
		return "live"
	case HandleDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// destroyedPtr replaces the native pointer after destroy so a stale value
// can never reach the vendor library again.
const destroyedPtr = ^uintptr(0)

// Handle wraps one live native runtime instance. The native pointer is
// write-once and never exposed; a destroyed Handle stays around as a
// sentinel so late callers get a defined invalid-handle error.
//
// Operations against the same Handle must be serialized by the caller,
// except Abort and IsRunning which may race an in-flight Run.
type Handle struct {
	id   uuid.UUID
	rt   nativeRuntime
	path CallPath

	mu    sync.Mutex
	state HandleState
	ptr   uintptr
}

// Option configures Init.
type Option func(*initOptions)

type initOptions struct {
	path CallPath
}

// WithCallPath overrides the default call-path selection policy for this
// initialization and all later interop calls in the process.
func WithCallPath(p CallPath) Option {
	return func(o *initOptions) { o.path = p }
}

// Init creates a native runtime instance for cfg and returns a Live handle.
// On any failure no handle is returned; there is no partial state to clean
// up on the host side.
func Init(cfg *RuntimeConfig, opts ...Option) (*Handle, error) {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}
	path, err := selectCallPath(o.path)
	if err != nil {
		return nil, err
	}
	rt, err := newNativeRuntime(path)
	if err != nil {
		return nil, err
	}
	return initWithRuntime(rt, path, cfg)
}

// initWithRuntime performs the marshalling and native init against an
// already-resolved runtime. Split from Init so tests can supply a stub.
func initWithRuntime(rt nativeRuntime, path CallPath, cfg *RuntimeConfig) (*Handle, error) {
	var a arena
	p, err := toNativeParam(cfg, &a)
	if err != nil {
		return nil, err
	}
	ptr, status := rt.init(p)
	runtime.KeepAlive(&a)
	if status != 0 {
		return nil, ErrNativeCall("init", status)
	}
	if ptr == 0 {
		return nil, ErrNativeCall("init", -1)
	}
	return &Handle{
		id:    uuid.New(),
		rt:    rt,
		path:  path,
		state: HandleLive,
		ptr:   ptr,
	}, nil
}

// ID is the handle's identity, distinct from every other handle.
func (h *Handle) ID() string { return h.id.String() }

// State returns the current lifecycle state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Path returns the call path this handle was initialized on.
func (h *Handle) Path() CallPath { return h.path }

// guard is the single state check every operation goes through before the
// native pointer is touched.
func (h *Handle) guard(op string) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != HandleLive {
		return 0, ErrInvalidHandle(op, h.state)
	}
	return h.ptr, nil
}

// statusErr maps a vendor status to an error (nil on 0).
func statusErr(op string, status int32) error {
	if status != 0 {
		return ErrNativeCall(op, status)
	}
	return nil
}

// RunAsync starts a streaming call and returns immediately. Results arrive
// on the stream in callback order; the stream ends with an explicit finish
// or error result.
func (h *Handle) RunAsync(in *Input, params *InferParams) (*Stream, error) {
	ptr, err := h.guard("runAsync")
	if err != nil {
		return nil, err
	}
	a := &arena{}
	nin, err := toNativeInput(in, a)
	if err != nil {
		return nil, err
	}
	nip, err := toNativeInferParam(params, a)
	if err != nil {
		return nil, err
	}
	token, stream := registerStream(a)
	if status := h.rt.runAsync(ptr, nin, nip, token); status != 0 {
		stream.Close()
		return nil, ErrNativeCall("runAsync", status)
	}
	return stream, nil
}

// Run performs a blocking call and aggregates the callback results into a
// Completion. The native call and the callback bridge are the same code
// path as RunAsync; only the multiplicity the caller observes differs.
//
// Cancelling ctx issues an advisory Abort; the call still ends with
// whatever terminal result the runtime produces afterwards.
func (h *Handle) Run(ctx context.Context, in *Input, params *InferParams) (*Completion, error) {
	ptr, err := h.guard("run")
	if err != nil {
		return nil, err
	}
	a := &arena{}
	nin, err := toNativeInput(in, a)
	if err != nil {
		return nil, err
	}
	nip, err := toNativeInferParam(params, a)
	if err != nil {
		return nil, err
	}
	token, stream := registerStream(a)

	statusCh := make(chan int32, 1)
	go func() {
		statusCh <- h.rt.run(ptr, nin, nip, token)
	}()

	comp := &Completion{}
	var text strings.Builder
	var streamErr error
	var runStatus int32
	haveStatus := false
	resCh := stream.Results()
	ctxDone := ctx.Done()

	for resCh != nil {
		select {
		case r, ok := <-resCh:
			if !ok {
				resCh = nil
				continue
			}
			text.WriteString(r.Text)
			if r.HiddenLayer != nil {
				comp.HiddenLayer = r.HiddenLayer
			}
			if r.Logits != nil {
				comp.Logits = r.Logits
			}
			comp.Perf = r.Perf
			if r.State.Terminal() {
				comp.FinishState = r.State
				streamErr = r.Err
			}
		case s := <-statusCh:
			runStatus, haveStatus = s, true
			statusCh = nil
			if s != 0 {
				// The native call failed without closing the stream;
				// stop waiting for callbacks that will never come.
				stream.Close()
				resCh = nil
			}
		case <-ctxDone:
			ctxDone = nil
			_ = h.rt.abort(ptr)
		}
	}
	if !haveStatus {
		runStatus = <-statusCh
	}
	comp.Text = text.String()

	switch {
	case streamErr != nil:
		return nil, streamErr
	case comp.FinishState == CallFinish:
		return comp, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case runStatus == 0 && comp.FinishState == CallError:
		// The runtime ended the stream in error state without failing the
		// native call itself; a status-0 native error would read as success.
		return nil, ErrStreamFault("runtime ended the stream in error state")
	default:
		return nil, ErrNativeCall("run", runStatus)
	}
}

// Abort asks the runtime to stop the in-flight call on this handle. It is
// advisory: the stream still ends with the terminal result the runtime
// produces after the request.
func (h *Handle) Abort() error {
	ptr, err := h.guard("abort")
	if err != nil {
		return err
	}
	return statusErr("abort", h.rt.abort(ptr))
}

// IsRunning reports whether a call is in flight on this handle.
func (h *Handle) IsRunning() (bool, error) {
	ptr, err := h.guard("isRunning")
	if err != nil {
		return false, err
	}
	status := h.rt.isRunning(ptr)
	if status < 0 {
		return false, ErrNativeCall("isRunning", status)
	}
	return status != 0, nil
}

// LoadAdapter loads a LoRA adapter into the live instance.
func (h *Handle) LoadAdapter(ad *LoraAdapter) error {
	ptr, err := h.guard("loadAdapter")
	if err != nil {
		return err
	}
	a := &arena{}
	nad, err := toNativeLora(ad, a)
	if err != nil {
		return err
	}
	status := h.rt.loadLora(ptr, nad)
	runtime.KeepAlive(a)
	return statusErr("loadAdapter", status)
}

// LoadPromptCache loads a prompt cache file; the on-disk format is the
// vendor runtime's.
func (h *Handle) LoadPromptCache(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrContractViolation("prompt cache path is empty")
	}
	ptr, err := h.guard("loadPromptCache")
	if err != nil {
		return err
	}
	a := &arena{}
	status := h.rt.loadPromptCache(ptr, a.cstring(path))
	runtime.KeepAlive(a)
	return statusErr("loadPromptCache", status)
}

// ReleasePromptCache releases the loaded prompt cache.
func (h *Handle) ReleasePromptCache() error {
	ptr, err := h.guard("releasePromptCache")
	if err != nil {
		return err
	}
	return statusErr("releasePromptCache", h.rt.releasePromptCache(ptr))
}

// ClearKVCache clears the key/value cache, optionally keeping the system
// prompt prefix.
func (h *Handle) ClearKVCache(keepSystemPrompt bool) error {
	ptr, err := h.guard("clearKVCache")
	if err != nil {
		return err
	}
	return statusErr("clearKVCache", h.rt.clearKVCache(ptr, int32(nativeBool(keepSystemPrompt))))
}

// KVCacheSize returns the current key/value cache size in tokens.
func (h *Handle) KVCacheSize() (uint64, error) {
	ptr, err := h.guard("kvCacheSize")
	if err != nil {
		return 0, err
	}
	var size uint64
	if status := h.rt.getKVCacheSize(ptr, &size); status != 0 {
		return 0, ErrNativeCall("kvCacheSize", status)
	}
	return size, nil
}

// SetChatTemplate installs the chat template strings for the instance.
func (h *Handle) SetChatTemplate(system, prefix, postfix string) error {
	ptr, err := h.guard("setChatTemplate")
	if err != nil {
		return err
	}
	a := &arena{}
	status := h.rt.setChatTemplate(ptr, a.cstring(system), a.cstring(prefix), a.cstring(postfix))
	runtime.KeepAlive(a)
	return statusErr("setChatTemplate", status)
}

// SetFunctionTools installs the function-calling tool definitions.
func (h *Handle) SetFunctionTools(system, tools, toolResponse string) error {
	ptr, err := h.guard("setFunctionTools")
	if err != nil {
		return err
	}
	a := &arena{}
	status := h.rt.setFunctionTools(ptr, a.cstring(system), a.cstring(tools), a.cstring(toolResponse))
	runtime.KeepAlive(a)
	return statusErr("setFunctionTools", status)
}

// SetCrossAttention installs precomputed encoder caches for cross-attention.
func (h *Handle) SetCrossAttention(p *CrossAttnParams) error {
	ptr, err := h.guard("setCrossAttention")
	if err != nil {
		return err
	}
	a := &arena{}
	np, err := toNativeCrossAttn(p, a)
	if err != nil {
		return err
	}
	status := h.rt.setCrossAttnParams(ptr, np)
	runtime.KeepAlive(a)
	return statusErr("setCrossAttention", status)
}

// Destroy releases the native instance and moves the handle to Destroyed.
// The transition happens even when the native destroy fails: the resource
// is presumed unrecoverable, and further use must fail fast rather than
// touch a dangling pointer. There is no way back; re-initialization means a
// new handle.
func (h *Handle) Destroy() error {
	h.mu.Lock()
	if h.state != HandleLive {
		state := h.state
		h.mu.Unlock()
		return ErrInvalidHandle("destroy", state)
	}
	ptr := h.ptr
	h.state = HandleDestroyed
	h.ptr = destroyedPtr
	h.mu.Unlock()

	return statusErr("destroy", h.rt.destroy(ptr))
}
