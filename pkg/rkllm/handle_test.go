package rkllm

import (
	"context"
	"sync"
	"testing"
	"time"
	"unsafe"
)

// scripted is one callback invocation the stub replays during run/runAsync.
// buf pins any native-side text buffer for the test's duration.
type scripted struct {
	res   *abiResult
	state int32
	buf   []byte
}

func bufAddr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// stubRuntime is a scripted nativeRuntime for tests. It counts every entry
// point and replays its script through deliverCallback, the same funnel the
// real call paths use.
type stubRuntime struct {
	mu    sync.Mutex
	calls map[string]int

	initPtr    uintptr
	initStatus int32

	script         []scripted
	runStatus      int32
	runAsyncStatus int32
	destroyStatus  int32
	abortStatus    int32
	runningStatus  int32
	kvSize         uint64

	// blockUntilAbort makes run wait for an abort call, then deliver a
	// finish result, mimicking a cancelled generation.
	blockUntilAbort bool
	abortCh         chan struct{}
	abortOnce       sync.Once

	lastKeepSystem int32
}

func newStub() *stubRuntime {
	return &stubRuntime{
		calls:   make(map[string]int),
		initPtr: 0x1,
		abortCh: make(chan struct{}),
	}
}

func (s *stubRuntime) count(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

func (s *stubRuntime) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *stubRuntime) replay(token uintptr) {
	for _, sc := range s.script {
		deliverCallback(token, sc.res, sc.state)
	}
}

func (s *stubRuntime) init(*abiParam) (uintptr, int32) {
	s.count("init")
	return s.initPtr, s.initStatus
}

func (s *stubRuntime) run(h uintptr, in *abiInput, ip *abiInferParam, token uintptr) int32 {
	s.count("run")
	if s.blockUntilAbort {
		<-s.abortCh
		deliverCallback(token, &abiResult{}, abiStateFinish)
		return 0
	}
	s.replay(token)
	return s.runStatus
}

func (s *stubRuntime) runAsync(h uintptr, in *abiInput, ip *abiInferParam, token uintptr) int32 {
	s.count("runAsync")
	if s.runAsyncStatus == 0 {
		s.replay(token)
	}
	return s.runAsyncStatus
}

func (s *stubRuntime) abort(uintptr) int32 {
	s.count("abort")
	s.abortOnce.Do(func() { close(s.abortCh) })
	return s.abortStatus
}

func (s *stubRuntime) isRunning(uintptr) int32 { s.count("isRunning"); return s.runningStatus }
func (s *stubRuntime) destroy(uintptr) int32   { s.count("destroy"); return s.destroyStatus }

func (s *stubRuntime) loadLora(uintptr, *abiLoraAdapter) int32 { s.count("loadLora"); return 0 }
func (s *stubRuntime) loadPromptCache(uintptr, uintptr) int32  { s.count("loadPromptCache"); return 0 }
func (s *stubRuntime) releasePromptCache(uintptr) int32        { s.count("releasePromptCache"); return 0 }

func (s *stubRuntime) clearKVCache(h uintptr, keepSystemPrompt int32) int32 {
	s.count("clearKVCache")
	s.mu.Lock()
	s.lastKeepSystem = keepSystemPrompt
	s.mu.Unlock()
	return 0
}

func (s *stubRuntime) getKVCacheSize(h uintptr, size *uint64) int32 {
	s.count("getKVCacheSize")
	*size = s.kvSize
	return 0
}

func (s *stubRuntime) setChatTemplate(h, system, prefix, postfix uintptr) int32 {
	s.count("setChatTemplate")
	return 0
}

func (s *stubRuntime) setFunctionTools(h, system, tools, toolResponse uintptr) int32 {
	s.count("setFunctionTools")
	return 0
}

func (s *stubRuntime) setCrossAttnParams(uintptr, *abiCrossAttnParam) int32 {
	s.count("setCrossAttnParams")
	return 0
}

func newStubHandle(t *testing.T, rt *stubRuntime) *Handle {
	t.Helper()
	h, err := initWithRuntime(rt, PathDynamicLib, &RuntimeConfig{ModelPath: "model.bin"})
	if err != nil {
		t.Fatalf("initWithRuntime: %v", err)
	}
	return h
}

// textResult builds a scripted normal-state result carrying text. The backing
// buffer is reachable through the returned struct for the test's duration.
func textResult(text string) scripted {
	b := append([]byte(text), 0)
	r := &abiResult{Text: bufAddr(b)}
	return scripted{res: r, state: abiStateNormal, buf: b}
}

func TestInitRejectsBeforeNativeCall(t *testing.T) {
	rt := newStub()
	_, err := initWithRuntime(rt, PathDynamicLib, &RuntimeConfig{})
	if !IsContractViolation(err) {
		t.Fatalf("err = %v, want contract violation", err)
	}
	if n := rt.callCount("init"); n != 0 {
		t.Fatalf("init reached the runtime %d times on invalid config", n)
	}
}

func TestInitNativeFailure(t *testing.T) {
	rt := newStub()
	rt.initStatus = -3
	_, err := initWithRuntime(rt, PathDynamicLib, &RuntimeConfig{ModelPath: "m"})
	if !IsNativeCall(err) {
		t.Fatalf("err = %v, want native call error", err)
	}
	if st, ok := NativeStatus(err); !ok || st != -3 {
		t.Fatalf("status = %d (%v), want -3", st, ok)
	}

	rt = newStub()
	rt.initPtr = 0
	if _, err := initWithRuntime(rt, PathDynamicLib, &RuntimeConfig{ModelPath: "m"}); !IsNativeCall(err) {
		t.Fatalf("null handle err = %v, want native call error", err)
	}
}

func TestHandleIdentity(t *testing.T) {
	rt := newStub()
	a := newStubHandle(t, rt)
	b := newStubHandle(t, rt)
	if a.ID() == b.ID() {
		t.Fatal("distinct handles share an ID")
	}
	if a.State() != HandleLive || a.Path() != PathDynamicLib {
		t.Fatalf("state=%v path=%v", a.State(), a.Path())
	}
}

func TestDestroyedHandleFailsFast(t *testing.T) {
	rt := newStub()
	h := newStubHandle(t, rt)
	if err := h.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if h.State() != HandleDestroyed {
		t.Fatalf("state = %v, want destroyed", h.State())
	}

	in := &Input{Type: InputPrompt, Prompt: "hi"}
	ip := &InferParams{Mode: InferGenerate}
	if _, err := h.Run(context.Background(), in, ip); !IsInvalidHandle(err) {
		t.Fatalf("Run err = %v, want invalid handle", err)
	}
	if _, err := h.RunAsync(in, ip); !IsInvalidHandle(err) {
		t.Fatalf("RunAsync err = %v, want invalid handle", err)
	}
	if err := h.Abort(); !IsInvalidHandle(err) {
		t.Fatalf("Abort err = %v, want invalid handle", err)
	}
	if _, err := h.KVCacheSize(); !IsInvalidHandle(err) {
		t.Fatalf("KVCacheSize err = %v, want invalid handle", err)
	}
	if n := rt.callCount("run"); n != 0 {
		t.Fatalf("run reached the runtime %d times after destroy", n)
	}
	if n := rt.callCount("destroy"); n != 1 {
		t.Fatalf("destroy call count = %d, want 1", n)
	}
}

func TestDestroyFailureStillDestroys(t *testing.T) {
	rt := newStub()
	rt.destroyStatus = -1
	h := newStubHandle(t, rt)
	err := h.Destroy()
	if !IsNativeCall(err) {
		t.Fatalf("Destroy err = %v, want native call error", err)
	}
	if h.State() != HandleDestroyed {
		t.Fatalf("state = %v, want destroyed even on native failure", h.State())
	}
	// A second destroy is a handle misuse, not a second native call.
	if err := h.Destroy(); !IsInvalidHandle(err) {
		t.Fatalf("second Destroy err = %v, want invalid handle", err)
	}
	if n := rt.callCount("destroy"); n != 1 {
		t.Fatalf("destroy call count = %d, want 1", n)
	}
}

func TestRunAggregates(t *testing.T) {
	rt := newStub()
	finish := scripted{res: &abiResult{Perf: abiPerfStat{GenerateTokens: 3, GenerateTimeMS: 12}}, state: abiStateFinish}
	rt.script = []scripted{textResult("Hel"), textResult("lo"), textResult("!"), finish}
	h := newStubHandle(t, rt)

	comp, err := h.Run(context.Background(), &Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if comp.Text != "Hello!" {
		t.Fatalf("Text = %q, want %q", comp.Text, "Hello!")
	}
	if comp.FinishState != CallFinish || comp.Perf.GenerateTokens != 3 {
		t.Fatalf("completion = %+v", comp)
	}
}

func TestRunRejectsBeforeNativeCall(t *testing.T) {
	rt := newStub()
	h := newStubHandle(t, rt)
	bad := &Input{Type: InputTokens, Tokens: []int32{1, 2}, TokenCount: 5}
	if _, err := h.Run(context.Background(), bad, &InferParams{Mode: InferGenerate}); !IsContractViolation(err) {
		t.Fatalf("err = %v, want contract violation", err)
	}
	if n := rt.callCount("run"); n != 0 {
		t.Fatalf("run reached the runtime %d times on invalid input", n)
	}
}

func TestRunNativeFailureWithoutCallbacks(t *testing.T) {
	rt := newStub()
	rt.runStatus = -2
	h := newStubHandle(t, rt)
	_, err := h.Run(context.Background(), &Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	if !IsNativeCall(err) {
		t.Fatalf("err = %v, want native call error", err)
	}
	if st, _ := NativeStatus(err); st != -2 {
		t.Fatalf("status = %d, want -2", st)
	}
}

func TestRunStreamFaultSurfaces(t *testing.T) {
	rt := newStub()
	rt.script = []scripted{
		textResult("ok"),
		{res: &abiResult{HiddenLayer: abiHiddenLayer{EmbdSize: -1, NumTokens: 1}}, state: abiStateNormal},
	}
	h := newStubHandle(t, rt)
	_, err := h.Run(context.Background(), &Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	if !IsStreamFault(err) {
		t.Fatalf("err = %v, want stream fault", err)
	}
}

func TestRunErrorStateWithZeroStatus(t *testing.T) {
	rt := newStub()
	rt.script = []scripted{textResult("par"), {res: nil, state: abiStateError}}
	h := newStubHandle(t, rt)
	_, err := h.Run(context.Background(), &Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	// run returned 0, so a native call error would claim success; the error
	// must identify the stream's terminal error state instead.
	if !IsStreamFault(err) {
		t.Fatalf("err = %v, want stream fault", err)
	}
	if IsNativeCall(err) {
		t.Fatalf("err = %v, want no native call error for status 0", err)
	}
}

func TestRunCancelAborts(t *testing.T) {
	rt := newStub()
	rt.blockUntilAbort = true
	h := newStubHandle(t, rt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	var comp *Completion
	var err error
	go func() {
		comp, err = h.Run(ctx, &Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	// The runtime acknowledged the abort with a finish result, so the call
	// completes normally rather than reporting the context error.
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if comp.FinishState != CallFinish {
		t.Fatalf("FinishState = %v, want finish", comp.FinishState)
	}
	if n := rt.callCount("abort"); n != 1 {
		t.Fatalf("abort call count = %d, want 1", n)
	}
}

func TestRunAsyncNativeFailure(t *testing.T) {
	rt := newStub()
	rt.runAsyncStatus = -5
	h := newStubHandle(t, rt)
	_, err := h.RunAsync(&Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	if !IsNativeCall(err) {
		t.Fatalf("err = %v, want native call error", err)
	}
	streamMu.Lock()
	n := len(streams)
	streamMu.Unlock()
	if n != 0 {
		t.Fatalf("%d streams leaked after failed runAsync", n)
	}
}

func TestIsRunningMapping(t *testing.T) {
	rt := newStub()
	h := newStubHandle(t, rt)
	rt.runningStatus = 1
	if running, err := h.IsRunning(); err != nil || !running {
		t.Fatalf("IsRunning = %v, %v; want true", running, err)
	}
	rt.runningStatus = 0
	if running, err := h.IsRunning(); err != nil || running {
		t.Fatalf("IsRunning = %v, %v; want false", running, err)
	}
	rt.runningStatus = -1
	if _, err := h.IsRunning(); !IsNativeCall(err) {
		t.Fatalf("err = %v, want native call error", err)
	}
}

func TestMaintenanceOperations(t *testing.T) {
	rt := newStub()
	rt.kvSize = 321
	h := newStubHandle(t, rt)

	if err := h.LoadAdapter(&LoraAdapter{Path: "/a.lora", Name: "a", Scale: 1}); err != nil {
		t.Fatalf("LoadAdapter: %v", err)
	}
	if err := h.LoadPromptCache(""); !IsContractViolation(err) {
		t.Fatalf("empty cache path err = %v, want contract violation", err)
	}
	if err := h.LoadPromptCache("/tmp/c.bin"); err != nil {
		t.Fatalf("LoadPromptCache: %v", err)
	}
	if err := h.ReleasePromptCache(); err != nil {
		t.Fatalf("ReleasePromptCache: %v", err)
	}
	if err := h.ClearKVCache(true); err != nil {
		t.Fatalf("ClearKVCache: %v", err)
	}
	if rt.lastKeepSystem != 1 {
		t.Fatalf("keepSystemPrompt marshalled as %d, want 1", rt.lastKeepSystem)
	}
	if err := h.ClearKVCache(false); err != nil {
		t.Fatalf("ClearKVCache: %v", err)
	}
	if rt.lastKeepSystem != 0 {
		t.Fatalf("keepSystemPrompt marshalled as %d, want 0", rt.lastKeepSystem)
	}
	size, err := h.KVCacheSize()
	if err != nil || size != 321 {
		t.Fatalf("KVCacheSize = %d, %v; want 321", size, err)
	}
	if err := h.SetChatTemplate("sys", "<u>", "</u>"); err != nil {
		t.Fatalf("SetChatTemplate: %v", err)
	}
	if err := h.SetFunctionTools("sys", `[]`, "tool"); err != nil {
		t.Fatalf("SetFunctionTools: %v", err)
	}
	if err := h.SetCrossAttention(&CrossAttnParams{Mask: []float32{1}, MaskCount: 1}); err != nil {
		t.Fatalf("SetCrossAttention: %v", err)
	}
}
