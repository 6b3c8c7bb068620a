package rkllm

import (
	"testing"
	"time"
)

func collect(t *testing.T, s *Stream) []Result {
	t.Helper()
	var out []Result
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-s.Results():
			if !ok {
				return out
			}
			out = append(out, r)
		case <-timeout:
			t.Fatalf("stream did not terminate; got %d results", len(out))
		}
	}
}

func TestStreamDeliversInOrder(t *testing.T) {
	rt := newStub()
	rt.script = []scripted{
		textResult("a"), textResult("b"), textResult("c"),
		{res: &abiResult{}, state: abiStateFinish},
	}
	h := newStubHandle(t, rt)

	s, err := h.RunAsync(&Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	got := collect(t, s)
	if len(got) != 4 {
		t.Fatalf("got %d results, want 4", len(got))
	}
	for i, text := range []string{"a", "b", "c"} {
		if got[i].State != CallNormal || got[i].Text != text {
			t.Fatalf("result %d = %+v, want normal %q", i, got[i], text)
		}
	}
	last := got[3]
	if last.State != CallFinish || !last.State.Terminal() || last.Err != nil {
		t.Fatalf("terminal result = %+v, want finish", last)
	}
}

func TestStreamFaultTerminates(t *testing.T) {
	rt := newStub()
	rt.script = []scripted{
		textResult("ok"),
		{res: &abiResult{Logits: abiLogits{VocabSize: 100, NumTokens: 1}}, state: abiStateNormal},
		// Anything after the fault must be dropped.
		textResult("late"),
		{res: &abiResult{}, state: abiStateFinish},
	}
	h := newStubHandle(t, rt)

	s, err := h.RunAsync(&Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	got := collect(t, s)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Text != "ok" || got[0].State != CallNormal {
		t.Fatalf("result 0 = %+v", got[0])
	}
	if got[1].State != CallError || !IsStreamFault(got[1].Err) {
		t.Fatalf("result 1 = %+v, want stream fault", got[1])
	}
}

func TestVendorErrorTerminates(t *testing.T) {
	rt := newStub()
	rt.script = []scripted{{res: &abiResult{}, state: abiStateError}}
	h := newStubHandle(t, rt)

	s, err := h.RunAsync(&Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	got := collect(t, s)
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	// A vendor-reported error carries the state only; Err stays nil since
	// the runtime reports no detail beyond it.
	if got[0].State != CallError || got[0].Err != nil {
		t.Fatalf("result = %+v, want bare vendor error", got[0])
	}
}

func TestDeliverAfterCloseDropped(t *testing.T) {
	token, s := registerStream(&arena{})
	s.Close()
	// Must not block or panic; the stream is gone.
	deliverCallback(token, &abiResult{}, abiStateNormal)
	deliverCallback(token, &abiResult{}, abiStateFinish)
	select {
	case _, ok := <-s.Results():
		if ok {
			t.Fatal("received a result on an abandoned stream")
		}
		// Closed channel is also acceptable only after terminal delivery,
		// which an abandoned stream never gets.
		t.Fatal("abandoned stream channel was closed")
	default:
	}
}

func TestDeliverUnknownTokenDropped(t *testing.T) {
	// Never registered; must be a no-op.
	deliverCallback(0xdead, &abiResult{}, abiStateNormal)
}

func TestCloseIdempotent(t *testing.T) {
	_, s := registerStream(&arena{})
	s.Close()
	s.Close()
}

func TestWaitingStateForwarded(t *testing.T) {
	rt := newStub()
	rt.script = []scripted{
		{res: &abiResult{}, state: abiStateWaiting},
		textResult("x"),
		{res: &abiResult{}, state: abiStateFinish},
	}
	h := newStubHandle(t, rt)

	s, err := h.RunAsync(&Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	got := collect(t, s)
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	if got[0].State != CallWaiting || got[0].State.Terminal() {
		t.Fatalf("result 0 = %+v, want non-terminal waiting", got[0])
	}
}

func TestAbortDuringStream(t *testing.T) {
	rt := newStub()
	rt.script = []scripted{
		textResult("partial"),
		{res: &abiResult{}, state: abiStateFinish},
	}
	h := newStubHandle(t, rt)

	s, err := h.RunAsync(&Input{Type: InputPrompt, Prompt: "hi"}, &InferParams{Mode: InferGenerate})
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	// Abort is advisory; the stream still ends with the runtime's terminal
	// result.
	if err := h.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	got := collect(t, s)
	if got[len(got)-1].State != CallFinish {
		t.Fatalf("last result = %+v, want finish", got[len(got)-1])
	}
	if n := rt.callCount("abort"); n != 1 {
		t.Fatalf("abort call count = %d, want 1", n)
	}
}
