package rkllm

import "sync"

// streamBuffer is the per-stream channel capacity. Delivery blocks the
// native callback thread once full, which backpressures the runtime rather
// than dropping or reordering results.
const streamBuffer = 64

// streamState is the bridge-side record for one in-flight call. The vendor
// runtime invokes the callback from its own thread; only the callback path
// writes to ch, so per-stream ordering is the runtime's invocation order.
type streamState struct {
	ch       chan Result
	quit     chan struct{}
	quitOnce sync.Once
	// pinned keeps the marshalled input alive for the duration of the call.
	pinned *arena
	// terminal is written only from the callback path.
	terminal bool
}

// Stream is the host-observable side of one streaming call. Results arrive
// in callback order; the channel closes after the terminal result (finish or
// error), which is always delivered explicitly.
type Stream struct {
	token uintptr
	st    *streamState
}

// Results returns the delivery channel. It is closed after a terminal
// result has been received.
func (s *Stream) Results() <-chan Result { return s.st.ch }

// Close abandons the stream. Pending and future callback invocations are
// discarded instead of blocking the native thread. Callers that consume to
// the terminal result never need Close.
func (s *Stream) Close() {
	s.st.quitOnce.Do(func() { close(s.st.quit) })
	streamMu.Lock()
	delete(streams, s.token)
	streamMu.Unlock()
}

// Dispatch table from per-call token to stream. The token is what crosses
// the boundary as the opaque user-data value; native memory never holds a
// Go pointer.
var (
	streamMu  sync.Mutex
	streams   = make(map[uintptr]*streamState)
	nextToken uintptr
)

// registerStream allocates a token and stream for one call. The arena pins
// the call's marshalled input until the stream is dropped.
func registerStream(pinned *arena) (uintptr, *Stream) {
	st := &streamState{
		ch:     make(chan Result, streamBuffer),
		quit:   make(chan struct{}),
		pinned: pinned,
	}
	streamMu.Lock()
	nextToken++
	token := nextToken
	streams[token] = st
	streamMu.Unlock()
	return token, &Stream{token: token, st: st}
}

// deliverCallback is the single entry point for native result callbacks,
// shared by both call paths and the test stub. It runs on whatever thread
// the vendor runtime chose; everything it does is channel sends and map
// lookups, never direct reentry into caller code.
//
// A malformed result struct is substituted with a host-raised terminal
// error result; the stream ends there and later invocations for the same
// token are dropped.
func deliverCallback(token uintptr, res *abiResult, state int32) {
	streamMu.Lock()
	st := streams[token]
	streamMu.Unlock()
	if st == nil || st.terminal {
		return
	}

	r, err := fromNativeResult(res, state)
	if err != nil {
		r = Result{State: CallError, Err: err}
	}
	if r.State.Terminal() {
		st.terminal = true
	}

	select {
	case st.ch <- r:
	case <-st.quit:
		return
	}

	if st.terminal {
		close(st.ch)
		streamMu.Lock()
		delete(streams, token)
		streamMu.Unlock()
	}
}
