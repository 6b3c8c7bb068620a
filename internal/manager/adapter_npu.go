package manager

import (
	"context"
	"errors"
	"strings"
	"sync"

	"rkllmd/pkg/rkllm"
	"rkllmd/pkg/types"
)

// npuAdapter loads models into the rkllm NPU runtime.
type npuAdapter struct{}

// NewNPUAdapter returns the production adapter backed by pkg/rkllm.
func NewNPUAdapter() InferenceAdapter { return &npuAdapter{} }

func (a *npuAdapter) Start(modelPath string, params InferParams) (InferSession, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	cfg := &rkllm.RuntimeConfig{
		ModelPath:     modelPath,
		MaxContextLen: int32(params.MaxContextLen),
		MaxNewTokens:  int32(params.MaxTokens),
		TopK:          int32(params.TopK),
		TopP:          params.TopP,
		Temperature:   params.Temperature,
		RepeatPenalty: params.RepeatPenalty,
	}
	var opts []rkllm.Option
	if p := rkllm.ParseCallPath(params.CallPath); p != rkllm.PathAuto {
		opts = append(opts, rkllm.WithCallPath(p))
	}
	h, err := rkllm.Init(cfg, opts...)
	if err != nil {
		// A missing call path or vendor library is an environment problem,
		// not a request problem; let the HTTP layer answer 503.
		if rkllm.IsCapability(err) {
			return nil, ErrDependencyUnavailable(err.Error())
		}
		return nil, err
	}
	return &npuSession{handle: h}, nil
}

// npuSession wraps one live rkllm handle. Generate calls are serialized by
// the manager's admission layer; Close may race a late status poll, hence
// the mutex.
type npuSession struct {
	mu     sync.Mutex
	handle *rkllm.Handle
}

func (s *npuSession) Generate(ctx context.Context, req GenerateRequest, onToken func(Token) error) (FinalResult, error) {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return FinalResult{}, errors.New("session closed")
	}

	in := &rkllm.Input{
		Type:           rkllm.InputPrompt,
		Prompt:         req.Prompt,
		Role:           req.Role,
		EnableThinking: req.EnableThinking,
	}
	ip := &rkllm.InferParams{
		Mode:        rkllm.InferGenerate,
		KeepHistory: req.KeepHistory,
		Adapters:    req.Adapters,
	}
	stream, err := h.RunAsync(in, ip)
	if err != nil {
		return FinalResult{}, err
	}

	var b strings.Builder
	var perf rkllm.PerfStats
	finish := "stop"
	ctxDone := ctx.Done()
	for {
		select {
		case r, ok := <-stream.Results():
			if !ok {
				return FinalResult{
					Content:      b.String(),
					Usage:        usageFromPerf(perf),
					FinishReason: finish,
				}, nil
			}
			if r.State == rkllm.CallError {
				stream.Close()
				if r.Err != nil {
					return FinalResult{}, r.Err
				}
				return FinalResult{}, errors.New("runtime reported generation error")
			}
			perf = r.Perf
			if r.Text != "" {
				b.WriteString(r.Text)
				if err := onToken(Token{Text: r.Text, ID: r.TokenID}); err != nil {
					stream.Close()
					_ = h.Abort()
					return FinalResult{}, err
				}
			}
		case <-ctxDone:
			// Abort once, then keep draining: the runtime still delivers its
			// terminal result after an abort.
			ctxDone = nil
			finish = "aborted"
			_ = h.Abort()
		}
	}
}

// Path reports the interop call path the underlying handle runs on.
func (s *npuSession) Path() rkllm.CallPath {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return rkllm.PathAuto
	}
	return s.handle.Path()
}

func (s *npuSession) KVCacheTokens() uint64 {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return 0
	}
	n, err := h.KVCacheSize()
	if err != nil {
		return 0
	}
	return n
}

func (s *npuSession) Close() error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Destroy()
}

func usageFromPerf(p rkllm.PerfStats) types.Usage {
	return types.Usage{
		PrefillTokens:  p.PrefillTokens,
		PrefillTimeMS:  p.PrefillTimeMS,
		GenerateTokens: p.GenerateTokens,
		GenerateTimeMS: p.GenerateTimeMS,
		MemoryUsageMB:  p.MemoryUsageMB,
	}
}
