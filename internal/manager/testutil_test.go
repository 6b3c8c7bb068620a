package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rkllmd/pkg/types"
)

// helper: create a model file of approximately sizeMB megabytes
func createModelFile(t *testing.T, dir, name string, sizeMB int) string {
	t.Helper()
	if sizeMB <= 0 {
		sizeMB = 1
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()
	// write sizeMB megabytes (use 1MiB blocks)
	block := make([]byte, 1024*1024)
	for i := 0; i < sizeMB; i++ {
		if _, err := f.Write(block); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return p
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// fakeAdapter is a scripted InferenceAdapter for tests.
type fakeAdapter struct {
	mu       sync.Mutex
	starts   int
	closes   int
	startErr error
	// startDelay makes Start slow, for concurrent-ensure tests
	startDelay time.Duration
	// tokens replayed by every session's Generate
	tokens []string
	genErr error
	// block makes Generate wait for ctx cancellation
	block bool
}

func (a *fakeAdapter) Start(modelPath string, params InferParams) (InferSession, error) {
	a.mu.Lock()
	a.starts++
	a.mu.Unlock()
	if a.startDelay > 0 {
		time.Sleep(a.startDelay)
	}
	if a.startErr != nil {
		return nil, a.startErr
	}
	return &fakeSession{a: a}, nil
}

func (a *fakeAdapter) startCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts
}

func (a *fakeAdapter) closeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}

type fakeSession struct {
	a *fakeAdapter
}

func (s *fakeSession) Generate(ctx context.Context, req GenerateRequest, onToken func(Token) error) (FinalResult, error) {
	if s.a.genErr != nil {
		return FinalResult{}, s.a.genErr
	}
	if s.a.block {
		<-ctx.Done()
		return FinalResult{}, ctx.Err()
	}
	var content string
	for i, tok := range s.a.tokens {
		if err := onToken(Token{Text: tok, ID: int32(i)}); err != nil {
			return FinalResult{}, err
		}
		content += tok
	}
	return FinalResult{
		Content:      content,
		Usage:        types.Usage{GenerateTokens: int32(len(s.a.tokens))},
		FinishReason: "stop",
	}, nil
}

func (s *fakeSession) Close() error {
	s.a.mu.Lock()
	s.a.closes++
	s.a.mu.Unlock()
	return nil
}

func (s *fakeSession) KVCacheTokens() uint64 { return 7 }

// newTestManager builds a manager over a real temp model file and a fake
// adapter.
func newTestManager(t *testing.T, cfg ManagerConfig, a InferenceAdapter) *Manager {
	t.Helper()
	m := NewWithConfig(cfg)
	if a != nil {
		m.SetInferenceAdapter(a)
	}
	return m
}
