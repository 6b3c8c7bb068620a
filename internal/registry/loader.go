package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rkllmd/internal/common/fsutil"
	"rkllmd/pkg/types"
)

// RKLLMScanner discovers .rkllm model files in a directory.
type RKLLMScanner struct{}

// NewRKLLMScanner returns a directory scanner for .rkllm files.
func NewRKLLMScanner() *RKLLMScanner { return &RKLLMScanner{} }

// Scan walks dir (non-recursively) for *.rkllm files and builds a registry
// from filenames. ID is the full filename (including extension); Path is the
// absolute file path. Quant and Family are best-effort guesses from the
// filename; SizeBytes comes from the file itself.
func (s *RKLLMScanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".rkllm") {
			continue
		}
		// Use full filename as ID (e.g., "qwen2.5-1.5b-w8a8.rkllm")
		m := types.Model{
			ID:     name,
			Name:   name,
			Path:   filepath.Join(abs, name),
			Quant:  guessQuant(name),
			Family: guessFamily(name),
		}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		models = append(models, m)
	}
	return models, nil
}

// LoadDir scans a directory with the default scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewRKLLMScanner().Scan(dir)
}

// guessQuant extracts a quantization marker from a model filename.
func guessQuant(name string) string {
	lower := strings.ToLower(name)
	for _, q := range []string{"w8a8_g128", "w8a8_g256", "w8a8_g512", "w4a16_g32", "w4a16_g64", "w4a16_g128", "w8a8", "w4a16"} {
		if strings.Contains(lower, q) {
			return q
		}
	}
	return ""
}

// guessFamily extracts a known model family from a filename.
func guessFamily(name string) string {
	lower := strings.ToLower(name)
	for _, f := range []string{"qwen", "deepseek", "llama", "phi", "gemma", "minicpm", "chatglm", "internlm"} {
		if strings.Contains(lower, f) {
			return f
		}
	}
	return ""
}
