package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestRKLLMScanner_ScanFiltersRKLLM(t *testing.T) {
	dir := t.TempDir()
	// create files
	files := []string{
		"a.rkllm",
		"b.RKLLM", // case-insensitive
		"not-model.txt",
		"model.gguf",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	s := NewRKLLMScanner()
	models, err := s.Scan(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	// ensure IDs are filenames
	ids := []string{models[0].ID, models[1].ID}
	for _, id := range ids {
		if !strings.HasSuffix(strings.ToLower(id), ".rkllm") {
			t.Fatalf("id not rkllm: %s", id)
		}
	}
}

func TestRKLLMScanner_Metadata(t *testing.T) {
	dir := t.TempDir()
	name := "Qwen2.5-1.5B-w8a8.rkllm"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	m := models[0]
	if m.Quant != "w8a8" || m.Family != "qwen" {
		t.Fatalf("metadata guess: quant=%q family=%q", m.Quant, m.Family)
	}
	if m.SizeBytes != 10 {
		t.Fatalf("size = %d, want 10", m.SizeBytes)
	}
	if !filepath.IsAbs(m.Path) {
		t.Fatalf("path not absolute: %s", m.Path)
	}
}

func TestRKLLMScanner_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	// create temporary directory under home
	hTmp, err := os.MkdirTemp(home, "rkllmd-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	// create a rkllm file inside it
	if err := os.WriteFile(filepath.Join(hTmp, "x.rkllm"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// build path with ~ prefix
	var tildePath string
	if runtime.GOOS == "windows" {
		// On Windows, home might contain drive; expandHome still handles ~/<rest>
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	s := NewRKLLMScanner()
	models, err := s.Scan(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.rkllm" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestLoadDirWrapper(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "m.rkllm"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 1 || models[0].ID != "m.rkllm" {
		t.Fatalf("unexpected: %+v", models)
	}
}
