package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir   string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	MemBudgetMB int    `json:"mem_budget_mb" yaml:"mem_budget_mb" toml:"mem_budget_mb"`
	MemMarginMB int    `json:"mem_margin_mb" yaml:"mem_margin_mb" toml:"mem_margin_mb"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	// CallPath selects how the vendor runtime is reached: auto, compiled-ext
	// or dynamic-lib.
	CallPath string `json:"call_path" yaml:"call_path" toml:"call_path"`
	// LibPath overrides the librkllmrt location for the dynamic-lib path.
	LibPath string `json:"lib_path" yaml:"lib_path" toml:"lib_path"`

	// Per-instance runtime defaults, applied when a request does not override
	// them.
	MaxContextLen int     `json:"max_context_len" yaml:"max_context_len" toml:"max_context_len"`
	MaxNewTokens  int     `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	Temperature   float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP          float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
