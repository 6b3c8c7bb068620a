package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rkllmd/internal/config"
	"rkllmd/internal/httpapi"
	"rkllmd/internal/manager"
	"rkllmd/internal/registry"
)

func main() {
	defaultAddr := ":8080"
	if v := os.Getenv("RKLLMD_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8080")
	modelsDir := flag.String("models-dir", "~/models/rkllm", "Directory to scan for *.rkllm model files")
	memBudgetMB := flag.Int("mem-budget-mb", 0, "Memory budget in MB for all instances (0=unlimited)")
	memMarginMB := flag.Int("mem-margin-mb", 0, "Reserved memory margin in MB to keep free")
	defaultModel := flag.String("default-model", "", "Default model id when request omits model")
	callPath := flag.String("call-path", "", "Native call path: auto, compiled-ext or dynamic-lib")
	libPath := flag.String("lib-path", "", "librkllmrt.so location for the dynamic-lib path")
	maxContextLen := flag.Int("max-context-len", 0, "Max context length passed to the runtime (0=vendor default)")
	maxNewTokens := flag.Int("max-new-tokens", 0, "Max new tokens per generation (0=vendor default)")
	temperature := flag.Float64("temperature", 0, "Sampling temperature (0=vendor default)")
	topK := flag.Int("top-k", 0, "Sampling top-k (0=vendor default)")
	topP := flag.Float64("top-p", 0, "Sampling top-p (0=vendor default)")
	lruState := flag.String("lru-state", "", "Path for persisted instance LRU metadata")
	configPath := flag.String("config", "", "Optional config file (yaml, json or toml); flags override it")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	genTimeoutSec := flag.Int64("generate-timeout-sec", 0, "Per-request generation timeout in seconds (0 disables)")
	logJSON := flag.Bool("log-json", false, "Emit structured JSON logs")
	flag.Parse()

	logger := newLogger(*logJSON)

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		applyConfig(cfg, addr, modelsDir, memBudgetMB, memMarginMB, defaultModel,
			callPath, libPath, maxContextLen, maxNewTokens, temperature, topK, topP)
	}
	if *libPath != "" {
		os.Setenv("RKLLM_LIB_PATH", *libPath)
	}

	reg, err := registry.LoadDir(*modelsDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", *modelsDir).Msg("failed to load models")
	}

	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Registry:      reg,
		BudgetMB:      *memBudgetMB,
		MarginMB:      *memMarginMB,
		DefaultModel:  *defaultModel,
		LRUStatePath:  *lruState,
		CallPath:      *callPath,
		MaxContextLen: *maxContextLen,
		MaxNewTokens:  *maxNewTokens,
		Temperature:   float32(*temperature),
		TopK:          *topK,
		TopP:          float32(*topP),
	})

	if rep := mgr.SanityCheck(); !rep.Usable {
		logger.Warn().Str("os", rep.OS).Str("arch", rep.Arch).
			Msg("no usable NPU call path; generation requests will fail")
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(logger)
	httpapi.SetGenerateTimeoutSeconds(*genTimeoutSec)
	if origins := splitCSV(*corsOrigins); len(origins) > 0 {
		httpapi.SetCORSOptions(true, origins,
			[]string{"GET", "POST", "OPTIONS"}, []string{"Content-Type", "X-Log-Level"})
	}

	mux := httpapi.NewMux(mgr)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", *addr).Str("models_dir", *modelsDir).Msg("rkllmd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	baseCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	if err := mgr.Close(); err != nil {
		logger.Error().Err(err).Msg("manager close error")
	}
}

func newLogger(jsonOut bool) zerolog.Logger {
	if jsonOut {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// applyConfig fills in values from the config file for flags left at their
// zero defaults. Explicit flags win.
func applyConfig(cfg config.Config, addr, modelsDir *string, memBudgetMB, memMarginMB *int,
	defaultModel, callPath, libPath *string, maxContextLen, maxNewTokens *int,
	temperature *float64, topK *int, topP *float64) {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["addr"] && cfg.Addr != "" {
		*addr = cfg.Addr
	}
	if !set["models-dir"] && cfg.ModelsDir != "" {
		*modelsDir = cfg.ModelsDir
	}
	if !set["mem-budget-mb"] && cfg.MemBudgetMB != 0 {
		*memBudgetMB = cfg.MemBudgetMB
	}
	if !set["mem-margin-mb"] && cfg.MemMarginMB != 0 {
		*memMarginMB = cfg.MemMarginMB
	}
	if !set["default-model"] && cfg.DefaultModel != "" {
		*defaultModel = cfg.DefaultModel
	}
	if !set["call-path"] && cfg.CallPath != "" {
		*callPath = cfg.CallPath
	}
	if !set["lib-path"] && cfg.LibPath != "" {
		*libPath = cfg.LibPath
	}
	if !set["max-context-len"] && cfg.MaxContextLen != 0 {
		*maxContextLen = cfg.MaxContextLen
	}
	if !set["max-new-tokens"] && cfg.MaxNewTokens != 0 {
		*maxNewTokens = cfg.MaxNewTokens
	}
	if !set["temperature"] && cfg.Temperature != 0 {
		*temperature = cfg.Temperature
	}
	if !set["top-k"] && cfg.TopK != 0 {
		*topK = cfg.TopK
	}
	if !set["top-p"] && cfg.TopP != 0 {
		*topP = cfg.TopP
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		p := strings.TrimSpace(part)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
