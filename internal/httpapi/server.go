package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rkllmd/pkg/rkllm"
	"rkllmd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Infer(ctx context.Context, req types.InferRequest, w io.Writer, flush func()) error
	Switch(ctx context.Context, modelID string) (string, error)
	Unload(modelID string) error
	Ready() bool
}

// modelRef is the request body for /switch and /unload.
type modelRef struct {
	Model string `json:"model"`
}

// lineCountingWriter counts complete NDJSON lines passing through it so the
// token counter reflects what was actually flushed to the client.
type lineCountingWriter struct {
	w     io.Writer
	lines int
}

func (lc *lineCountingWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			lc.lines++
		}
	}
	return lc.w.Write(p)
}

// NewMux builds the daemon's HTTP handler.
//
// Routes: GET /models, /status, /capability, /healthz, /readyz, /metrics;
// POST /infer (NDJSON stream); GET /v1/generate/ws (websocket stream).
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// ListModels godoc
	// @Summary List available models
	// @Produce json
	// @Success 200 {object} types.ModelsResponse
	// @Router /models [get]
	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.ModelsResponse{Models: svc.ListModels()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	// Status godoc
	// @Summary Daemon and instance status
	// @Produce json
	// @Success 200 {object} types.StatusResponse
	// @Router /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	// Capability godoc
	// @Summary Report usable native call paths
	// @Produce json
	// @Success 200 {object} types.CapabilityResponse
	// @Router /capability [get]
	r.Get("/capability", func(w http.ResponseWriter, r *http.Request) {
		rep := rkllm.Detect()
		resp := types.CapabilityResponse{
			CompiledExt:    rep.CompiledExt,
			DynamicLib:     rep.DynamicLib,
			Selected:       defaultSelection(rep),
			RuntimeName:    rep.RuntimeName,
			RuntimeVersion: rep.RuntimeVersion,
			OS:             rep.OS,
			Arch:           rep.Arch,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	// Infer godoc
	// @Summary Run generation, streaming NDJSON token events
	// @Accept json
	// @Produce x-ndjson
	// @Param request body types.InferRequest true "generation request"
	// @Success 200 {object} types.TokenEvent
	// @Failure 400 {object} types.ErrorResponse
	// @Failure 404 {object} types.ErrorResponse
	// @Failure 429 {object} types.ErrorResponse
	// @Failure 503 {object} types.ErrorResponse
	// @Router /infer [post]
	r.Post("/infer", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeInferRequest(w, r)
		if !ok {
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		start := time.Now()
		lvl := requestLogLevel(r)
		counter := &lineCountingWriter{w: w}
		writer := io.Writer(counter)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(counter, &loggingLineWriter{})
		}
		rid := middleware.GetReqID(r.Context())

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if generateTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, time.Duration(generateTimeout)*time.Second)
			defer tcancel()
		}

		err := svc.Infer(ctx, req, writer, flush)
		countStreamedTokens("ndjson", counter.lines)
		durMS := time.Since(start).Milliseconds()
		if err != nil {
			// Client disconnect or server shutdown: nothing left to send.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusForError(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("queue")
			}
			writeJSONError(w, status, err.Error())
			if lvl >= LevelInfo {
				logRequestEnd(rid, r.URL.Path, status, durMS, err)
			}
			return
		}
		if lvl >= LevelInfo {
			logRequestEnd(rid, r.URL.Path, http.StatusOK, durMS, nil)
		}
	})

	// Switch godoc
	// @Summary Preload a model instance in the background
	// @Accept json
	// @Produce json
	// @Success 202 {object} map[string]string
	// @Failure 404 {object} types.ErrorResponse
	// @Router /switch [post]
	r.Post("/switch", func(w http.ResponseWriter, r *http.Request) {
		ref, ok := decodeModelRef(w, r)
		if !ok {
			return
		}
		opID, err := svc.Switch(r.Context(), ref.Model)
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"op_id": opID, "model": ref.Model})
	})

	// Unload godoc
	// @Summary Unload a resident model instance
	// @Accept json
	// @Produce json
	// @Success 200 {object} map[string]string
	// @Failure 404 {object} types.ErrorResponse
	// @Router /unload [post]
	r.Post("/unload", func(w http.ResponseWriter, r *http.Request) {
		ref, ok := decodeModelRef(w, r)
		if !ok {
			return
		}
		if err := svc.Unload(ref.Model); err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"model": ref.Model, "state": "unloaded"})
	})

	r.Get("/v1/generate/ws", func(w http.ResponseWriter, r *http.Request) {
		serveGenerateWS(svc, w, r)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeInferRequest validates content type, size and shape of a generate
// request body. On failure it writes the error response and returns ok=false.
func decodeInferRequest(w http.ResponseWriter, r *http.Request) (types.InferRequest, bool) {
	var req types.InferRequest
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return req, false
	}
	return req, true
}

// decodeModelRef validates content type and shape of a model reference body.
func decodeModelRef(w http.ResponseWriter, r *http.Request) (modelRef, bool) {
	var ref modelRef
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return ref, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return ref, false
	}
	if strings.TrimSpace(ref.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return ref, false
	}
	return ref, true
}

// defaultSelection mirrors the runtime's default call-path policy without
// touching its process-wide cache.
func defaultSelection(rep rkllm.CapabilityReport) string {
	switch {
	case rep.DynamicLib:
		return rkllm.PathDynamicLib.String()
	case rep.CompiledExt:
		return rkllm.PathCompiledExt.String()
	}
	return "none"
}
