package manager

import (
	"context"
	"encoding/json"
	"io"

	"rkllmd/pkg/types"
)

// Infer centralizes inference behavior. It ensures the model instance is
// loaded, runs the request on the instance's session, and streams NDJSON
// token lines to the provided writer, ending with a done line carrying the
// aggregated content and usage.
func (m *Manager) Infer(ctx context.Context, req types.InferRequest, w io.Writer, flusher func()) error {
	// Resolve target model id
	modelID := req.Model
	if modelID == "" {
		modelID = m.defaultModel
		if modelID == "" {
			// No model specified and no default configured
			return modelNotFoundError{id: "(unspecified)"}
		}
	}
	if err := m.EnsureInstance(ctx, modelID); err != nil {
		return err
	}
	// Admission: per-instance FIFO queue, single in-flight
	release, err := m.beginGeneration(ctx, modelID)
	if err != nil {
		return err
	}
	defer release()

	m.mu.RLock()
	inst := m.instances[modelID]
	var sess InferSession
	if inst != nil {
		sess = inst.sess
	}
	m.mu.RUnlock()
	if sess == nil {
		return ErrDependencyUnavailable("no runtime session for " + modelID)
	}

	onTok := func(tok Token) error {
		if _, e := w.Write(tokenLineJSON(tok)); e != nil {
			return e
		}
		if flusher != nil {
			flusher()
		}
		return nil
	}
	final, err := sess.Generate(ctx, GenerateRequest{
		Prompt:         req.Prompt,
		Role:           req.Role,
		KeepHistory:    req.KeepHistory,
		EnableThinking: req.EnableThinking,
		Adapters:       req.Adapters,
	}, onTok)
	if err != nil {
		return err
	}
	end := types.TokenEvent{
		Done:         true,
		Content:      final.Content,
		FinishReason: final.FinishReason,
		Usage:        &final.Usage,
	}
	jb, _ := json.Marshal(end)
	if _, err := w.Write(append(jb, '\n')); err != nil {
		return err
	}
	if flusher != nil {
		flusher()
	}
	return nil
}

// tokenLineJSON formats a token NDJSON line using json.Marshal for correctness.
func tokenLineJSON(tok Token) []byte {
	b, _ := json.Marshal(types.TokenEvent{Token: tok.Text, TokenID: tok.ID})
	return append(b, '\n')
}
