package manager

import "context"

// Switch kicks off an async model switch/ensure and returns an operation ID.
// The operation runs in the background; callers can poll Status() to observe
// state transitions.
func (m *Manager) Switch(ctx context.Context, modelID string) (string, error) {
	if modelID == "" {
		modelID = m.defaultModel
	}
	if _, ok := m.getModelByID(modelID); !ok {
		return "", modelNotFoundError{id: modelID}
	}
	op := m.nextOpID()
	go func(opID string) {
		// Use a detached context so background work isn't canceled when the
		// caller context is canceled.
		_ = m.EnsureInstance(context.Background(), modelID)
	}(op)
	return op, nil
}
