package manager

import (
	"time"

	"rkllmd/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, CurrentModel: m.cur, Err: m.err}
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		BudgetMB:       m.budgetMB,
		UsedMB:         m.usedEstMB,
		MarginMB:       m.marginMB,
		Error:          m.err,
		LastError:      m.err,
		State:          string(m.state),
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
		EvictionsTotal: m.evictionsTotal.Load(),
		LoadsTotal:     m.loadsTotal.Load(),
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(m.instances))
	warmups := 0
	draining := 0
	for _, inst := range m.instances {
		if inst.State == StateLoading {
			warmups++
		}
		if inst.State == StateDraining {
			draining++
		}
		st := types.InstanceStatus{
			ModelID:       inst.ID,
			State:         string(inst.State),
			LastUsed:      inst.LastUsed.Unix(),
			EstMemMB:      inst.EstMemMB,
			QueueLen:      len(inst.queueCh),
			Inflight:      len(inst.genCh),
			MaxQueueDepth: cap(inst.queueCh),
			CallPath:      inst.CallPath,
		}
		if kv, ok := inst.sess.(kvReporter); ok {
			st.KVCacheTokens = kv.KVCacheTokens()
		}
		resp.Instances = append(resp.Instances, st)
	}
	resp.WarmupsInProgress = warmups
	resp.DrainingCount = draining
	return resp
}
