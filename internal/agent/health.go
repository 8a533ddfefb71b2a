package agent

import (
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	consoleConnected atomic.Bool
	brokerConnected  atomic.Bool
	lastCycle        atomic.Uint64
	lastCycleAt      atomic.Int64
	lastPublishAt    atomic.Int64
	staleFields      atomic.Int64
}

func NewHealthStatus() *HealthStatus {
	h := &HealthStatus{}
	h.consoleConnected.Store(false)
	h.brokerConnected.Store(false)
	return h
}

func (h *HealthStatus) SetConsoleConnected(ok bool) {
	h.consoleConnected.Store(ok)
}

func (h *HealthStatus) SetBrokerConnected(ok bool) {
	h.brokerConnected.Store(ok)
}

func (h *HealthStatus) MarkCycle(seq uint64, ts time.Time) {
	h.lastCycle.Store(seq)
	h.lastCycleAt.Store(ts.UnixNano())
}

func (h *HealthStatus) MarkPublish(ts time.Time) {
	h.lastPublishAt.Store(ts.UnixNano())
}

func (h *HealthStatus) SetStaleFields(n int) {
	h.staleFields.Store(int64(n))
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"console_connected": h.consoleConnected.Load(),
		"broker_connected":  h.brokerConnected.Load(),
		"stale_fields":      h.staleFields.Load(),
	}
	if v := h.lastCycle.Load(); v > 0 {
		out["last_cycle"] = v
	}
	if v := h.lastCycleAt.Load(); v > 0 {
		out["last_cycle_at"] = time.Unix(0, v).UTC()
	}
	if v := h.lastPublishAt.Load(); v > 0 {
		out["last_publish_at"] = time.Unix(0, v).UTC()
	}
	return out
}
