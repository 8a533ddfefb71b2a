package publish

import (
	"context"
	"sync"
	"time"

	"heatvision-agent/internal/model"
)

// Sink delivers reading events to the broker. Delivery failures are the
// sink's concern (retry or drop); the scheduler treats Publish as
// fire-and-forget.
type Sink interface {
	Publish(ctx context.Context, events []model.PublishEvent) error
	Close(ctx context.Context) error
}

// EventFrame is the transport framing for stream sinks.
type EventFrame struct {
	AgentID       string               `json:"agent_id"`
	TimestampUnix int64                `json:"timestamp_unix"`
	Events        []model.PublishEvent `json:"events"`
}

func NewEventFrame(agentID string, events []model.PublishEvent) EventFrame {
	return EventFrame{
		AgentID:       agentID,
		TimestampUnix: time.Now().UTC().Unix(),
		Events:        append([]model.PublishEvent(nil), events...),
	}
}

// OrderingGuard enforces per-field ordering in front of any sink: an event
// whose cycle sequence number is older than the last one sent for that
// field path is discarded.
type OrderingGuard struct {
	mu       sync.Mutex
	next     Sink
	lastSent map[string]uint64
}

func NewOrderingGuard(next Sink) *OrderingGuard {
	return &OrderingGuard{next: next, lastSent: make(map[string]uint64)}
}

func (g *OrderingGuard) Publish(ctx context.Context, events []model.PublishEvent) error {
	g.mu.Lock()
	kept := events[:0:0]
	for _, e := range events {
		if last, ok := g.lastSent[e.Path]; ok && e.Cycle < last {
			continue
		}
		g.lastSent[e.Path] = e.Cycle
		kept = append(kept, e)
	}
	g.mu.Unlock()

	if len(kept) == 0 {
		return nil
	}
	return g.next.Publish(ctx, kept)
}

func (g *OrderingGuard) Close(ctx context.Context) error {
	return g.next.Close(ctx)
}
