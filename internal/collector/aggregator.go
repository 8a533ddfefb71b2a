package collector

import (
	"log/slog"

	"heatvision-agent/internal/metrics"
	"heatvision-agent/internal/model"
)

// Aggregator owns the device snapshot: it merges each cycle's extracted
// values, detects changes and tracks per-field staleness. A snapshot entry
// is overwritten only by a value that passed validation.
type Aggregator struct {
	snap             *model.DeviceSnapshot
	epsilon          float64
	staleAfter       int
	fullRefreshEvery uint64
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

func NewAggregator(fields []string, epsilon float64, staleAfter int, fullRefreshEvery int, logger *slog.Logger, m *metrics.Metrics) *Aggregator {
	if staleAfter <= 0 {
		staleAfter = 3
	}
	if fullRefreshEvery < 0 {
		fullRefreshEvery = 0
	}
	return &Aggregator{
		snap:             model.NewDeviceSnapshot(fields),
		epsilon:          epsilon,
		staleAfter:       staleAfter,
		fullRefreshEvery: uint64(fullRefreshEvery),
		logger:           logger,
		metrics:          m,
	}
}

// Snapshot exposes the canonical readings for health reporting.
func (a *Aggregator) Snapshot() *model.DeviceSnapshot { return a.snap }

// Aggregate merges one complete cycle's values atomically and returns the
// events to publish: changed readings, or every known reading on a full
// refresh boundary. Fields without a validated value this cycle keep their
// previous reading and accrue a miss.
func (a *Aggregator) Aggregate(cycle uint64, values []model.ExtractedValue) []model.PublishEvent {
	fullRefresh := a.fullRefreshEvery > 0 && cycle%a.fullRefreshEvery == 0

	var events []model.PublishEvent
	for _, v := range values {
		entry := a.snap.Entry(v.Field)
		if entry == nil {
			a.logger.Warn("extracted value for untracked field", "field", v.Field)
			continue
		}
		entry.Touch(cycle)
		if v.Value == nil {
			a.miss(v.Field, entry)
			continue
		}

		changed := !entry.HasValue() || !entry.Value.Equal(*v.Value, a.epsilon)
		entry.Update(*v.Value, v.Raw, v.At, cycle)
		if changed && !fullRefresh {
			events = append(events, a.event(v.Field, entry, cycle, model.ReasonChanged))
		}
	}

	// Fields whose screen was never reached this cycle miss as well.
	for _, f := range a.snap.Fields() {
		entry := a.snap.Entry(f)
		if !entry.TouchedIn(cycle) {
			a.miss(f, entry)
		}
	}

	if fullRefresh {
		for _, f := range a.snap.Fields() {
			entry := a.snap.Entry(f)
			if entry.HasValue() {
				events = append(events, a.event(f, entry, cycle, model.ReasonFullRefresh))
			}
		}
	}

	a.metrics.StaleFields.Set(float64(a.snap.StaleCount()))
	return events
}

func (a *Aggregator) miss(field string, entry *model.SnapshotEntry) {
	misses := entry.Miss()
	if misses >= a.staleAfter && !entry.Stale {
		entry.Stale = true
		a.logger.Warn("field went stale", "field", field, "misses", misses)
	}
}

func (a *Aggregator) event(field string, entry *model.SnapshotEntry, cycle uint64, reason model.EventReason) model.PublishEvent {
	return model.PublishEvent{
		Path:   field,
		Value:  entry.Value.Payload(),
		Raw:    entry.Raw,
		Cycle:  cycle,
		At:     entry.UpdatedAt,
		Reason: reason,
	}
}
