package model

import (
	"sort"
	"time"
)

// SnapshotEntry is the last-known-good state of one tracked field.
type SnapshotEntry struct {
	Value     FieldValue
	Raw       string
	UpdatedAt time.Time
	// Cycle is the cycle sequence number of the last successful parse.
	Cycle uint64
	// Misses counts consecutive cycles without a successful parse.
	Misses int
	Stale  bool
	// touched marks whether the field was attempted this cycle.
	touchedCycle uint64
	hasValue     bool
}

// HasValue reports whether the entry ever held a validated reading.
func (e *SnapshotEntry) HasValue() bool { return e.hasValue }

// DeviceSnapshot maps field names to their most recent validated readings.
// It is owned by the aggregator and mutated only on the scheduler goroutine,
// so no locking is needed.
type DeviceSnapshot struct {
	entries map[string]*SnapshotEntry
}

// NewDeviceSnapshot tracks exactly the given field names.
func NewDeviceSnapshot(fields []string) *DeviceSnapshot {
	s := &DeviceSnapshot{entries: make(map[string]*SnapshotEntry, len(fields))}
	for _, f := range fields {
		s.entries[f] = &SnapshotEntry{}
	}
	return s
}

// Entry returns the mutable entry for a tracked field, or nil for unknown
// names.
func (s *DeviceSnapshot) Entry(field string) *SnapshotEntry {
	return s.entries[field]
}

// Get returns a copy of the entry for read-only callers.
func (s *DeviceSnapshot) Get(field string) (SnapshotEntry, bool) {
	e, ok := s.entries[field]
	if !ok {
		return SnapshotEntry{}, false
	}
	return *e, true
}

// Fields returns the tracked field names in stable order.
func (s *DeviceSnapshot) Fields() []string {
	out := make([]string, 0, len(s.entries))
	for f := range s.entries {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// StaleCount reports how many tracked fields are currently flagged stale.
func (s *DeviceSnapshot) StaleCount() int {
	n := 0
	for _, e := range s.entries {
		if e.Stale {
			n++
		}
	}
	return n
}

// Touch records that the field was attempted during the given cycle,
// regardless of parse outcome.
func (e *SnapshotEntry) Touch(cycle uint64) { e.touchedCycle = cycle }

// TouchedIn reports whether the field was attempted during the given cycle.
func (e *SnapshotEntry) TouchedIn(cycle uint64) bool { return e.touchedCycle == cycle }

// Update overwrites the entry with a validated reading and clears the miss
// state.
func (e *SnapshotEntry) Update(v FieldValue, raw string, at time.Time, cycle uint64) {
	e.Value = v
	e.Raw = raw
	e.UpdatedAt = at
	e.Cycle = cycle
	e.Misses = 0
	e.Stale = false
	e.hasValue = true
}

// Miss increments the consecutive-miss counter and returns the new count.
// The last good value is retained.
func (e *SnapshotEntry) Miss() int {
	e.Misses++
	return e.Misses
}
