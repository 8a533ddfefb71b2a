package model

import "time"

// EventReason says why a reading was emitted.
type EventReason string

const (
	ReasonChanged     EventReason = "changed"
	ReasonFullRefresh EventReason = "full_refresh"
)

// PublishEvent is one reading handed to the publish sink. Cycle is the
// monotonic cycle sequence number used by the ordering guard.
type PublishEvent struct {
	Path   string      `json:"path"`
	Value  any         `json:"value"`
	Raw    string      `json:"raw,omitempty"`
	Cycle  uint64      `json:"cycle"`
	At     time.Time   `json:"at"`
	Reason EventReason `json:"reason"`
}
