package model

import (
	"fmt"
	"image"
	"time"
)

// RawCapture is one full framebuffer snapshot taken during navigation.
// Discarded after its fields are extracted.
type RawCapture struct {
	Image image.Image
	// Screen is the navigator's verified identity of the visible screen.
	Screen string
	At     time.Time
}

// FieldValue is a validated, typed reading.
type FieldValue struct {
	Kind   ValueKind `json:"kind"`
	Number float64   `json:"number,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// Equal compares two values, exact for enum/text and within epsilon for
// numeric readings.
func (v FieldValue) Equal(o FieldValue, epsilon float64) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == KindNumeric {
		d := v.Number - o.Number
		if d < 0 {
			d = -d
		}
		return d <= epsilon
	}
	return v.Text == o.Text
}

// Payload returns the wire representation of the value.
func (v FieldValue) Payload() any {
	if v.Kind == KindNumeric {
		return v.Number
	}
	return v.Text
}

func (v FieldValue) String() string {
	if v.Kind == KindNumeric {
		return fmt.Sprintf("%g", v.Number)
	}
	return v.Text
}

// ExtractedValue is the per-cycle outcome of recognizing one field. Value is
// nil when the raw text failed validation.
type ExtractedValue struct {
	Field string
	Raw   string
	Value *FieldValue
	At    time.Time
}
