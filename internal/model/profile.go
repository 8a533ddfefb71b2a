package model

import "time"

// MarkerSpec identifies a screen by the pixel signature of a small fixed
// region, checked without OCR.
type MarkerSpec struct {
	Box Box
	// Hash is the expected 8x8 average-hash of the marker region.
	Hash uint64
	// MeanLuma is the expected average brightness of the region (0-255).
	MeanLuma uint8
	// Tolerance is the maximum accepted Hamming distance against Hash.
	Tolerance int
}

// ScreenLayout is the immutable description of one console screen: its
// marker plus the ordered set of fields readable on it.
type ScreenLayout struct {
	ID     string
	Marker MarkerSpec
	Fields []FieldDefinition
}

// InputKind distinguishes the two fire-and-forget UI inputs.
type InputKind string

const (
	InputPointer InputKind = "pointer"
	InputKey     InputKind = "key"
)

// Input is one UI action replayed while traversing an edge. Wait is the
// settle time granted to the console after the action.
type Input struct {
	Kind   InputKind
	X, Y   int
	Button uint8
	Key    uint32
	Wait   time.Duration
}

// Edge connects two screens with the input sequence that moves between
// them. From may be the wildcard "*" for inputs valid from any screen
// (e.g. a fixed home button).
type Edge struct {
	From   string
	To     string
	Inputs []Input
}

// EdgeWildcard marks an edge traversable from any screen.
const EdgeWildcard = "*"

// Profile is the full immutable device description loaded once at startup.
type Profile struct {
	Home     string
	Rotation []string
	Screens  map[string]ScreenLayout
	Edges    []Edge
}

// FieldNames returns every tracked field name, including secondary names,
// across all screens.
func (p *Profile) FieldNames() []string {
	var out []string
	for _, s := range p.Screens {
		for _, f := range s.Fields {
			out = append(out, f.Name)
			if f.Secondary != "" {
				out = append(out, f.Secondary)
			}
		}
	}
	return out
}
