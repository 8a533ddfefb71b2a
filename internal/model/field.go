package model

// ValueKind classifies what a console field is expected to contain.
type ValueKind string

const (
	KindNumeric ValueKind = "numeric"
	KindEnum    ValueKind = "enum"
	KindText    ValueKind = "text"
)

// PreprocessStep is one deterministic image transform applied to a field
// region before recognition. Grayscale conversion always happens first and
// is not listed here.
type PreprocessStep string

const (
	PreprocessInvert    PreprocessStep = "invert"
	PreprocessContrast  PreprocessStep = "contrast"
	PreprocessThreshold PreprocessStep = "threshold"
	PreprocessUpscale   PreprocessStep = "upscale"
)

// Box is a pixel rectangle in screen coordinates, upper-left origin,
// X1/Y1 exclusive.
type Box struct {
	X0 int `yaml:"x0" json:"x0"`
	Y0 int `yaml:"y0" json:"y0"`
	X1 int `yaml:"x1" json:"x1"`
	Y1 int `yaml:"y1" json:"y1"`
}

func (b Box) Width() int  { return b.X1 - b.X0 }
func (b Box) Height() int { return b.Y1 - b.Y0 }

func (b Box) Empty() bool { return b.Width() <= 0 || b.Height() <= 0 }

// NumericRule parses a localized decimal number and validates its range.
type NumericRule struct {
	// DecimalSep is the decimal separator printed by the console ("," or ".").
	DecimalSep string
	// Min/Max bound the accepted value range, inclusive.
	Min float64
	Max float64
	// Units enables unit-suffix handling: a recognized unit is stripped and
	// its multiplier applied before range validation (kW and MWh scale by
	// 1000, W, kWh and °C by 1).
	Units bool
}

// EnumRule matches the recognized text against a closed label set with a
// bounded edit-distance tolerance.
type EnumRule struct {
	Labels      []string
	MaxDistance int
}

// ParseRule is a closed variant: exactly one branch is non-nil (Text is
// marked by the boolean since it carries no parameters).
type ParseRule struct {
	Numeric *NumericRule
	Enum    *EnumRule
	Text    bool
}

// Kind reports which branch of the variant is set.
func (r ParseRule) Kind() ValueKind {
	switch {
	case r.Numeric != nil:
		return KindNumeric
	case r.Enum != nil:
		return KindEnum
	default:
		return KindText
	}
}

// FieldDefinition describes one OCR-extracted value on one screen.
// Immutable after profile load.
type FieldDefinition struct {
	Name string
	// Secondary names an optional trailing value printed in brackets after
	// the primary one ("48.0 (50.0)"); empty means no secondary value.
	Secondary string
	Screen    string
	Box       Box
	Rule      ParseRule
	// SecondaryRule parses the bracketed part; defaults to Rule when the
	// profile does not override it.
	SecondaryRule ParseRule
	Preprocess    []PreprocessStep
	// PSM overrides the Tesseract page segmentation mode; 0 keeps the
	// engine default.
	PSM int
}
