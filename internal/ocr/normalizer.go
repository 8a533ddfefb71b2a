package ocr

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"heatvision-agent/internal/model"
)

// unitScales maps recognized unit suffixes to the multiplier that brings
// the value to its canonical unit (W for power, kWh for energy). Longer
// suffixes must be listed first.
var unitScales = []struct {
	suffix string
	scale  float64
}{
	{"mwh", 1000},
	{"kwh", 1},
	{"kw", 1000},
	{"w", 1},
	{"°c", 1},
}

// Normalize parses one field's raw recognition into typed values: the
// primary value, plus the bracketed secondary value when the field defines
// one and the text contains it. Failed parses yield entries with a nil
// Value and a matching ParseError so the aggregator can count the miss.
func Normalize(def model.FieldDefinition, raw string, at time.Time) ([]model.ExtractedValue, []error) {
	primary, secondary, hasSecondary := splitSecondary(def, raw)

	var (
		out  []model.ExtractedValue
		errs []error
	)

	v, err := parse(def.Name, def.Rule, primary)
	if err != nil {
		errs = append(errs, err)
	}
	out = append(out, model.ExtractedValue{Field: def.Name, Raw: primary, Value: v, At: at})

	if hasSecondary {
		rule := def.SecondaryRule
		if rule.Numeric == nil && rule.Enum == nil && !rule.Text {
			rule = def.Rule
		}
		sv, serr := parse(def.Secondary, rule, secondary)
		if serr != nil {
			errs = append(errs, serr)
		}
		out = append(out, model.ExtractedValue{Field: def.Secondary, Raw: secondary, Value: sv, At: at})
	}
	return out, errs
}

// splitSecondary separates "48.0 (50.0)" into primary and secondary parts
// for fields that define a secondary name.
func splitSecondary(def model.FieldDefinition, raw string) (primary, secondary string, ok bool) {
	if def.Secondary == "" || !strings.Contains(raw, "(") {
		return raw, "", false
	}
	parts := strings.SplitN(raw, "(", 2)
	secondary = strings.TrimSpace(parts[1])
	secondary = strings.TrimSuffix(secondary, ")")
	return parts[0], strings.TrimSpace(secondary), true
}

func parse(field string, rule model.ParseRule, raw string) (*model.FieldValue, error) {
	switch rule.Kind() {
	case model.KindNumeric:
		n, err := parseNumeric(field, rule.Numeric, raw)
		if err != nil {
			return nil, err
		}
		return &model.FieldValue{Kind: model.KindNumeric, Number: n}, nil
	case model.KindEnum:
		label, err := parseEnum(field, rule.Enum, raw)
		if err != nil {
			return nil, err
		}
		return &model.FieldValue{Kind: model.KindEnum, Text: label}, nil
	default:
		return &model.FieldValue{Kind: model.KindText, Text: strings.TrimSpace(raw)}, nil
	}
}

func parseNumeric(field string, rule *model.NumericRule, raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &ParseError{Field: field, Raw: raw, Reason: "empty recognition"}
	}

	scale := 1.0
	if rule.Units {
		s, scale = stripUnit(s)
		s = strings.TrimSpace(s)
	}
	s = strings.ReplaceAll(s, " ", "")

	dec := rule.DecimalSep
	if dec == "" {
		dec = "."
	}
	thousands := ","
	if dec == "," {
		thousands = "."
	}
	s = strings.ReplaceAll(s, thousands, "")
	s = strings.ReplaceAll(s, dec, ".")

	if err := checkNumericResidue(s); err != "" {
		return 0, &ParseError{Field: field, Raw: raw, Reason: err}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParseError{Field: field, Raw: raw, Reason: "not a number"}
	}
	v *= scale

	if v < rule.Min || v > rule.Max {
		return 0, &ParseError{Field: field, Raw: raw, Reason: "value out of range"}
	}
	return v, nil
}

// checkNumericResidue rejects any character the numeric grammar does not
// allow; OCR noise must fail loudly instead of being silently dropped.
func checkNumericResidue(s string) string {
	if s == "" || s == "-" {
		return "empty after cleanup"
	}
	dots := 0
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
		case r == '.':
			dots++
		case r == '-' && i == 0:
		default:
			return "residual non-numeric characters"
		}
	}
	if dots > 1 {
		return "multiple decimal separators"
	}
	return ""
}

// stripUnit removes a trailing unit suffix, tolerating the case garbling
// OCR produces ("Kwh", "kKW"), and returns the multiplier to apply.
func stripUnit(s string) (string, float64) {
	lower := strings.ToLower(strings.TrimSpace(s))
	lower = strings.ReplaceAll(lower, "kk", "k")
	for _, u := range unitScales {
		if strings.HasSuffix(lower, u.suffix) {
			cut := len(lower) - len(u.suffix)
			return lower[:cut], u.scale
		}
	}
	return s, 1
}

func parseEnum(field string, rule *model.EnumRule, raw string) (string, error) {
	norm := normalizeLabel(raw)
	if norm == "" {
		return "", &ParseError{Field: field, Raw: raw, Reason: "empty recognition"}
	}

	best := -1
	bestLabel := ""
	for _, label := range rule.Labels {
		d := levenshtein(norm, normalizeLabel(label))
		if d <= rule.MaxDistance && (best == -1 || d < best) {
			best = d
			bestLabel = label
		}
	}
	if best == -1 {
		return "", &ParseError{Field: field, Raw: raw, Reason: "no label within tolerance"}
	}
	return bestLabel, nil
}

// normalizeLabel lowers case and collapses internal whitespace so that
// comparisons are case- and spacing-insensitive.
func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
