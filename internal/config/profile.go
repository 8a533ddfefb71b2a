package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"heatvision-agent/internal/model"
)

// profileFile is the YAML schema of the device profile: the screen graph,
// markers and field definitions recorded for one console.
type profileFile struct {
	DecimalSeparator string          `yaml:"decimal_separator"`
	HomeScreen       string          `yaml:"home_screen"`
	Rotation         []string        `yaml:"rotation"`
	Screens          []screenProfile `yaml:"screens"`
	Edges            []edgeProfile   `yaml:"edges"`
}

type screenProfile struct {
	ID     string         `yaml:"id"`
	Marker markerProfile  `yaml:"marker"`
	Fields []fieldProfile `yaml:"fields"`
}

type markerProfile struct {
	Box       [4]int `yaml:"box"`
	Hash      string `yaml:"hash"`
	MeanLuma  int    `yaml:"mean_luma"`
	Tolerance int    `yaml:"tolerance"`
}

type ruleSpec struct {
	Kind      string   `yaml:"kind"`
	Decimal   string   `yaml:"decimal"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	Units     bool     `yaml:"units"`
	Labels    []string `yaml:"labels"`
	Tolerance *int     `yaml:"tolerance"`
}

type fieldProfile struct {
	Name          string    `yaml:"name"`
	Secondary     string    `yaml:"secondary"`
	Box           [4]int    `yaml:"box"`
	Preprocess    string    `yaml:"preprocess"`
	PSM           int       `yaml:"psm"`
	SecondaryRule *ruleSpec `yaml:"secondary_rule"`
	ruleSpec      `yaml:",inline"`
}

type edgeProfile struct {
	From   string         `yaml:"from"`
	To     string         `yaml:"to"`
	Inputs []inputProfile `yaml:"inputs"`
}

type inputProfile struct {
	Click  *[2]int  `yaml:"click"`
	Key    *uint32  `yaml:"key"`
	Button *uint8   `yaml:"button"`
	Wait   duration `yaml:"wait"`
}

// duration accepts "2s" style values in YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}

// LoadProfile reads, validates and compiles the device profile. The result
// is immutable for the process lifetime.
func LoadProfile(path string) (*model.Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var pf profileFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	pf.applyDefaults()
	if err := pf.validate(); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return pf.compile()
}

func (p *profileFile) applyDefaults() {
	if p.DecimalSeparator == "" {
		p.DecimalSeparator = ","
	}
	for i := range p.Screens {
		if p.Screens[i].Marker.Tolerance == 0 {
			p.Screens[i].Marker.Tolerance = 5
		}
	}
	if len(p.Rotation) == 0 {
		for _, s := range p.Screens {
			p.Rotation = append(p.Rotation, s.ID)
		}
	}
}

func (p *profileFile) validate() error {
	if p.HomeScreen == "" {
		return fmt.Errorf("home_screen is required")
	}
	if len(p.Screens) == 0 {
		return fmt.Errorf("at least one screen must be defined")
	}

	ids := make(map[string]bool, len(p.Screens))
	fieldNames := make(map[string]string)
	for _, s := range p.Screens {
		if s.ID == "" {
			return fmt.Errorf("screen id is required")
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate screen id %q", s.ID)
		}
		ids[s.ID] = true

		if boxOf(s.Marker.Box).Empty() {
			return fmt.Errorf("screen %s: marker box is empty", s.ID)
		}
		if _, err := parseHash(s.Marker.Hash); err != nil {
			return fmt.Errorf("screen %s: %w", s.ID, err)
		}
		if s.Marker.MeanLuma < 0 || s.Marker.MeanLuma > 255 {
			return fmt.Errorf("screen %s: marker mean_luma %d is outside 0-255", s.ID, s.Marker.MeanLuma)
		}

		for _, f := range s.Fields {
			if f.Name == "" {
				return fmt.Errorf("screen %s: field name is required", s.ID)
			}
			for _, name := range []string{f.Name, f.Secondary} {
				if name == "" {
					continue
				}
				if owner, dup := fieldNames[name]; dup {
					return fmt.Errorf("field %q defined on both %s and %s", name, owner, s.ID)
				}
				fieldNames[name] = s.ID
			}
			if boxOf(f.Box).Empty() {
				return fmt.Errorf("field %s: box is empty", f.Name)
			}
			if err := f.ruleSpec.validate(f.Name); err != nil {
				return err
			}
			if f.SecondaryRule != nil {
				if f.Secondary == "" {
					return fmt.Errorf("field %s: secondary_rule without secondary name", f.Name)
				}
				if err := f.SecondaryRule.validate(f.Secondary); err != nil {
					return err
				}
			}
		}
	}

	if !ids[p.HomeScreen] {
		return fmt.Errorf("home_screen %q is not a defined screen", p.HomeScreen)
	}
	for _, r := range p.Rotation {
		if !ids[r] {
			return fmt.Errorf("rotation screen %q is not defined", r)
		}
	}
	for _, e := range p.Edges {
		if e.From != model.EdgeWildcard && !ids[e.From] {
			return fmt.Errorf("edge from unknown screen %q", e.From)
		}
		if !ids[e.To] {
			return fmt.Errorf("edge to unknown screen %q", e.To)
		}
		if len(e.Inputs) == 0 {
			return fmt.Errorf("edge %s->%s has no inputs", e.From, e.To)
		}
		for _, in := range e.Inputs {
			if in.Click == nil && in.Key == nil {
				return fmt.Errorf("edge %s->%s: input needs click or key", e.From, e.To)
			}
		}
	}
	return nil
}

func (r ruleSpec) validate(field string) error {
	switch r.Kind {
	case "", string(model.KindText):
	case string(model.KindNumeric):
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("field %s: min > max", field)
		}
	case string(model.KindEnum):
		if len(r.Labels) == 0 {
			return fmt.Errorf("field %s: enum needs labels", field)
		}
		if r.Tolerance != nil && *r.Tolerance < 0 {
			return fmt.Errorf("field %s: tolerance must be >= 0", field)
		}
	default:
		return fmt.Errorf("field %s: unknown kind %q", field, r.Kind)
	}
	return nil
}

func (p *profileFile) compile() (*model.Profile, error) {
	out := &model.Profile{
		Home:     p.HomeScreen,
		Rotation: append([]string(nil), p.Rotation...),
		Screens:  make(map[string]model.ScreenLayout, len(p.Screens)),
	}

	for _, s := range p.Screens {
		hash, err := parseHash(s.Marker.Hash)
		if err != nil {
			return nil, err
		}
		layout := model.ScreenLayout{
			ID: s.ID,
			Marker: model.MarkerSpec{
				Box:       boxOf(s.Marker.Box),
				Hash:      hash,
				MeanLuma:  uint8(s.Marker.MeanLuma),
				Tolerance: s.Marker.Tolerance,
			},
		}
		for _, f := range s.Fields {
			steps, err := parsePreprocess(f.Preprocess)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			def := model.FieldDefinition{
				Name:       f.Name,
				Secondary:  f.Secondary,
				Screen:     s.ID,
				Box:        boxOf(f.Box),
				Rule:       f.ruleSpec.compile(p.DecimalSeparator),
				Preprocess: steps,
				PSM:        f.PSM,
			}
			if f.SecondaryRule != nil {
				def.SecondaryRule = f.SecondaryRule.compile(p.DecimalSeparator)
			}
			layout.Fields = append(layout.Fields, def)
		}
		out.Screens[s.ID] = layout
	}

	for _, e := range p.Edges {
		edge := model.Edge{From: e.From, To: e.To}
		for _, in := range e.Inputs {
			wait := time.Duration(in.Wait)
			if wait == 0 {
				wait = 1500 * time.Millisecond
			}
			if in.Click != nil {
				button := uint8(1)
				if in.Button != nil {
					button = *in.Button
				}
				edge.Inputs = append(edge.Inputs, model.Input{
					Kind: model.InputPointer, X: in.Click[0], Y: in.Click[1], Button: button, Wait: wait,
				})
				continue
			}
			edge.Inputs = append(edge.Inputs, model.Input{Kind: model.InputKey, Key: *in.Key, Wait: wait})
		}
		out.Edges = append(out.Edges, edge)
	}
	return out, nil
}

func (r ruleSpec) compile(defaultDecimal string) model.ParseRule {
	switch r.Kind {
	case string(model.KindNumeric):
		dec := r.Decimal
		if dec == "" {
			dec = defaultDecimal
		}
		min, max := math.Inf(-1), math.Inf(1)
		if r.Min != nil {
			min = *r.Min
		}
		if r.Max != nil {
			max = *r.Max
		}
		return model.ParseRule{Numeric: &model.NumericRule{
			DecimalSep: dec,
			Min:        min,
			Max:        max,
			Units:      r.Units,
		}}
	case string(model.KindEnum):
		tol := 2
		if r.Tolerance != nil {
			tol = *r.Tolerance
		}
		return model.ParseRule{Enum: &model.EnumRule{
			Labels:      append([]string(nil), r.Labels...),
			MaxDistance: tol,
		}}
	default:
		return model.ParseRule{Text: true}
	}
}

func boxOf(b [4]int) model.Box {
	return model.Box{X0: b[0], Y0: b[1], X1: b[2], Y1: b[3]}
}

func parseHash(s string) (uint64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "0x"))
	if s == "" {
		return 0, fmt.Errorf("marker hash is required")
	}
	h, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("marker hash %q is not hex: %w", s, err)
	}
	return h, nil
}

func parsePreprocess(recipe string) ([]model.PreprocessStep, error) {
	recipe = strings.TrimSpace(recipe)
	if recipe == "" {
		return nil, nil
	}
	var steps []model.PreprocessStep
	for _, part := range strings.Split(recipe, "+") {
		step := model.PreprocessStep(strings.TrimSpace(part))
		switch step {
		case model.PreprocessInvert, model.PreprocessContrast, model.PreprocessThreshold, model.PreprocessUpscale:
			steps = append(steps, step)
		default:
			return nil, fmt.Errorf("unknown preprocess step %q", part)
		}
	}
	return steps, nil
}
