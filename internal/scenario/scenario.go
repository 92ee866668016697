// Package scenario reads YAML scripts of editor operations and replays them
// into a World. A scenario is not a save format: it lays track the way a
// player would, so every step goes through the validator.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/placement"
)

// Point is a position written as a two-element sequence, e.g. [10, 0].
type Point struct {
	X, Y float64
}

// Vec returns the point as a vector.
func (p Point) Vec() core.Vec2 {
	return core.V(p.X, p.Y)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Point) UnmarshalYAML(value *yaml.Node) error {
	var xy []float64
	if err := value.Decode(&xy); err != nil {
		return err
	}
	if len(xy) != 2 {
		return fmt.Errorf("line %d: point needs two coordinates, got %d", value.Line, len(xy))
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p Point) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range []float64{p.X, p.Y} {
		var c yaml.Node
		if err := c.Encode(v); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &c)
	}
	return n, nil
}

// Segment lays track between two named points. Without a mode or tangents
// the track is a straight line; with a mode it is shaped like a rail drawn
// in the editor.
type Segment struct {
	From         string  `yaml:"from"`
	To           string  `yaml:"to"`
	Mode         string  `yaml:"mode,omitempty"`
	StartTangent *Point  `yaml:"start_tangent,omitempty"`
	EndTangent   *Point  `yaml:"end_tangent,omitempty"` // requires start_tangent
	Rotation     float64 `yaml:"rotation,omitempty"`
}

// Split cuts the segment nearest At. T overrides the cut parameter.
type Split struct {
	At Point    `yaml:"at"`
	T  *float64 `yaml:"t,omitempty"`
}

// Expansion branches off the segment nearest Near towards a named point.
type Expansion struct {
	Near       Point  `yaml:"near"`
	To         string `yaml:"to"`
	Reverse    bool   `yaml:"reverse,omitempty"`
	EndTangent *Point `yaml:"end_tangent,omitempty"`
}

// Removal deletes the segment nearest At.
type Removal struct {
	At Point `yaml:"at"`
}

// Station marks a named stop on the track nearest At.
type Station struct {
	Name string `yaml:"name"`
	At   Point  `yaml:"at"`
}

// Train places a train on the track nearest At. Patrol names the stops it
// cycles through, as stations or points.
type Train struct {
	ID       string   `yaml:"id"`
	At       Point    `yaml:"at"`
	Speed    float64  `yaml:"speed,omitempty"`
	Backward bool     `yaml:"backward,omitempty"`
	Patrol   []string `yaml:"patrol,omitempty"`
}

// Scenario is one script. Operations run in field order: segments, splits,
// expansions, removals, stations, trains.
type Scenario struct {
	Name        string           `yaml:"id"`
	Label       string           `yaml:"title"`
	Description string           `yaml:"description,omitempty"`
	Points      map[string]Point `yaml:"points"`
	Segments    []Segment        `yaml:"segments"`
	Splits      []Split          `yaml:"splits,omitempty"`
	Expansions  []Expansion      `yaml:"expansions,omitempty"`
	Removals    []Removal        `yaml:"removals,omitempty"`
	Stations    []Station        `yaml:"stations,omitempty"`
	Trains      []Train          `yaml:"trains,omitempty"`
}

// ID implements registry.Scenario.
func (s *Scenario) ID() string { return s.Name }

// Title implements registry.Scenario.
func (s *Scenario) Title() string {
	if s.Label == "" {
		return s.Name
	}
	return s.Label
}

// Parse decodes and checks a scenario.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks names and references. It does not check geometry; the
// network does that while the scenario is built.
func (s *Scenario) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("id is required"))
	}
	point := func(where, name string) {
		if _, ok := s.Points[name]; !ok {
			errs = append(errs, fmt.Errorf("%s: unknown point %q", where, name))
		}
	}
	for i, seg := range s.Segments {
		where := fmt.Sprintf("segments[%d]", i)
		point(where, seg.From)
		point(where, seg.To)
		if _, err := placement.ParseCurveMode(seg.Mode); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
		if seg.EndTangent != nil && seg.StartTangent == nil {
			errs = append(errs, fmt.Errorf("%s: end_tangent requires start_tangent", where))
		}
	}
	for i, x := range s.Expansions {
		point(fmt.Sprintf("expansions[%d]", i), x.To)
	}
	for i, sp := range s.Splits {
		if sp.T != nil && (*sp.T <= 0 || *sp.T >= 1) {
			errs = append(errs, fmt.Errorf("splits[%d]: t must be inside (0, 1)", i))
		}
	}
	stations := make(map[string]bool)
	for i, st := range s.Stations {
		where := fmt.Sprintf("stations[%d]", i)
		switch {
		case st.Name == "":
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		case stations[st.Name]:
			errs = append(errs, fmt.Errorf("%s: duplicate name %q", where, st.Name))
		}
		stations[st.Name] = true
	}
	seen := make(map[string]bool)
	for i, tr := range s.Trains {
		where := fmt.Sprintf("trains[%d]", i)
		switch {
		case tr.ID == "":
			errs = append(errs, fmt.Errorf("%s: id is required", where))
		case seen[tr.ID]:
			errs = append(errs, fmt.Errorf("%s: duplicate id %q", where, tr.ID))
		}
		seen[tr.ID] = true
		if tr.Speed < 0 {
			errs = append(errs, fmt.Errorf("%s: speed must not be negative", where))
		}
		for _, stop := range tr.Patrol {
			if !stations[stop] {
				point(where, stop)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid scenario %q: %w", s.Name, errors.Join(errs...))
	}
	return nil
}

// PointNames returns the point names, sorted.
func (s *Scenario) PointNames() []string {
	names := make([]string, 0, len(s.Points))
	for name := range s.Points {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
