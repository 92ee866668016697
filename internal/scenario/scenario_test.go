package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/railsim/internal/registry"
	"github.com/vovakirdan/railsim/internal/sim"
	"github.com/vovakirdan/railsim/internal/traffic"
)

type trips struct {
	byTrain map[traffic.TrainID]int
}

func (r *trips) RecordMutation(sim.MutationRecord) error { return nil }

func (r *trips) RecordTrip(t sim.Trip) error {
	r.byTrain[t.Train]++
	return nil
}

func TestBuiltinsBuild(t *testing.T) {
	tests := []struct {
		id            string
		segments      int
		intersections int
		trains        int
	}{
		{"diamond", 6, 6, 1},
		{"junction", 3, 4, 1},
		{"loop", 4, 4, 2},
		{"shuttle", 2, 3, 1},
	}

	var ids []string
	for _, info := range registry.List() {
		ids = append(ids, info.ID)
	}
	if strings.Join(ids, ",") != "diamond,junction,loop,shuttle" {
		t.Fatalf("registered scenarios = %v", ids)
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			s, err := registry.Create(tt.id)
			if err != nil {
				t.Fatalf("Create error: %v", err)
			}
			w := sim.New()
			defer w.Close()
			if err := s.Build(w); err != nil {
				t.Fatalf("Build error: %v", err)
			}
			n := w.Network()
			if n.SegmentCount() != tt.segments || n.IntersectionCount() != tt.intersections {
				t.Errorf("built %d segments, %d intersections; want %d, %d",
					n.SegmentCount(), n.IntersectionCount(), tt.segments, tt.intersections)
			}
			if got := len(w.Vehicles()); got != tt.trains {
				t.Errorf("placed %d trains, want %d", got, tt.trains)
			}
		})
	}
}

func TestBuiltinsRun(t *testing.T) {
	for _, info := range registry.List() {
		t.Run(info.ID, func(t *testing.T) {
			s, _ := registry.Create(info.ID)
			rec := &trips{byTrain: map[traffic.TrainID]int{}}
			w := sim.New(sim.WithRecorder(rec))
			defer w.Close()
			if err := s.Build(w); err != nil {
				t.Fatalf("Build error: %v", err)
			}

			err := sim.Run(context.Background(), w, sim.Loop{TickRate: 30, MaxTicks: 3000}, func(_ uint64, events []sim.Event) error {
				for _, e := range events {
					if e.Kind == sim.EventNoRoute || e.Kind == sim.EventStale {
						t.Errorf("unexpected event: %v", e)
					}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Run error: %v", err)
			}
			for _, v := range w.Vehicles() {
				if rec.byTrain[v.ID] == 0 {
					t.Errorf("%s completed no trips", v.ID)
				}
			}
		})
	}
}

func TestJunctionSides(t *testing.T) {
	s, _ := registry.Create("junction")
	w := sim.New()
	defer w.Close()
	if err := s.Build(w); err != nil {
		t.Fatalf("Build error: %v", err)
	}

	sc := s.(*Scenario)
	if _, err := sc.Intersection(w.Network(), "X"); err == nil {
		t.Error("X should have gone with the removed spur")
	}
	top := Describe(w.Network().Snapshot())
	var junction *IntersectionView
	for i := range top.Intersections {
		if top.Intersections[i].Degree == 3 {
			junction = &top.Intersections[i]
		}
	}
	if junction == nil {
		t.Fatalf("no degree 3 junction in %+v", top.Intersections)
	}
	if len(junction.Left)+len(junction.Right) != 3 || len(junction.Left) == 0 || len(junction.Right) == 0 {
		t.Errorf("junction sides: left %v, right %v", junction.Left, junction.Right)
	}
}

func TestShuttleStopsAtHalt(t *testing.T) {
	s, _ := registry.Create("shuttle")
	w := sim.New()
	defer w.Close()
	if err := s.Build(w); err != nil {
		t.Fatalf("Build error: %v", err)
	}

	m, err := s.(*Scenario).Intersection(w.Network(), "M")
	if err != nil {
		t.Fatalf("Intersection(M) error: %v", err)
	}
	st := w.Stations()
	if len(st) != 1 || st[0].Name != "Halt" || st[0].Intersection != m {
		t.Fatalf("stations = %+v, want Halt at %v", st, m)
	}
	if len(st[0].Trains) != 1 || st[0].Trains[0] != "T1" {
		t.Errorf("Halt serves %v, want T1", st[0].Trains)
	}
}

func TestDescribeYAML(t *testing.T) {
	s, _ := registry.Create("shuttle")
	w := sim.New()
	defer w.Close()
	if err := s.Build(w); err != nil {
		t.Fatalf("Build error: %v", err)
	}

	out, err := yaml.Marshal(Describe(w.Network().Snapshot()))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	for _, want := range []string{"version: 2", "at: [60, 0]", "degree: 2", "length: 60"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no id", "title: x", "id is required"},
		{"unknown point", "id: x\npoints: {A: [0, 0]}\nsegments: [{from: A, to: B}]", `unknown point "B"`},
		{"bad mode", "id: x\npoints: {A: [0, 0], B: [1, 0]}\nsegments: [{from: A, to: B, mode: wiggly}]", "unknown curve mode"},
		{"end tangent alone", "id: x\npoints: {A: [0, 0], B: [1, 0]}\nsegments: [{from: A, to: B, end_tangent: [1, 0]}]", "requires start_tangent"},
		{"short point", "id: x\npoints: {A: [0]}", "two coordinates"},
		{"split t", "id: x\nsplits: [{at: [0, 0], t: 1}]", "inside (0, 1)"},
		{"duplicate train", "id: x\ntrains: [{id: T1, at: [0, 0]}, {id: T1, at: [1, 0]}]", `duplicate id "T1"`},
		{"unknown stop", "id: x\ntrains: [{id: T1, at: [0, 0], patrol: [Z]}]", `unknown point "Z"`},
		{"unnamed station", "id: x\nstations: [{at: [0, 0]}]", "name is required"},
		{"duplicate station", "id: x\nstations: [{name: S, at: [0, 0]}, {name: S, at: [1, 0]}]", `duplicate name "S"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	if s, err := Resolve("loop"); err != nil || s.ID() != "loop" {
		t.Fatalf("Resolve(loop) = %v, %v", s, err)
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	src := `
id: custom
points: {A: [0, 0], B: [30, 0], C: [60, 30]}
segments:
  - {from: A, to: B}
  - {from: B, to: C, start_tangent: [1, 0], end_tangent: [0, 1]}
trains:
  - {id: T1, at: [5, 0], backward: true}
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve(file) error: %v", err)
	}
	if s.Title() != "custom" {
		t.Errorf("Title = %q, want the id when no title is set", s.Title())
	}
	w := sim.New()
	defer w.Close()
	if err := s.Build(w); err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if w.Network().SegmentCount() != 2 {
		t.Errorf("SegmentCount = %d, want 2", w.Network().SegmentCount())
	}

	if _, err := Resolve(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Resolve of a missing file should fail")
	}
}

func TestBuildReportsRejectedStep(t *testing.T) {
	s, err := Parse([]byte(`
id: sharp
points: {A: [0, 0], B: [40, 0], C: [0, 2]}
segments:
  - {from: A, to: B}
  - {from: B, to: C}
`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	w := sim.New()
	defer w.Close()
	err = s.Build(w)
	if err == nil || !strings.Contains(err.Error(), "segments[1] B-C") {
		t.Fatalf("Build error = %v, want the second segment rejected", err)
	}
}
