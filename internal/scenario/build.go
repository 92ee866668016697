package scenario

import (
	"fmt"

	"github.com/vovakirdan/railsim/internal/curve"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/placement"
	"github.com/vovakirdan/railsim/internal/sim"
	"github.com/vovakirdan/railsim/internal/traffic"
)

// Build replays the scenario into w. It stops at the first operation the
// world rejects.
func (s *Scenario) Build(w *sim.World) error {
	for i, seg := range s.Segments {
		if err := s.lay(w, seg); err != nil {
			return fmt.Errorf("scenario %s: segments[%d] %s-%s: %w", s.Name, i, seg.From, seg.To, err)
		}
	}
	for i, sp := range s.Splits {
		if err := split(w, sp); err != nil {
			return fmt.Errorf("scenario %s: splits[%d] at %v: %w", s.Name, i, sp.At.Vec(), err)
		}
	}
	for i, x := range s.Expansions {
		if err := s.expand(w, x); err != nil {
			return fmt.Errorf("scenario %s: expansions[%d] to %s: %w", s.Name, i, x.To, err)
		}
	}
	for i, r := range s.Removals {
		if _, err := w.Place(placement.Destroyer{At: r.At.Vec()}); err != nil {
			return fmt.Errorf("scenario %s: removals[%d] at %v: %w", s.Name, i, r.At.Vec(), err)
		}
	}
	for i, st := range s.Stations {
		if _, err := w.Place(placement.Station{Name: st.Name, At: st.At.Vec()}); err != nil {
			return fmt.Errorf("scenario %s: stations[%d] %s: %w", s.Name, i, st.Name, err)
		}
	}
	for _, tr := range s.Trains {
		if err := s.place(w, tr); err != nil {
			return fmt.Errorf("scenario %s: train %s: %w", s.Name, tr.ID, err)
		}
	}
	return nil
}

func (s *Scenario) lay(w *sim.World, seg Segment) error {
	a, b := s.Points[seg.From].Vec(), s.Points[seg.To].Vec()
	start, end := network.AtPoint(a), network.AtPoint(b)

	switch {
	case seg.StartTangent != nil && seg.EndTangent != nil:
		c, err := curve.New(
			curve.ControlPoint{Pos: a, Tangent: seg.StartTangent.Vec()},
			curve.ControlPoint{Pos: b, Tangent: seg.EndTangent.Vec()},
		)
		if err != nil {
			return err
		}
		_, err = w.AddSegment(c, start, end)
		return err
	case seg.StartTangent == nil && seg.Mode == "":
		c, err := curve.Straight(a, b)
		if err != nil {
			return err
		}
		_, err = w.AddSegment(c, start, end)
		return err
	}

	mode, err := placement.ParseCurveMode(seg.Mode)
	if err != nil {
		return err
	}
	rail := placement.Rail{Start: start, End: end, Mode: mode, Rotation: seg.Rotation}
	if seg.StartTangent != nil {
		rail.StartTangent = seg.StartTangent.Vec()
	}
	_, err = w.Place(rail)
	return err
}

func split(w *sim.World, sp Split) error {
	n := w.Network()
	id, t, dist, ok := n.NearestSegment(sp.At.Vec())
	if !ok || dist > reach(n) {
		return placement.ErrNothingThere
	}
	if sp.T != nil {
		t = *sp.T
	}
	_, err := w.InsertMid(id, t)
	return err
}

func (s *Scenario) expand(w *sim.World, x Expansion) error {
	n := w.Network()
	id, _, dist, ok := n.NearestSegment(x.Near.Vec())
	if !ok || dist > reach(n) {
		return placement.ErrNothingThere
	}
	br := placement.Branch{Expansion: network.Expansion{
		Segment: id,
		Near:    x.Near.Vec(),
		Reverse: x.Reverse,
		End:     network.AtPoint(s.Points[x.To].Vec()),
	}}
	if x.EndTangent != nil {
		br.EndTangent = x.EndTangent.Vec()
	}
	_, err := w.Place(br)
	return err
}

func (s *Scenario) place(w *sim.World, tr Train) error {
	id := traffic.TrainID(tr.ID)
	if _, err := w.PlaceTrainNear(id, tr.At.Vec(), tr.Speed, tr.Backward); err != nil {
		return err
	}
	if len(tr.Patrol) == 0 {
		return nil
	}
	stops := make([]network.IntersectionID, 0, len(tr.Patrol))
	for _, name := range tr.Patrol {
		if at, ok := w.Station(name); ok {
			stops = append(stops, at)
			continue
		}
		stop, err := s.Intersection(w.Network(), name)
		if err != nil {
			return err
		}
		stops = append(stops, stop)
	}
	return w.SetPatrol(id, stops...)
}

// Intersection resolves a named point to the intersection built there.
func (s *Scenario) Intersection(n *network.Network, name string) (network.IntersectionID, error) {
	p, ok := s.Points[name]
	if !ok {
		return 0, fmt.Errorf("unknown point %q", name)
	}
	id, ok := n.NearestIntersection(p.Vec(), reach(n))
	if !ok {
		return 0, fmt.Errorf("no intersection at point %s %v", name, p.Vec())
	}
	return id, nil
}

func reach(n *network.Network) float64 {
	return 4 * n.Rules().SnapTolerance
}
