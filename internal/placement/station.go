package placement

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/network"
)

// ErrNotOnRail is returned when a station has no track under it.
var ErrNotOnRail = errors.New("placement: not on rail")

// Station marks a named stop on the track nearest At. A stop between two
// intersections splits the segment there, so trains can be sent to it.
type Station struct {
	Name string
	At   core.Vec2
}

func (Station) Kind() Kind { return KindStation }
func (Station) placeable() {}

// stop is where a station lands: an existing intersection, or a segment
// and parameter to split at.
type stop struct {
	segment  network.SegmentID
	t        float64
	junction network.IntersectionID
	pos      core.Vec2
}

func (s Station) spot(b Board) (stop, error) {
	if s.Name == "" {
		return stop{}, fmt.Errorf("placement: station needs a name")
	}
	if at, ok := b.Station(s.Name); ok {
		return stop{}, fmt.Errorf("placement: station %s already at %s", s.Name, at)
	}
	n := b.Network()
	id, t, err := target(n, s.At)
	if err != nil {
		return stop{}, fmt.Errorf("%w: station %s: %w", ErrNotOnRail, s.Name, err)
	}
	seg, _ := n.Segment(id)
	st := stop{segment: id, t: t, pos: seg.Curve.Position(t)}
	for _, end := range []network.IntersectionID{seg.Start, seg.End} {
		in, ok := n.Intersection(end)
		if ok && in.Pos.Dist(st.pos) <= reach(n) {
			st.junction, st.pos = end, in.Pos
			return st, nil
		}
	}
	return st, occupied(b, id)
}

func (s Station) Validate(b Board) error {
	_, err := s.spot(b)
	return err
}

func (s Station) Preview(b Board) Preview {
	pv := Preview{Kind: KindStation, Pos: s.At}
	st, err := s.spot(b)
	pv.Err = err
	if err == nil {
		pv.Segment = st.segment
		pv.Pos = st.pos
	}
	return pv
}

func (s Station) Commit(b Board) (Result, error) {
	st, err := s.spot(b)
	if err != nil {
		return Result{}, err
	}
	res := Result{Kind: KindStation, Station: s.Name, Junction: st.junction}
	if st.junction == 0 {
		sp, err := b.InsertMid(st.segment, st.t)
		if err != nil {
			return Result{}, err
		}
		res.Junction = sp.Junction
		res.Segments = []network.SegmentID{sp.Left, sp.Right}
	}
	if err := b.AddStation(s.Name, res.Junction); err != nil {
		return Result{}, err
	}
	return res, nil
}
