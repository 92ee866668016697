package placement

import (
	"errors"
	"math"
	"testing"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/traffic"
	"github.com/vovakirdan/railsim/internal/train"
)

type board struct {
	n        *network.Network
	tc       *traffic.Controller
	ctl      *train.Controller
	stations map[string]network.IntersectionID
}

func newBoard() *board {
	n := network.New()
	tc := traffic.NewController()
	return &board{n: n, tc: tc, ctl: train.NewController(n, tc), stations: map[string]network.IntersectionID{}}
}

func (b *board) Network() *network.Network    { return b.n }
func (b *board) Traffic() *traffic.Controller { return b.tc }

func (b *board) AddSegment(c *curve.Curve, start, end network.Anchor) (network.SegmentID, error) {
	return b.n.AddSegment(c, start, end)
}

func (b *board) ExpandFrom(x network.Expansion) (network.ExpandResult, error) {
	return b.n.ExpandFrom(x)
}

func (b *board) InsertMid(seg network.SegmentID, t float64) (network.Split, error) {
	return b.n.InsertMid(seg, t)
}

func (b *board) Station(name string) (network.IntersectionID, bool) {
	id, ok := b.stations[name]
	return id, ok
}

func (b *board) AddStation(name string, at network.IntersectionID) error {
	b.stations[name] = at
	return nil
}

func (b *board) RemoveSegment(id network.SegmentID) error {
	return b.n.RemoveSegment(id)
}

func (b *board) PlaceTrain(id traffic.TrainID, seg network.SegmentID, t float64, dir network.Direction, speed float64) (*train.Train, error) {
	return b.ctl.Place(id, seg, t, dir, speed)
}

func commitRail(t *testing.T, b Board, from, to core.Vec2) network.SegmentID {
	t.Helper()
	res, err := Rail{Start: network.AtPoint(from), End: network.AtPoint(to), Mode: ModeStraight}.Commit(b)
	if err != nil {
		t.Fatalf("Rail.Commit(%v, %v) error: %v", from, to, err)
	}
	return res.Segments[0]
}

func TestRailCommit(t *testing.T) {
	b := newBoard()
	id := commitRail(t, b, core.V(0, 0), core.V(20, 0))

	seg, ok := b.n.Segment(id)
	if !ok {
		t.Fatalf("segment %v missing", id)
	}
	if math.Abs(seg.Length()-20) > 1e-9 {
		t.Errorf("length = %v, want 20", seg.Length())
	}
}

func TestRailContinuesDeadEnd(t *testing.T) {
	b := newBoard()
	commitRail(t, b, core.V(0, 0), core.V(20, 0))

	r := Rail{Start: network.AtPoint(core.V(20, 0)), End: network.AtPoint(core.V(40, 10))}
	c, err := r.Curve(b.n)
	if err != nil {
		t.Fatalf("Curve error: %v", err)
	}
	if !c.Start().Tangent.ApproxEqual(core.V(1, 0), 1e-9) {
		t.Errorf("start tangent = %v, want (1, 0)", c.Start().Tangent)
	}
	if _, err := r.Commit(b); err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	id, _ := b.n.NearestIntersection(core.V(20, 0), 0.01)
	if d := b.n.DegreeOf(id); d != 2 {
		t.Errorf("degree at the joint = %d, want 2", d)
	}
}

func TestRailModes(t *testing.T) {
	n := network.New()
	up := core.V(0, 1)
	diag := core.V(1, 1).Normalize()
	tests := []struct {
		mode CurveMode
		want core.Vec2
	}{
		{ModeStraight, up},
		{ModeChase, diag},
		{ModeCurve, core.V(1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			r := Rail{
				Start:        network.AtPoint(core.V(0, 0)),
				End:          network.AtPoint(core.V(20, 20)),
				StartTangent: up,
				Mode:         tt.mode,
			}
			c, err := r.Curve(n)
			if err != nil {
				t.Fatalf("Curve error: %v", err)
			}
			if got := c.End().Tangent; !got.ApproxEqual(tt.want, 1e-9) {
				t.Errorf("end tangent = %v, want %v", got, tt.want)
			}
		})
	}

	r := Rail{Start: network.AtPoint(core.V(0, 0)), End: network.AtPoint(core.V(20, 20)), StartTangent: up, Mode: ModeChase, Rotation: 45}
	c, err := r.Curve(n)
	if err != nil {
		t.Fatalf("Curve error: %v", err)
	}
	if got := c.End().Tangent; !got.ApproxEqual(up, 1e-9) {
		t.Errorf("rotated end tangent = %v, want %v", got, up)
	}
}

func TestRailPreviewDoesNotMutate(t *testing.T) {
	b := newBoard()
	commitRail(t, b, core.V(0, 0), core.V(100, 0))

	shallow := Rail{Start: network.AtPoint(core.V(40, -10)), End: network.AtPoint(core.V(80, 5)), Mode: ModeStraight}
	p := shallow.Preview(b)
	if p.Valid() {
		t.Fatal("shallow crossing previewed as valid")
	}
	if r, _ := network.ReasonOf(p.Err); r != network.ReasonAngleTooSharp {
		t.Errorf("preview error = %v, want angle too sharp", p.Err)
	}
	if len(p.Samples) != previewSamples {
		t.Errorf("preview carries %d samples", len(p.Samples))
	}
	if !errors.Is(shallow.Validate(b), network.ErrInvalidPlacement) {
		t.Error("Validate accepted a shallow crossing")
	}

	steep := Rail{Start: network.AtPoint(core.V(50, -20)), End: network.AtPoint(core.V(50, 20)), Mode: ModeStraight}
	if p := steep.Preview(b); !p.Valid() {
		t.Errorf("square crossing preview error: %v", p.Err)
	}
	if b.n.SegmentCount() != 1 || b.n.Version() != 1 {
		t.Errorf("previews changed the network: %d segments at version %d", b.n.SegmentCount(), b.n.Version())
	}
}

func TestRailDegenerate(t *testing.T) {
	b := newBoard()
	err := Rail{Start: network.AtPoint(core.V(3, 3)), End: network.AtPoint(core.V(3, 3))}.Validate(b)
	if r, _ := network.ReasonOf(err); r != network.ReasonDegenerateCurve {
		t.Errorf("Validate error = %v, want degenerate curve", err)
	}
	_, err = Rail{Start: network.AtIntersection(7), End: network.AtPoint(core.V(3, 3))}.Commit(b)
	if !errors.Is(err, network.ErrUnknownAnchor) {
		t.Errorf("Commit error = %v, want ErrUnknownAnchor", err)
	}
}

func TestBranchCommit(t *testing.T) {
	b := newBoard()
	id := commitRail(t, b, core.V(0, 0), core.V(100, 0))

	br := Branch{network.Expansion{Segment: id, Near: core.V(50, 2), End: network.AtPoint(core.V(160, 60))}}
	if p := br.Preview(b); !p.Valid() || p.Segment != id {
		t.Fatalf("preview = %+v, want valid on %v", p, id)
	}
	res, err := br.Commit(b)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if len(res.Segments) != 3 {
		t.Errorf("segments = %v, want the branch and two halves", res.Segments)
	}
	if d := b.n.DegreeOf(res.Junction); d != 3 {
		t.Errorf("junction degree = %d, want 3", d)
	}
}

func TestTrainPlacement(t *testing.T) {
	b := newBoard()
	id := commitRail(t, b, core.V(0, 0), core.V(20, 0))

	p := Train{ID: "T1", At: core.V(5, 0.5), Speed: 3}
	pv := p.Preview(b)
	if !pv.Valid() || pv.Segment != id || !pv.Pos.ApproxEqual(core.V(5, 0), 1e-4) {
		t.Fatalf("preview = %+v, want valid at (5, 0) on %v", pv, id)
	}
	res, err := p.Commit(b)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.Train.Segment != id || res.Train.Direction != network.Forward {
		t.Errorf("train at %v %v", res.Train.Segment, res.Train.Direction)
	}

	tests := []struct {
		name string
		p    Train
		want error
	}{
		{"same id", Train{ID: "T1", At: core.V(15, 0), Speed: 1}, nil},
		{"head on", Train{ID: "T2", At: core.V(15, 0), Speed: 1, Backward: true}, traffic.ErrReservationDenied},
		{"off track", Train{ID: "T3", At: core.V(5, 30), Speed: 1}, ErrNothingThere},
		{"no speed", Train{ID: "T4", At: core.V(5, 0)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate(b)
			if err == nil {
				t.Fatal("Validate accepted the train")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Validate error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDestroyer(t *testing.T) {
	b := newBoard()
	busy := commitRail(t, b, core.V(0, 0), core.V(20, 0))
	free := commitRail(t, b, core.V(0, 30), core.V(20, 30))
	if _, err := (Train{ID: "T1", At: core.V(10, 0), Speed: 1}).Commit(b); err != nil {
		t.Fatalf("placing train: %v", err)
	}

	d := Destroyer{At: core.V(10, 1)}
	if r, _ := network.ReasonOf(d.Validate(b)); r != network.ReasonTrainOnSegment {
		t.Errorf("Validate on occupied track = %v, want train on segment", d.Validate(b))
	}
	if pv := d.Preview(b); pv.Valid() || pv.Segment != busy {
		t.Errorf("preview = %+v, want invalid on %v", pv, busy)
	}

	res, err := Destroyer{At: core.V(10, 29)}.Commit(b)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.Removed != free || b.n.HasSegment(free) {
		t.Errorf("removed %v, want %v gone", res.Removed, free)
	}
	if _, err := (Destroyer{At: core.V(10, 29)}).Commit(b); !errors.Is(err, ErrNothingThere) {
		t.Errorf("second Commit error = %v, want ErrNothingThere", err)
	}
}

func TestStation(t *testing.T) {
	b := newBoard()
	id := commitRail(t, b, core.V(0, 0), core.V(40, 0))
	start, _ := b.n.NearestIntersection(core.V(0, 0), 0.01)

	mid := Station{Name: "Mid", At: core.V(10, 1)}
	pv := mid.Preview(b)
	if !pv.Valid() || pv.Segment != id || !pv.Pos.ApproxEqual(core.V(10, 0), 1e-4) {
		t.Fatalf("preview = %+v, want valid at (10, 0) on %v", pv, id)
	}
	if b.n.Version() != 1 {
		t.Fatalf("preview changed the network to version %d", b.n.Version())
	}

	res, err := mid.Commit(b)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if b.n.HasSegment(id) || len(res.Segments) != 2 {
		t.Errorf("segments = %v, want %v split in two", res.Segments, id)
	}
	if d := b.n.DegreeOf(res.Junction); d != 2 {
		t.Errorf("junction degree = %d, want 2", d)
	}
	if got, _ := b.Station("Mid"); got != res.Junction {
		t.Errorf("Mid registered at %v, want %v", got, res.Junction)
	}

	end, err := Station{Name: "End", At: core.V(0.8, 0.5)}.Commit(b)
	if err != nil {
		t.Fatalf("Commit at the dead end error: %v", err)
	}
	if end.Junction != start || len(end.Segments) != 0 {
		t.Errorf("End at %v adding %v, want the existing %v", end.Junction, end.Segments, start)
	}

	if _, err := (Train{ID: "T1", At: core.V(30, 0), Speed: 1}).Commit(b); err != nil {
		t.Fatalf("placing train: %v", err)
	}
	tests := []struct {
		name string
		s    Station
		want error
	}{
		{"not on rail", Station{Name: "Far", At: core.V(20, 30)}, ErrNotOnRail},
		{"name taken", Station{Name: "Mid", At: core.V(25, 0)}, nil},
		{"no name", Station{At: core.V(25, 0)}, nil},
		{"under a train", Station{Name: "Busy", At: core.V(30, 0)}, network.ErrInvalidPlacement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate(b)
			if err == nil {
				t.Fatal("Validate accepted the station")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Validate error = %v, want %v", err, tt.want)
			}
			if pv := tt.s.Preview(b); pv.Valid() {
				t.Errorf("preview = %+v, want invalid", pv)
			}
		})
	}
}

func TestKindsAndModes(t *testing.T) {
	all := []Placeable{Rail{}, Branch{}, Train{}, Destroyer{}, Station{}}
	want := []Kind{KindRail, KindRail, KindTrain, KindDestroyer, KindStation}
	for i, p := range all {
		if p.Kind() != want[i] {
			t.Errorf("%T kind = %v, want %v", p, p.Kind(), want[i])
		}
	}

	m := ModeCurve
	for _, want := range []CurveMode{ModeStraight, ModeChase, ModeCurve} {
		m = m.Next()
		if m != want {
			t.Errorf("Next = %v, want %v", m, want)
		}
	}
	for _, s := range []string{"curve", "Straight", "chase", ""} {
		if _, err := ParseCurveMode(s); err != nil {
			t.Errorf("ParseCurveMode(%q) error: %v", s, err)
		}
	}
	if _, err := ParseCurveMode("spiral"); err == nil {
		t.Error("ParseCurveMode accepted spiral")
	}
}
