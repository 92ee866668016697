package placement

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
	"github.com/vovakirdan/railsim/internal/network"
)

// CurveMode shapes the far end of a new rail.
type CurveMode uint8

const (
	// ModeCurve turns equally at both ends: the end tangent mirrors the
	// start tangent across the chord.
	ModeCurve CurveMode = iota
	// ModeStraight keeps the end parallel to the start. With a start
	// tangent along the chord this is a straight line.
	ModeStraight
	// ModeChase points the end along the chord.
	ModeChase
)

func (m CurveMode) String() string {
	switch m {
	case ModeStraight:
		return "straight"
	case ModeChase:
		return "chase"
	}
	return "curve"
}

// Next cycles through the modes.
func (m CurveMode) Next() CurveMode {
	switch m {
	case ModeCurve:
		return ModeStraight
	case ModeStraight:
		return ModeChase
	}
	return ModeCurve
}

// ParseCurveMode converts a name into a mode. The empty string is ModeCurve.
func ParseCurveMode(s string) (CurveMode, error) {
	switch strings.ToLower(s) {
	case "", "curve":
		return ModeCurve, nil
	case "straight":
		return ModeStraight, nil
	case "chase":
		return ModeChase, nil
	}
	return ModeCurve, fmt.Errorf("placement: unknown curve mode %q", s)
}

// Rail lays a new segment between two anchors.
type Rail struct {
	Start, End network.Anchor
	// StartTangent is the direction the rail leaves Start in. Zero derives
	// it: the continuation of a dead end at Start, else the chord.
	StartTangent core.Vec2
	Mode         CurveMode
	// Rotation turns the end tangent, in degrees counterclockwise.
	Rotation float64
}

func (Rail) Kind() Kind { return KindRail }
func (Rail) placeable() {}

// Curve builds the proposed track.
func (r Rail) Curve(n *network.Network) (*curve.Curve, error) {
	a, err := anchorPos(n, r.Start)
	if err != nil {
		return nil, err
	}
	b, err := anchorPos(n, r.End)
	if err != nil {
		return nil, err
	}
	chord := b.Sub(a)
	if chord.Len() < core.Epsilon {
		return nil, curve.ErrDegenerate
	}
	start := r.StartTangent.Normalize()
	if start.IsZero() {
		start = continuation(n, r.Start, a)
	}
	if start.IsZero() {
		start = chord.Normalize()
	}

	var end core.Vec2
	switch r.Mode {
	case ModeStraight:
		end = start
	case ModeChase:
		end = chord.Normalize()
	default:
		if r.Rotation == 0 {
			return curve.Symmetric(curve.ControlPoint{Pos: a, Tangent: start}, b)
		}
		end = mirror(start, chord.Normalize())
	}
	end = rotate(end, core.Radians(r.Rotation))
	return curve.New(curve.ControlPoint{Pos: a, Tangent: start}, curve.ControlPoint{Pos: b, Tangent: end})
}

func (r Rail) Validate(b Board) error {
	c, err := r.Curve(b.Network())
	if err != nil {
		return wrapCurve(err)
	}
	return b.Network().ValidateAddSegment(c, r.Start, r.End)
}

func (r Rail) Preview(b Board) Preview {
	p := Preview{Kind: KindRail}
	c, err := r.Curve(b.Network())
	if err != nil {
		p.Err = wrapCurve(err)
		return p
	}
	p.Curve = c
	p.Samples = c.UniformSamples(previewSamples)
	p.Pos = c.End().Pos
	p.Err = b.Network().ValidateAddSegment(c, r.Start, r.End)
	return p
}

func (r Rail) Commit(b Board) (Result, error) {
	c, err := r.Curve(b.Network())
	if err != nil {
		return Result{}, wrapCurve(err)
	}
	id, err := b.AddSegment(c, r.Start, r.End)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindRail, Segments: []network.SegmentID{id}}, nil
}

// Branch grows a new segment out of an existing one.
type Branch struct {
	network.Expansion
}

func (Branch) Kind() Kind { return KindRail }
func (Branch) placeable() {}

func (br Branch) Validate(b Board) error {
	return b.Network().ValidateExpand(br.Expansion)
}

func (br Branch) Preview(b Board) Preview {
	p := Preview{Kind: KindRail, Pos: br.Near, Err: b.Network().ValidateExpand(br.Expansion)}
	if id, _, err := target(b.Network(), br.Near); err == nil {
		p.Segment = id
	}
	return p
}

func (br Branch) Commit(b Board) (Result, error) {
	res, err := b.ExpandFrom(br.Expansion)
	if err != nil {
		return Result{}, err
	}
	out := Result{Kind: KindRail, Segments: []network.SegmentID{res.Segment}, Junction: res.Junction}
	if res.Split != nil {
		out.Segments = append(out.Segments, res.Split.Left, res.Split.Right)
	}
	return out, nil
}

func anchorPos(n *network.Network, a network.Anchor) (core.Vec2, error) {
	switch a.Kind {
	case network.AnchorIntersection:
		in, ok := n.Intersection(a.Intersection)
		if !ok {
			return core.Vec2{}, fmt.Errorf("%w: %s", network.ErrUnknownAnchor, a.Intersection)
		}
		return in.Pos, nil
	case network.AnchorSegment:
		seg, ok := n.Segment(a.Segment)
		if !ok {
			return core.Vec2{}, fmt.Errorf("%w: %s", network.ErrUnknownSegment, a.Segment)
		}
		t, _ := seg.Curve.NearestPoint(a.Point)
		return seg.Curve.Position(t), nil
	}
	if id, ok := n.NearestIntersection(a.Point, n.Rules().SnapTolerance); ok {
		in, _ := n.Intersection(id)
		return in.Pos, nil
	}
	return a.Point, nil
}

// continuation returns the direction straight through a dead end at the
// anchor, or zero.
func continuation(n *network.Network, a network.Anchor, pos core.Vec2) core.Vec2 {
	id := a.Intersection
	if a.Kind != network.AnchorIntersection {
		var ok bool
		if id, ok = n.NearestIntersection(pos, n.Rules().SnapTolerance); !ok {
			return core.Vec2{}
		}
	}
	in, ok := n.Intersection(id)
	if !ok || in.Degree() != 1 {
		return core.Vec2{}
	}
	return in.Bindings[0].Outgoing.Neg()
}

// mirror reflects v across the line along unit direction d.
func mirror(v, d core.Vec2) core.Vec2 {
	return d.Scale(2 * v.Dot(d)).Sub(v)
}

func rotate(v core.Vec2, rad float64) core.Vec2 {
	s, c := math.Sincos(rad)
	return core.V(v.X*c-v.Y*s, v.X*s+v.Y*c)
}

// wrapCurve reports curve construction failures as degenerate placements.
func wrapCurve(err error) error {
	if !errors.Is(err, curve.ErrDegenerate) {
		return err
	}
	return &network.PlacementError{Reason: network.ReasonDegenerateCurve, Detail: err.Error()}
}
