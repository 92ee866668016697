// Package curve implements the track geometry: a 2D cubic Bézier defined by
// two control points, with arc-length parameterization, uniform sampling and
// nearest-point queries.
//
// Curves are immutable. Reshaping or splitting a curve produces new curves.
package curve

import (
	"errors"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/vovakirdan/railsim/internal/core"
)

var (
	// ErrDegenerate is returned when a curve cannot be built from its inputs:
	// coincident endpoints, zero tangents or non-finite coordinates.
	ErrDegenerate = errors.New("curve: degenerate curve")

	// ErrSplitParam is returned when a split parameter is not strictly inside (0, 1).
	ErrSplitParam = errors.New("curve: split parameter out of range")
)

// tableSize is the number of parameter intervals in the arc-length table.
const tableSize = 64

// Five-point Gauss-Legendre quadrature on [-1, 1].
var (
	glNodes   = [5]float64{-0.9061798459386640, -0.5384693101056831, 0, 0.5384693101056831, 0.9061798459386640}
	glWeights = [5]float64{0.2369268850561891, 0.4786286704993665, 0.5688888888888889, 0.4786286704993665, 0.2369268850561891}
)

// ControlPoint is a curve end: a position and a unit tangent pointing in the
// direction of increasing parameter.
type ControlPoint struct {
	Pos     core.Vec2
	Tangent core.Vec2
}

// Sample is a point taken from a curve.
type Sample struct {
	T        float64   // curve parameter
	Distance float64   // arc length from the start
	Pos      core.Vec2 // position
	Tangent  core.Vec2 // unit tangent
}

// Curve is a cubic Bézier with a precomputed arc-length table.
type Curve struct {
	p      [4]core.Vec2
	start  ControlPoint
	end    ControlPoint
	cum    [tableSize + 1]float64
	length float64
}

// New builds a curve through start and end. The inner handles are placed
// along each tangent at half the chord length.
func New(start, end ControlPoint) (*Curve, error) {
	if !start.Pos.IsFinite() || !end.Pos.IsFinite() || !start.Tangent.IsFinite() || !end.Tangent.IsFinite() {
		return nil, ErrDegenerate
	}
	chord := end.Pos.Dist(start.Pos)
	if chord < core.Epsilon {
		return nil, ErrDegenerate
	}
	ts := start.Tangent.Normalize()
	te := end.Tangent.Normalize()
	if ts.IsZero() || te.IsZero() {
		return nil, ErrDegenerate
	}

	h := chord / 2
	p := [4]core.Vec2{
		start.Pos,
		start.Pos.Add(ts.Scale(h)),
		end.Pos.Sub(te.Scale(h)),
		end.Pos,
	}
	return build(p, ControlPoint{Pos: start.Pos, Tangent: ts}, ControlPoint{Pos: end.Pos, Tangent: te}), nil
}

// FromBezier builds a curve from raw Bézier control points.
func FromBezier(p0, p1, p2, p3 core.Vec2) (*Curve, error) {
	p := [4]core.Vec2{p0, p1, p2, p3}
	for _, v := range p {
		if !v.IsFinite() {
			return nil, ErrDegenerate
		}
	}
	if p0.Dist(p3) < core.Epsilon {
		return nil, ErrDegenerate
	}
	return build(p, ControlPoint{Pos: p0, Tangent: startDir(p)}, ControlPoint{Pos: p3, Tangent: endDir(p)}), nil
}

// Straight builds a straight curve from a to b.
func Straight(a, b core.Vec2) (*Curve, error) {
	dir := b.Sub(a).Normalize()
	return New(ControlPoint{Pos: a, Tangent: dir}, ControlPoint{Pos: b, Tangent: dir})
}

// Symmetric builds an arc-like curve leaving start and ending at endPos.
// The end tangent is the start tangent reflected across the chord, which
// gives the two ends equal turning.
func Symmetric(start ControlPoint, endPos core.Vec2) (*Curve, error) {
	c := endPos.Sub(start.Pos).Normalize()
	ts := start.Tangent.Normalize()
	te := c.Scale(2 * ts.Dot(c)).Sub(ts)
	return New(start, ControlPoint{Pos: endPos, Tangent: te})
}

func build(p [4]core.Vec2, start, end ControlPoint) *Curve {
	c := &Curve{p: p, start: start, end: end}
	for i := 1; i <= tableSize; i++ {
		a := float64(i-1) / tableSize
		b := float64(i) / tableSize
		c.cum[i] = c.cum[i-1] + c.integrate(a, b)
	}
	c.length = c.cum[tableSize]
	return c
}

func startDir(p [4]core.Vec2) core.Vec2 {
	for _, q := range p[1:] {
		if d := q.Sub(p[0]); !d.IsZero() {
			return d.Normalize()
		}
	}
	return core.Vec2{}
}

func endDir(p [4]core.Vec2) core.Vec2 {
	for i := 2; i >= 0; i-- {
		if d := p[3].Sub(p[i]); !d.IsZero() {
			return d.Normalize()
		}
	}
	return core.Vec2{}
}

// Start returns the defining start control point.
func (c *Curve) Start() ControlPoint {
	return c.start
}

// End returns the defining end control point.
func (c *Curve) End() ControlPoint {
	return c.end
}

// Controls returns the four Bézier control points.
func (c *Curve) Controls() [4]core.Vec2 {
	return c.p
}

// Length returns the arc length of the curve.
func (c *Curve) Length() float64 {
	return c.length
}

// Evaluate returns the position and unit tangent at parameter t.
// t is clamped to [0, 1]. The ends return the defining positions exactly and
// the defining tangents normalized to unit length, as Start and End hold them.
func (c *Curve) Evaluate(t float64) (core.Vec2, core.Vec2) {
	if math.IsNaN(t) || t <= 0 {
		return c.start.Pos, c.start.Tangent
	}
	if t >= 1 {
		return c.end.Pos, c.end.Tangent
	}
	return c.point(t), c.tangent(t)
}

// Position returns the position at parameter t.
func (c *Curve) Position(t float64) core.Vec2 {
	p, _ := c.Evaluate(t)
	return p
}

// Tangent returns the unit tangent at parameter t.
func (c *Curve) Tangent(t float64) core.Vec2 {
	_, d := c.Evaluate(t)
	return d
}

func (c *Curve) point(t float64) core.Vec2 {
	u := 1 - t
	a := u * u * u
	b := 3 * u * u * t
	d := 3 * u * t * t
	e := t * t * t
	return core.Vec2{
		X: a*c.p[0].X + b*c.p[1].X + d*c.p[2].X + e*c.p[3].X,
		Y: a*c.p[0].Y + b*c.p[1].Y + d*c.p[2].Y + e*c.p[3].Y,
	}
}

func (c *Curve) derivative(t float64) core.Vec2 {
	u := 1 - t
	d0 := c.p[1].Sub(c.p[0]).Scale(3 * u * u)
	d1 := c.p[2].Sub(c.p[1]).Scale(6 * u * t)
	d2 := c.p[3].Sub(c.p[2]).Scale(3 * t * t)
	return d0.Add(d1).Add(d2)
}

func (c *Curve) second(t float64) core.Vec2 {
	u := 1 - t
	a := c.p[2].Sub(c.p[1].Scale(2)).Add(c.p[0]).Scale(6 * u)
	b := c.p[3].Sub(c.p[2].Scale(2)).Add(c.p[1]).Scale(6 * t)
	return a.Add(b)
}

func (c *Curve) tangent(t float64) core.Vec2 {
	d := c.derivative(t)
	if d.IsZero() {
		// Cusp: use a central difference instead.
		const h = 1e-6
		d = c.point(math.Min(1, t+h)).Sub(c.point(math.Max(0, t-h)))
	}
	return d.Normalize()
}

func (c *Curve) speed(t float64) float64 {
	return c.derivative(t).Len()
}

func (c *Curve) integrate(a, b float64) float64 {
	half := (b - a) / 2
	mid := (a + b) / 2
	var sum float64
	for i, x := range glNodes {
		sum += glWeights[i] * c.speed(mid+half*x)
	}
	return sum * half
}

// DistanceAt returns the arc length from the start to parameter t.
func (c *Curve) DistanceAt(t float64) float64 {
	if math.IsNaN(t) || t <= 0 {
		return 0
	}
	if t >= 1 {
		return c.length
	}
	i := int(t * tableSize)
	if i >= tableSize {
		i = tableSize - 1
	}
	return c.cum[i] + c.integrate(float64(i)/tableSize, t)
}

// ParamAtDistance returns the parameter at arc length s from the start.
// s is clamped to [0, Length()].
func (c *Curve) ParamAtDistance(s float64) float64 {
	if math.IsNaN(s) || s <= 0 {
		return 0
	}
	if s >= c.length {
		return 1
	}

	i := sort.SearchFloat64s(c.cum[:], s)
	if i == 0 {
		return 0
	}
	lo := float64(i-1) / tableSize
	hi := float64(i) / tableSize
	span := c.cum[i] - c.cum[i-1]
	t := lo
	if span > 0 {
		t = lo + (hi-lo)*(s-c.cum[i-1])/span
	}

	tol := 1e-10 * math.Max(1, c.length)
	for iter := 0; iter < 32; iter++ {
		f := c.DistanceAt(t) - s
		if math.Abs(f) < tol {
			break
		}
		if f > 0 {
			hi = t
		} else {
			lo = t
		}
		next := lo + (hi-lo)/2
		if v := c.speed(t); v > core.Epsilon {
			if n := t - f/v; n > lo && n < hi {
				next = n
			}
		}
		t = next
	}
	return t
}

// UniformSamples returns n samples evenly spaced by arc length, including
// both ends. n == 1 yields only the start; n <= 0 yields nothing.
func (c *Curve) UniformSamples(n int) []Sample {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []Sample{{T: 0, Distance: 0, Pos: c.start.Pos, Tangent: c.start.Tangent}}
	}

	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		s := c.length * float64(i) / float64(n-1)
		var t float64
		switch i {
		case 0:
			t = 0
		case n - 1:
			t, s = 1, c.length
		default:
			t = c.ParamAtDistance(s)
		}
		pos, tan := c.Evaluate(t)
		out[i] = Sample{T: t, Distance: s, Pos: pos, Tangent: tan}
	}
	return out
}

// Polyline returns the curve flattened into points roughly spacing apart.
// At least eight points are returned.
func (c *Curve) Polyline(spacing float64) []core.Vec2 {
	n := 8
	if spacing > 0 {
		n = core.Max(n, int(math.Ceil(c.length/spacing))+1)
	}
	samples := c.UniformSamples(n)
	pts := make([]core.Vec2, len(samples))
	for i, s := range samples {
		pts[i] = s.Pos
	}
	return pts
}

// NearestPoint returns the parameter of the curve point closest to q and the
// distance to it.
func (c *Curve) NearestPoint(q core.Vec2) (float64, float64) {
	const coarse = 33
	samples := c.UniformSamples(coarse)

	best := 0
	bestD := math.Inf(1)
	for i, s := range samples {
		if d := s.Pos.Dist(q); d < bestD {
			best, bestD = i, d
		}
	}

	lo := samples[core.Max(0, best-1)].T
	hi := samples[core.Min(coarse-1, best+1)].T

	// Golden-section refinement of the squared distance.
	const invPhi = 0.6180339887498949
	f := func(t float64) float64 {
		d := c.point(t).Sub(q)
		return d.Dot(d)
	}
	a, b := lo, hi
	x1 := b - invPhi*(b-a)
	x2 := a + invPhi*(b-a)
	f1, f2 := f(x1), f(x2)
	for i := 0; i < 80 && b-a > 1e-12; i++ {
		if f1 < f2 {
			b, x2, f2 = x2, x1, f1
			x1 = b - invPhi*(b-a)
			f1 = f(x1)
		} else {
			a, x1, f1 = x1, x2, f2
			x2 = a + invPhi*(b-a)
			f2 = f(x2)
		}
	}

	t := (a + b) / 2
	bestT, bestD := t, c.Position(t).Dist(q)
	for _, cand := range []float64{lo, hi} {
		if d := c.Position(cand).Dist(q); d < bestD {
			bestT, bestD = cand, d
		}
	}
	return bestT, bestD
}

// Split cuts the curve at t into two curves whose lengths sum to the
// original. The outer control points of the result are exactly those of c.
func (c *Curve) Split(t float64) (*Curve, *Curve, error) {
	if math.IsNaN(t) || t <= 0 || t >= 1 {
		return nil, nil, ErrSplitParam
	}
	p := c.p
	p01 := p[0].Lerp(p[1], t)
	p12 := p[1].Lerp(p[2], t)
	p23 := p[2].Lerp(p[3], t)
	p012 := p01.Lerp(p12, t)
	p123 := p12.Lerp(p23, t)
	mid := p012.Lerp(p123, t)

	junction := ControlPoint{Pos: mid, Tangent: c.tangent(t)}
	left := build([4]core.Vec2{p[0], p01, p012, mid}, c.start, junction)
	right := build([4]core.Vec2{mid, p123, p23, p[3]}, junction, c.end)
	if left.length < core.Epsilon || right.length < core.Epsilon {
		return nil, nil, ErrSplitParam
	}
	return left, right, nil
}

// Reverse returns the same track traversed from end to start.
func (c *Curve) Reverse() *Curve {
	p := [4]core.Vec2{c.p[3], c.p[2], c.p[1], c.p[0]}
	return build(p,
		ControlPoint{Pos: c.end.Pos, Tangent: c.end.Tangent.Neg()},
		ControlPoint{Pos: c.start.Pos, Tangent: c.start.Tangent.Neg()},
	)
}

// WithEndpoints returns a copy moved so that it starts at a and ends at b.
// Each handle moves with its end, so tangents are preserved.
func (c *Curve) WithEndpoints(a, b core.Vec2) (*Curve, error) {
	if a.Dist(b) < core.Epsilon {
		return nil, ErrDegenerate
	}
	da := a.Sub(c.p[0])
	db := b.Sub(c.p[3])
	p := [4]core.Vec2{c.p[0].Add(da), c.p[1].Add(da), c.p[2].Add(db), c.p[3].Add(db)}
	return build(p,
		ControlPoint{Pos: a, Tangent: c.start.Tangent},
		ControlPoint{Pos: b, Tangent: c.end.Tangent},
	), nil
}

// MinRadius returns the smallest radius of curvature found over n evenly
// spaced parameters. A straight curve returns +Inf.
func (c *Curve) MinRadius(n int) float64 {
	if n < 2 {
		n = 2
	}
	minR := math.Inf(1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		d := c.derivative(t)
		v := d.Len()
		if v < core.Epsilon {
			return 0
		}
		k := math.Abs(d.Cross(c.second(t))) / (v * v * v)
		if k > core.Epsilon {
			minR = math.Min(minR, 1/k)
		}
	}
	return minR
}

// Bounds returns a box containing the whole curve, taken from the convex
// hull of its control points.
func (c *Curve) Bounds() orb.Bound {
	mp := make(orb.MultiPoint, 0, 4)
	for _, v := range c.p {
		mp = append(mp, orb.Point{v.X, v.Y})
	}
	return mp.Bound()
}
