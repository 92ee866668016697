package network

import (
	"math"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
)

// radiusSamples is the number of parameter steps used by the curvature check.
const radiusSamples = 64

// proposal is a new segment waiting for validation. Its ends already sit on
// the resolved intersections.
type proposal struct {
	curve *curve.Curve
	start IntersectionID
	end   IntersectionID
}

// contact is a point where two polylines touch.
type contact struct {
	pos     core.Vec2
	angle   float64 // radians, acute angle between the touching pieces
	overlap bool    // collinear pieces sharing a stretch of track
}

// validate runs every check in order and returns the first rejection.
func validate(st *state, r Rules, p proposal) error {
	checks := []func(*state, Rules, proposal) error{
		checkDegenerate,
		checkSelfOverlap,
		checkRadius,
		checkJunctionAngles,
		checkCrossings,
	}
	for _, check := range checks {
		if err := check(st, r, p); err != nil {
			return err
		}
	}
	return nil
}

func checkDegenerate(_ *state, r Rules, p proposal) error {
	if p.curve == nil {
		return reject(ReasonDegenerateCurve, 0, "no curve")
	}
	if p.start == p.end {
		return reject(ReasonDegenerateCurve, 0, "both ends at %s", p.start)
	}
	l := p.curve.Length()
	if math.IsNaN(l) || l < r.MinSegmentLength {
		return reject(ReasonDegenerateCurve, 0, "length %.2f below %.2f", l, r.MinSegmentLength)
	}
	return nil
}

func checkSelfOverlap(_ *state, r Rules, p proposal) error {
	pts := p.curve.Polyline(r.SampleSpacing)
	for i := 0; i+2 < len(pts); i++ {
		a := pts[i+1].Sub(pts[i])
		b := pts[i+2].Sub(pts[i+1])
		if a.Dot(b) < 0 {
			return reject(ReasonOverlap, 0, "curve folds back near %s", pts[i+1])
		}
	}
	for i := 0; i+1 < len(pts); i++ {
		for j := i + 2; j+1 < len(pts); j++ {
			if c, ok := touch(pts[i], pts[i+1], pts[j], pts[j+1]); ok {
				return reject(ReasonOverlap, 0, "curve crosses itself at %s", c.pos)
			}
		}
	}
	return nil
}

func checkRadius(_ *state, r Rules, p proposal) error {
	if r.MinCurveRadius <= 0 {
		return nil
	}
	if rad := p.curve.MinRadius(radiusSamples); rad < r.MinCurveRadius {
		return reject(ReasonCurveTooSharp, 0, "radius %.2f below %.2f", rad, r.MinCurveRadius)
	}
	return nil
}

// checkJunctionAngles compares the new chord against the chords of segments
// already leaving each end intersection.
func checkJunctionAngles(st *state, r Rules, p proposal) error {
	ends := []struct {
		id    IntersectionID
		chord core.Vec2
	}{
		{p.start, p.curve.End().Pos.Sub(p.curve.Start().Pos)},
		{p.end, p.curve.Start().Pos.Sub(p.curve.End().Pos)},
	}
	for _, e := range ends {
		for _, b := range st.reg.Bindings(e.id) {
			seg, ok := st.segments[b.Segment]
			if !ok {
				continue
			}
			deg := core.Degrees(core.AngleBetween(e.chord, seg.Chord(b.Endpoint)))
			if deg < r.MinJunctionAngle {
				return reject(ReasonTooShallow, seg.ID, "%.1f° at %s, minimum %.1f°", deg, e.id, r.MinJunctionAngle)
			}
		}
	}
	return nil
}

func checkCrossings(st *state, r Rules, p proposal) error {
	clearance := r.junctionClearance()
	box := p.curve.Bounds().Pad(clearance)
	pts := p.curve.Polyline(r.SampleSpacing)

	for _, id := range st.segmentIDs() {
		seg := st.segments[id]
		if !box.Intersects(seg.Curve.Bounds()) {
			continue
		}
		shared := sharedPositions(st, p, seg)
		other := seg.Curve.Polyline(r.SampleSpacing)
		for _, c := range contacts(pts, other) {
			if nearAny(c.pos, shared, clearance) {
				continue
			}
			if c.overlap {
				return reject(ReasonOverlap, seg.ID, "tracks overlap at %s", c.pos)
			}
			if deg := core.Degrees(c.angle); deg < r.MinCrossingAngle {
				return reject(ReasonAngleTooSharp, seg.ID, "crossing at %.1f°, minimum %.1f°", deg, r.MinCrossingAngle)
			}
		}
	}
	return nil
}

func sharedPositions(st *state, p proposal, seg Segment) []core.Vec2 {
	var out []core.Vec2
	for _, id := range []IntersectionID{p.start, p.end} {
		if id != seg.Start && id != seg.End {
			continue
		}
		if in, ok := st.reg.Get(id); ok {
			out = append(out, in.Pos)
		}
	}
	return out
}

func nearAny(p core.Vec2, pts []core.Vec2, tol float64) bool {
	for _, q := range pts {
		if p.Dist(q) <= tol {
			return true
		}
	}
	return false
}

// contacts lists every point where the two polylines touch.
func contacts(a, b []core.Vec2) []contact {
	var out []contact
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if c, ok := touch(a[i], a[i+1], b[j], b[j+1]); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// touch intersects the pieces a0-a1 and b0-b1.
func touch(a0, a1, b0, b1 core.Vec2) (contact, bool) {
	const tol = 1e-9
	d1 := a1.Sub(a0)
	d2 := b1.Sub(b0)
	l1, l2 := d1.Len(), d2.Len()
	if l1 < core.Epsilon || l2 < core.Epsilon {
		return contact{}, false
	}
	denom := d1.Cross(d2)
	w := b0.Sub(a0)

	if math.Abs(denom) <= tol*l1*l2 {
		// Parallel: only collinear pieces sharing a stretch count.
		if math.Abs(d1.Cross(w))/l1 > 1e-6 {
			return contact{}, false
		}
		u := d1.Scale(1 / l1)
		lo := math.Max(0, math.Min(w.Dot(u), b1.Sub(a0).Dot(u)))
		hi := math.Min(l1, math.Max(w.Dot(u), b1.Sub(a0).Dot(u)))
		if hi-lo <= 1e-6 {
			return contact{}, false
		}
		return contact{pos: a0.Add(u.Scale((lo + hi) / 2)), overlap: true}, true
	}

	s := w.Cross(d2) / denom
	t := w.Cross(d1) / denom
	if s < -tol || s > 1+tol || t < -tol || t > 1+tol {
		return contact{}, false
	}
	return contact{pos: a0.Add(d1.Scale(s)), angle: core.LineAngle(d1, d2)}, true
}
