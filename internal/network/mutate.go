package network

import (
	"fmt"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
)

// ChangeKind names the mutation that produced a Change.
type ChangeKind uint8

const (
	ChangeAddSegment ChangeKind = iota + 1
	ChangeInsertMid
	ChangeExpandFrom
	ChangeRemoveSegment
	ChangeRemoveIntersection
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAddSegment:
		return "add_segment"
	case ChangeInsertMid:
		return "insert_mid"
	case ChangeExpandFrom:
		return "expand_from"
	case ChangeRemoveSegment:
		return "remove_segment"
	case ChangeRemoveIntersection:
		return "remove_intersection"
	}
	return "unknown"
}

// Change describes one committed mutation.
type Change struct {
	Version              uint64
	Kind                 ChangeKind
	Added                []SegmentID
	Removed              []SegmentID
	AddedIntersections   []IntersectionID
	RemovedIntersections []IntersectionID
}

// Split is the result of cutting a segment in two.
type Split struct {
	Left     SegmentID // from the original start to the junction
	Right    SegmentID // from the junction to the original end
	Junction IntersectionID
}

// Expansion describes a new segment branching off an existing one.
type Expansion struct {
	Segment SegmentID
	Near    core.Vec2 // point on or near Segment where the branch starts
	Reverse bool      // leave against the segment's parameter direction
	End     Anchor
	// EndTangent is the branch direction at its far end. Zero selects an
	// arc with equal turning at both ends.
	EndTangent core.Vec2
}

// ExpandResult is the outcome of ExpandFrom.
type ExpandResult struct {
	Segment  SegmentID
	Junction IntersectionID
	Split    *Split // nil when the branch starts at an existing end
}

// tx is a mutation staged on a private copy of the state.
type tx struct {
	rules  Rules
	guard  Guard
	st     *state
	change Change
}

func (n *Network) mutate(kind ChangeKind, fn func(*tx) error) (Change, error) {
	n.mu.Lock()
	t := &tx{rules: n.rules, guard: n.guard, st: n.st.clone(), change: Change{Kind: kind}}
	if err := fn(t); err != nil {
		n.mu.Unlock()
		return Change{}, err
	}
	t.st.version++
	t.change.Version = t.st.version
	n.st = t.st
	listeners := make([]listener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.Unlock()

	for _, l := range listeners {
		l.fn(t.change)
	}
	return t.change, nil
}

func (n *Network) dryRun(fn func(*tx) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t := &tx{rules: n.rules, guard: n.guard, st: n.st.clone()}
	return fn(t)
}

// AddSegment validates c against the network and, if accepted, inserts it
// between the two anchors.
func (n *Network) AddSegment(c *curve.Curve, start, end Anchor) (SegmentID, error) {
	var id SegmentID
	_, err := n.mutate(ChangeAddSegment, func(t *tx) error {
		var err error
		id, err = t.addSegment(c, start, end)
		return err
	})
	return id, err
}

// ValidateAddSegment reports whether AddSegment would succeed, without
// changing anything.
func (n *Network) ValidateAddSegment(c *curve.Curve, start, end Anchor) error {
	return n.dryRun(func(t *tx) error {
		_, err := t.addSegment(c, start, end)
		return err
	})
}

// InsertMid splits a segment at parameter t, creating a degree-2
// intersection at the cut.
func (n *Network) InsertMid(seg SegmentID, t float64) (Split, error) {
	var sp Split
	_, err := n.mutate(ChangeInsertMid, func(x *tx) error {
		var err error
		sp, err = x.split(seg, t)
		return err
	})
	return sp, err
}

// ExpandFrom adds a segment branching tangentially off x.Segment at the
// point nearest x.Near, splitting the segment there unless the point is
// within snap tolerance of one of its ends.
func (n *Network) ExpandFrom(x Expansion) (ExpandResult, error) {
	var res ExpandResult
	_, err := n.mutate(ChangeExpandFrom, func(t *tx) error {
		var err error
		res, err = t.expand(x)
		return err
	})
	return res, err
}

// ValidateExpand reports whether ExpandFrom would succeed.
func (n *Network) ValidateExpand(x Expansion) error {
	return n.dryRun(func(t *tx) error {
		_, err := t.expand(x)
		return err
	})
}

// RemoveSegment deletes a segment. Intersections left with no bindings are
// deleted too. Curves are never merged.
func (n *Network) RemoveSegment(seg SegmentID) error {
	_, err := n.mutate(ChangeRemoveSegment, func(t *tx) error {
		return t.removeSegment(seg)
	})
	return err
}

// RemoveIntersection deletes a dangling intersection together with its only
// segment. Intersections joining two or more segments would need their
// curves merged and yield ErrUnsupportedRemoval.
func (n *Network) RemoveIntersection(id IntersectionID) error {
	_, err := n.mutate(ChangeRemoveIntersection, func(t *tx) error {
		deg := t.st.reg.DegreeOf(id)
		switch {
		case !t.st.reg.Has(id):
			return fmt.Errorf("%w: %s", ErrUnknownAnchor, id)
		case deg >= 2:
			return fmt.Errorf("%w: %s joins %d segments", ErrUnsupportedRemoval, id, deg)
		}
		b := t.st.reg.Bindings(id)[0]
		return t.removeSegment(b.Segment)
	})
	return err
}

func (t *tx) checkGuard(seg SegmentID) error {
	if t.guard == nil {
		return nil
	}
	if err := t.guard(seg); err != nil {
		return &PlacementError{Reason: ReasonTrainOnSegment, Segment: seg, Detail: err.Error()}
	}
	return nil
}

func (t *tx) nextSegmentID() SegmentID {
	t.st.nextSeg++
	return t.st.nextSeg
}

func (t *tx) addSegment(c *curve.Curve, start, end Anchor) (SegmentID, error) {
	if c == nil {
		return 0, reject(ReasonDegenerateCurve, 0, "no curve")
	}
	if a, ok := t.landing(start); ok {
		if b, ok := t.landing(end); ok && a == b {
			return 0, reject(ReasonExtendIntoSelf, a, "both ends on the same segment")
		}
	}

	startID, err := t.resolve(start, c.Start().Pos, c.Start().Tangent)
	if err != nil {
		return 0, err
	}
	endID, err := t.resolve(end, c.End().Pos, c.End().Tangent.Neg())
	if err != nil {
		return 0, err
	}
	if startID == endID {
		return 0, reject(ReasonDegenerateCurve, 0, "both ends at %s", startID)
	}

	a, _ := t.st.reg.Get(startID)
	b, _ := t.st.reg.Get(endID)
	if a.Pos != c.Start().Pos || b.Pos != c.End().Pos {
		snapped, err := c.WithEndpoints(a.Pos, b.Pos)
		if err != nil {
			return 0, reject(ReasonDegenerateCurve, 0, "%v", err)
		}
		c = snapped
	}

	if err := validate(t.st, t.rules, proposal{curve: c, start: startID, end: endID}); err != nil {
		return 0, err
	}

	id := t.nextSegmentID()
	t.st.segments[id] = Segment{ID: id, Curve: c, Start: startID, End: endID}
	if err := t.st.reg.Bind(Binding{id, EndpointStart}, startID); err != nil {
		return 0, err
	}
	if err := t.st.reg.Bind(Binding{id, EndpointEnd}, endID); err != nil {
		return 0, err
	}
	t.change.Added = append(t.change.Added, id)
	return id, nil
}

// resolve turns an anchor into an intersection ID, creating or splitting as
// needed. pos is where the new curve's end lies and outgoing its direction
// into the new segment.
func (t *tx) resolve(a Anchor, pos, outgoing core.Vec2) (IntersectionID, error) {
	tol := t.rules.SnapTolerance
	switch a.Kind {
	case AnchorIntersection:
		in, ok := t.st.reg.Get(a.Intersection)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownAnchor, a.Intersection)
		}
		if in.Pos.Dist(pos) > tol {
			return 0, reject(ReasonAnchorMismatch, 0, "curve ends %.2f from %s", in.Pos.Dist(pos), in.ID)
		}
		return in.ID, nil

	case AnchorSegment:
		seg, ok := t.st.segments[a.Segment]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownAnchor, a.Segment)
		}
		at, _ := seg.Curve.NearestPoint(a.Point)
		p := seg.Curve.Position(at)
		var id IntersectionID
		if s, _ := t.st.reg.Get(seg.Start); s.Pos.Dist(p) <= tol {
			id = seg.Start
		} else if e, _ := t.st.reg.Get(seg.End); e.Pos.Dist(p) <= tol {
			id = seg.End
		} else {
			sp, err := t.split(a.Segment, at)
			if err != nil {
				return 0, err
			}
			id = sp.Junction
		}
		in, _ := t.st.reg.Get(id)
		if in.Pos.Dist(pos) > tol {
			return 0, reject(ReasonAnchorMismatch, a.Segment, "curve ends %.2f from the track", in.Pos.Dist(pos))
		}
		return id, nil

	default:
		if pos.Dist(a.Point) > tol {
			return 0, reject(ReasonAnchorMismatch, 0, "curve ends %.2f from anchor point", pos.Dist(a.Point))
		}
		if id, ok := t.st.reg.Nearest(a.Point, tol); ok {
			return id, nil
		}
		if seg, ok := t.st.segmentNear(a.Point, tol); ok {
			return t.resolve(OnSegment(seg, a.Point), pos, outgoing)
		}
		id := t.st.reg.Create(pos, outgoing)
		t.change.AddedIntersections = append(t.change.AddedIntersections, id)
		return id, nil
	}
}

func (t *tx) split(segID SegmentID, at float64) (Split, error) {
	seg, ok := t.st.segments[segID]
	if !ok {
		return Split{}, fmt.Errorf("%w: %s", ErrUnknownSegment, segID)
	}
	if err := t.checkGuard(segID); err != nil {
		return Split{}, err
	}
	left, right, err := seg.Curve.Split(at)
	if err != nil {
		return Split{}, reject(ReasonTooCloseToIntersection, segID, "split at t=%.4f", at)
	}
	if minLen := t.rules.MinSegmentLength; left.Length() < minLen || right.Length() < minLen {
		return Split{}, reject(ReasonTooCloseToIntersection, segID,
			"halves %.2f and %.2f, minimum %.2f", left.Length(), right.Length(), minLen)
	}

	jid := t.st.reg.Create(left.End().Pos, right.Start().Tangent)
	lid := t.nextSegmentID()
	rid := t.nextSegmentID()
	t.st.segments[lid] = Segment{ID: lid, Curve: left, Start: seg.Start, End: jid}
	t.st.segments[rid] = Segment{ID: rid, Curve: right, Start: jid, End: seg.End}
	delete(t.st.segments, segID)

	reg := t.st.reg
	if err := reg.Rebind(Binding{segID, EndpointStart}, Binding{lid, EndpointStart}); err != nil {
		return Split{}, err
	}
	if err := reg.Rebind(Binding{segID, EndpointEnd}, Binding{rid, EndpointEnd}); err != nil {
		return Split{}, err
	}
	if err := reg.Bind(Binding{lid, EndpointEnd}, jid); err != nil {
		return Split{}, err
	}
	if err := reg.Bind(Binding{rid, EndpointStart}, jid); err != nil {
		return Split{}, err
	}

	t.change.Removed = append(t.change.Removed, segID)
	t.change.Added = append(t.change.Added, lid, rid)
	t.change.AddedIntersections = append(t.change.AddedIntersections, jid)
	return Split{Left: lid, Right: rid, Junction: jid}, nil
}

func (t *tx) expand(x Expansion) (ExpandResult, error) {
	seg, ok := t.st.segments[x.Segment]
	if !ok {
		return ExpandResult{}, fmt.Errorf("%w: %s", ErrUnknownSegment, x.Segment)
	}
	if x.End.Kind == AnchorSegment && x.End.Segment == x.Segment {
		return ExpandResult{}, reject(ReasonExtendIntoSelf, x.Segment, "branch ends on its own segment")
	}

	tol := t.rules.SnapTolerance
	at, _ := seg.Curve.NearestPoint(x.Near)
	pos, dir := seg.Curve.Evaluate(at)

	var res ExpandResult
	startIn, _ := t.st.reg.Get(seg.Start)
	endIn, _ := t.st.reg.Get(seg.End)
	switch {
	case startIn.Pos.Dist(pos) <= tol:
		// Continue outward past the start.
		res.Junction, pos, dir = seg.Start, startIn.Pos, seg.Curve.Start().Tangent.Neg()
	case endIn.Pos.Dist(pos) <= tol:
		res.Junction, pos, dir = seg.End, endIn.Pos, seg.Curve.End().Tangent
	default:
		if x.End.Kind == AnchorPoint {
			if _, d := seg.Curve.NearestPoint(x.End.Point); d <= tol {
				return ExpandResult{}, reject(ReasonExtendIntoSelf, x.Segment, "branch ends on its own segment")
			}
		}
		sp, err := t.split(x.Segment, at)
		if err != nil {
			return ExpandResult{}, err
		}
		res.Junction, res.Split = sp.Junction, &sp
	}
	if x.Reverse {
		dir = dir.Neg()
	}

	endPos, err := t.anchorPos(x.End)
	if err != nil {
		return ExpandResult{}, err
	}

	start := curve.ControlPoint{Pos: pos, Tangent: dir}
	var c *curve.Curve
	if x.EndTangent.IsZero() {
		c, err = curve.Symmetric(start, endPos)
	} else {
		c, err = curve.New(start, curve.ControlPoint{Pos: endPos, Tangent: x.EndTangent})
	}
	if err != nil {
		return ExpandResult{}, reject(ReasonDegenerateCurve, 0, "%v", err)
	}

	id, err := t.addSegment(c, AtIntersection(res.Junction), x.End)
	if err != nil {
		return ExpandResult{}, err
	}
	res.Segment = id
	return res, nil
}

// anchorPos returns where an anchor will resolve to without mutating.
func (t *tx) anchorPos(a Anchor) (core.Vec2, error) {
	switch a.Kind {
	case AnchorIntersection:
		in, ok := t.st.reg.Get(a.Intersection)
		if !ok {
			return core.Vec2{}, fmt.Errorf("%w: %s", ErrUnknownAnchor, a.Intersection)
		}
		return in.Pos, nil
	case AnchorSegment:
		seg, ok := t.st.segments[a.Segment]
		if !ok {
			return core.Vec2{}, fmt.Errorf("%w: %s", ErrUnknownAnchor, a.Segment)
		}
		at, _ := seg.Curve.NearestPoint(a.Point)
		return seg.Curve.Position(at), nil
	}
	if id, ok := t.st.reg.Nearest(a.Point, t.rules.SnapTolerance); ok {
		in, _ := t.st.reg.Get(id)
		return in.Pos, nil
	}
	if id, ok := t.st.segmentNear(a.Point, t.rules.SnapTolerance); ok {
		return t.anchorPos(OnSegment(id, a.Point))
	}
	return a.Point, nil
}

// landing returns the segment an anchor would split, if any.
func (t *tx) landing(a Anchor) (SegmentID, bool) {
	switch a.Kind {
	case AnchorSegment:
		return a.Segment, true
	case AnchorPoint:
		if _, ok := t.st.reg.Nearest(a.Point, t.rules.SnapTolerance); ok {
			return 0, false
		}
		return t.st.segmentNear(a.Point, t.rules.SnapTolerance)
	}
	return 0, false
}

// segmentNear returns the lowest-ID segment passing within tol of p.
func (s *state) segmentNear(p core.Vec2, tol float64) (SegmentID, bool) {
	for _, id := range s.segmentIDs() {
		if _, d := s.segments[id].Curve.NearestPoint(p); d <= tol {
			return id, true
		}
	}
	return 0, false
}

func (t *tx) removeSegment(id SegmentID) error {
	seg, ok := t.st.segments[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSegment, id)
	}
	if err := t.checkGuard(id); err != nil {
		return err
	}
	for _, e := range []Endpoint{EndpointStart, EndpointEnd} {
		in, removed, err := t.st.reg.Unbind(Binding{id, e})
		if err != nil {
			return err
		}
		if removed {
			t.change.RemovedIntersections = append(t.change.RemovedIntersections, in)
		}
	}
	delete(t.st.segments, seg.ID)
	t.change.Removed = append(t.change.Removed, id)
	return nil
}
