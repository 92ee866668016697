// Package network holds the rail topology: segments of track, the
// intersections joining them, and the validated mutations that edit them.
//
// A Network is safe for concurrent use. Mutations are exclusive and atomic:
// they are staged on a copy of the state and swapped in only when every
// check passes, so a rejected edit leaves the network exactly as it was.
package network

import (
	"math"
	"sort"
	"sync"

	"github.com/vovakirdan/railsim/internal/core"
)

// Guard is consulted for every existing segment a mutation would remove or
// replace. A non-nil error rejects the mutation with ReasonTrainOnSegment.
// It runs under the network's write lock and must not call back into it.
type Guard func(SegmentID) error

// Option configures a Network.
type Option func(*Network)

// WithRules sets the validator limits.
func WithRules(r Rules) Option {
	return func(n *Network) {
		n.rules = r.withDefaults()
	}
}

// WithGuard installs a guard.
func WithGuard(g Guard) Option {
	return func(n *Network) {
		n.guard = g
	}
}

// Network is the aggregate owner of segments and intersections.
type Network struct {
	mu        sync.RWMutex
	rules     Rules
	guard     Guard
	st        *state
	listeners []listener
	nextSub   int
}

type listener struct {
	id int
	fn func(Change)
}

type state struct {
	version  uint64
	nextSeg  SegmentID
	segments map[SegmentID]Segment
	reg      *Registry
}

func (s *state) clone() *state {
	c := &state{
		version:  s.version,
		nextSeg:  s.nextSeg,
		segments: make(map[SegmentID]Segment, len(s.segments)),
		reg:      s.reg.Clone(),
	}
	for id, seg := range s.segments {
		c.segments[id] = seg
	}
	return c
}

func (s *state) segmentIDs() []SegmentID {
	ids := make([]SegmentID, 0, len(s.segments))
	for id := range s.segments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *state) sideOf(seg Segment, e Endpoint) Side {
	in, ok := s.reg.Get(seg.Intersection(e))
	if !ok {
		return SideRight
	}
	return in.SideOf(seg.Outgoing(e))
}

// New returns an empty network.
func New(opts ...Option) *Network {
	n := &Network{
		rules: DefaultRules(),
		st: &state{
			segments: make(map[SegmentID]Segment),
			reg:      NewRegistry(),
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetGuard replaces the guard.
func (n *Network) SetGuard(g Guard) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.guard = g
}

// Rules returns the validator limits in effect.
func (n *Network) Rules() Rules {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.rules
}

// Subscribe registers fn to be called after every successful mutation.
// Listeners run outside the network lock, in registration order.
// The returned func removes the listener.
func (n *Network) Subscribe(fn func(Change)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextSub++
	id := n.nextSub
	n.listeners = append(n.listeners, listener{id: id, fn: fn})
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, l := range n.listeners {
			if l.id == id {
				n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

// Version increases by one on every successful mutation.
func (n *Network) Version() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.st.version
}

// Segment returns the segment with the given ID.
func (n *Network) Segment(id SegmentID) (Segment, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	seg, ok := n.st.segments[id]
	return seg, ok
}

// HasSegment reports whether the segment exists.
func (n *Network) HasSegment(id SegmentID) bool {
	_, ok := n.Segment(id)
	return ok
}

// Segments returns all segments ordered by ID.
func (n *Network) Segments() []Segment {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := n.st.segmentIDs()
	out := make([]Segment, len(ids))
	for i, id := range ids {
		out[i] = n.st.segments[id]
	}
	return out
}

// SegmentCount returns the number of segments.
func (n *Network) SegmentCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.st.segments)
}

// IntersectionCount returns the number of intersections.
func (n *Network) IntersectionCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.st.reg.Len()
}

// Intersection returns an intersection with its bindings.
func (n *Network) Intersection(id IntersectionID) (IntersectionInfo, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.st.intersectionInfo(id)
}

// DegreeOf returns the number of segment endpoints bound to an intersection.
func (n *Network) DegreeOf(id IntersectionID) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.st.reg.DegreeOf(id)
}

// SideOf returns the side of the intersection the given segment end is on.
func (n *Network) SideOf(seg SegmentID, e Endpoint) (Side, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.st.segments[seg]
	if !ok {
		return SideRight, false
	}
	return n.st.sideOf(s, e), true
}

// NearestSegment returns the segment closest to p with the curve parameter
// and distance of the closest point. Ties go to the lowest ID.
func (n *Network) NearestSegment(p core.Vec2) (SegmentID, float64, float64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var best SegmentID
	bestT, bestD := 0.0, math.Inf(1)
	for _, id := range n.st.segmentIDs() {
		t, d := n.st.segments[id].Curve.NearestPoint(p)
		if d < bestD {
			best, bestT, bestD = id, t, d
		}
	}
	return best, bestT, bestD, best != 0
}

// NearestIntersection returns the intersection closest to p within tol.
func (n *Network) NearestIntersection(p core.Vec2, tol float64) (IntersectionID, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.st.reg.Nearest(p, tol)
}

// BindingInfo is a binding with its side at the intersection.
type BindingInfo struct {
	Binding
	Side     Side
	Outgoing core.Vec2
}

// IntersectionInfo is an intersection with its bindings.
type IntersectionInfo struct {
	Intersection
	Bindings []BindingInfo
}

// Degree returns the number of bindings.
func (i IntersectionInfo) Degree() int {
	return len(i.Bindings)
}

func (s *state) intersectionInfo(id IntersectionID) (IntersectionInfo, bool) {
	in, ok := s.reg.Get(id)
	if !ok {
		return IntersectionInfo{}, false
	}
	info := IntersectionInfo{Intersection: in}
	for _, b := range s.reg.Bindings(id) {
		seg := s.segments[b.Segment]
		out := seg.Outgoing(b.Endpoint)
		info.Bindings = append(info.Bindings, BindingInfo{Binding: b, Side: in.SideOf(out), Outgoing: out})
	}
	return info, true
}

// SegmentInfo is a segment with the sides its ends occupy.
type SegmentInfo struct {
	Segment
	StartSide Side
	EndSide   Side
}

// Side returns the side occupied by the given end.
func (s SegmentInfo) Side(e Endpoint) Side {
	if e == EndpointEnd {
		return s.EndSide
	}
	return s.StartSide
}

// Snapshot is an immutable view of the topology at one version.
type Snapshot struct {
	Version       uint64
	Segments      []SegmentInfo      // ascending ID
	Intersections []IntersectionInfo // ascending ID
}

// Snapshot enumerates the topology.
func (n *Network) Snapshot() *Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()

	st := n.st
	snap := &Snapshot{Version: st.version}
	for _, id := range st.segmentIDs() {
		seg := st.segments[id]
		snap.Segments = append(snap.Segments, SegmentInfo{
			Segment:   seg,
			StartSide: st.sideOf(seg, EndpointStart),
			EndSide:   st.sideOf(seg, EndpointEnd),
		})
	}
	for _, id := range st.reg.IDs() {
		info, _ := st.intersectionInfo(id)
		snap.Intersections = append(snap.Intersections, info)
	}
	return snap
}

// Segment looks up a segment in the snapshot.
func (s *Snapshot) Segment(id SegmentID) (SegmentInfo, bool) {
	i := sort.Search(len(s.Segments), func(i int) bool { return s.Segments[i].ID >= id })
	if i < len(s.Segments) && s.Segments[i].ID == id {
		return s.Segments[i], true
	}
	return SegmentInfo{}, false
}

// Intersection looks up an intersection in the snapshot.
func (s *Snapshot) Intersection(id IntersectionID) (IntersectionInfo, bool) {
	i := sort.Search(len(s.Intersections), func(i int) bool { return s.Intersections[i].ID >= id })
	if i < len(s.Intersections) && s.Intersections[i].ID == id {
		return s.Intersections[i], true
	}
	return IntersectionInfo{}, false
}

// Bounds returns the box around every control point in the snapshot.
func (s *Snapshot) Bounds() core.Bounds {
	b := core.EmptyBounds()
	for _, seg := range s.Segments {
		for _, p := range seg.Curve.Controls() {
			b = b.Extend(p)
		}
	}
	for _, in := range s.Intersections {
		b = b.Extend(in.Pos)
	}
	return b
}
