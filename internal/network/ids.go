package network

import (
	"fmt"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
)

// SegmentID identifies a segment. IDs increase monotonically and are never
// reused, so a stale ID never refers to a newer segment. Zero is never issued.
type SegmentID uint64

func (id SegmentID) String() string {
	return fmt.Sprintf("S%d", uint64(id))
}

// IntersectionID identifies an intersection. Same rules as SegmentID.
type IntersectionID uint64

func (id IntersectionID) String() string {
	return fmt.Sprintf("I%d", uint64(id))
}

// Endpoint names one end of a segment.
type Endpoint uint8

const (
	EndpointStart Endpoint = iota // parameter 0
	EndpointEnd                   // parameter 1
)

func (e Endpoint) String() string {
	if e == EndpointEnd {
		return "end"
	}
	return "start"
}

// Other returns the opposite end.
func (e Endpoint) Other() Endpoint {
	if e == EndpointEnd {
		return EndpointStart
	}
	return EndpointEnd
}

// Param returns the curve parameter of the endpoint.
func (e Endpoint) Param() float64 {
	if e == EndpointEnd {
		return 1
	}
	return 0
}

// Side is one of the two halves of an intersection. A train that arrives
// through one side leaves through the other.
type Side uint8

const (
	SideRight Side = iota
	SideLeft
)

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Direction is the way a train runs along a segment's curve.
type Direction uint8

const (
	Forward  Direction = iota // from start (t=0) to end (t=1)
	Backward                  // from end to start
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Backward {
		return Forward
	}
	return Backward
}

// Entry returns the endpoint a train enters through.
func (d Direction) Entry() Endpoint {
	if d == Backward {
		return EndpointEnd
	}
	return EndpointStart
}

// Exit returns the endpoint a train leaves through.
func (d Direction) Exit() Endpoint {
	return d.Entry().Other()
}

// Binding is one segment endpoint attached to an intersection.
type Binding struct {
	Segment  SegmentID
	Endpoint Endpoint
}

func (b Binding) String() string {
	return fmt.Sprintf("%s/%s", b.Segment, b.Endpoint)
}

// Segment is one piece of track. Its curve starts at Start and ends at End.
type Segment struct {
	ID    SegmentID
	Curve *curve.Curve
	Start IntersectionID
	End   IntersectionID
}

// Intersection returns the intersection bound at the given end.
func (s Segment) Intersection(e Endpoint) IntersectionID {
	if e == EndpointEnd {
		return s.End
	}
	return s.Start
}

// Length returns the arc length of the segment.
func (s Segment) Length() float64 {
	return s.Curve.Length()
}

// Outgoing returns the unit direction pointing from the intersection at e
// into the segment.
func (s Segment) Outgoing(e Endpoint) core.Vec2 {
	if e == EndpointEnd {
		return s.Curve.End().Tangent.Neg()
	}
	return s.Curve.Start().Tangent
}

// Chord returns the unit direction from the endpoint e to the other end.
func (s Segment) Chord(e Endpoint) core.Vec2 {
	a, b := s.Curve.Start().Pos, s.Curve.End().Pos
	if e == EndpointEnd {
		a, b = b, a
	}
	return b.Sub(a).Normalize()
}

// Intersection is a junction point where segment endpoints meet.
type Intersection struct {
	ID  IntersectionID
	Pos core.Vec2
	// RightForward is fixed at creation. A binding whose outgoing direction
	// has a positive dot product with it is on the right side.
	RightForward core.Vec2
}

// SideOf classifies an outgoing direction at this intersection.
func (in Intersection) SideOf(outgoing core.Vec2) Side {
	if outgoing.Dot(in.RightForward) > 0 {
		return SideRight
	}
	return SideLeft
}
