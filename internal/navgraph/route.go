package navgraph

import (
	"fmt"
	"strings"

	"github.com/vovakirdan/railsim/internal/network"
)

// Leg is one segment of a route, traversed in one direction.
type Leg struct {
	Segment    network.SegmentID
	Direction  network.Direction
	From       network.IntersectionID
	To         network.IntersectionID
	Length     float64
	Cost       float64
	Cumulative float64 // distance from the route start to the end of this leg
}

// Entry returns the segment end the train enters through.
func (l Leg) Entry() network.Endpoint {
	return l.Direction.Entry()
}

// Route is an immutable path through the network.
type Route struct {
	Start       network.IntersectionID
	Destination network.IntersectionID
	Legs        []Leg
	Distance    float64
	Cost        float64
	Version     uint64 // network version of the graph searched
	Algorithm   Algorithm
}

// Empty reports whether the route has no legs.
func (r Route) Empty() bool {
	return len(r.Legs) == 0
}

// Nodes returns the intersections visited, start first.
func (r Route) Nodes() []network.IntersectionID {
	out := []network.IntersectionID{r.Start}
	for _, l := range r.Legs {
		out = append(out, l.To)
	}
	return out
}

// Segments returns the segments traversed in order.
func (r Route) Segments() []network.SegmentID {
	out := make([]network.SegmentID, len(r.Legs))
	for i, l := range r.Legs {
		out[i] = l.Segment
	}
	return out
}

// Remaining returns the distance left after finishing leg i.
func (r Route) Remaining(i int) float64 {
	if i < 0 || i >= len(r.Legs) {
		return 0
	}
	return r.Distance - r.Legs[i].Cumulative
}

func (r Route) String() string {
	if r.Empty() {
		return fmt.Sprintf("%s (empty)", r.Start)
	}
	var b strings.Builder
	b.WriteString(r.Start.String())
	for _, l := range r.Legs {
		fmt.Fprintf(&b, " -%s/%s-> %s", l.Segment, l.Direction, l.To)
	}
	fmt.Fprintf(&b, " (%.1f)", r.Distance)
	return b.String()
}
