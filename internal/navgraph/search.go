package navgraph

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/vovakirdan/railsim/internal/network"
)

var (
	// ErrNoRoute is returned when the destination cannot be reached.
	ErrNoRoute = errors.New("navgraph: no route")

	// ErrStaleRoute is returned when a route no longer matches the network.
	ErrStaleRoute = errors.New("navgraph: stale route")
)

// Algorithm selects the search strategy.
type Algorithm uint8

const (
	Dijkstra Algorithm = iota
	AStar
)

func (a Algorithm) String() string {
	if a == AStar {
		return "astar"
	}
	return "dijkstra"
}

// ParseAlgorithm maps a name to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "", "dijkstra":
		return Dijkstra, nil
	case "astar", "a*":
		return AStar, nil
	}
	return Dijkstra, fmt.Errorf("navgraph: unknown algorithm %q", s)
}

// EdgeCost prices an edge. Costs must not be below the edge length when A*
// is used, or the heuristic stops being admissible.
type EdgeCost func(Edge) float64

// Option configures a search.
type Option func(*options)

type options struct {
	algorithm Algorithm
	cost      EdgeCost
	ctx       context.Context
}

// WithAlgorithm selects Dijkstra or A*.
func WithAlgorithm(a Algorithm) Option {
	return func(o *options) { o.algorithm = a }
}

// WithEdgeCost replaces the default length cost.
func WithEdgeCost(fn EdgeCost) Option {
	return func(o *options) { o.cost = fn }
}

// WithContext makes the search stop when ctx is done.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

func buildOptions(opts []Option) options {
	o := options{algorithm: Dijkstra, ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FindRoute searches from either departure port of start to dest.
func FindRoute(g *Graph, start, dest network.IntersectionID, opts ...Option) (Route, error) {
	if !g.HasIntersection(start) {
		return Route{}, fmt.Errorf("%w: %s not in graph", ErrNoRoute, start)
	}
	return search(g, start, []Port{
		{Intersection: start, Side: network.SideRight},
		{Intersection: start, Side: network.SideLeft},
	}, dest, buildOptions(opts))
}

// FindRouteFrom searches from one departure port, as needed by a train that
// is already committed to a direction.
func FindRouteFrom(g *Graph, from Port, dest network.IntersectionID, opts ...Option) (Route, error) {
	if !g.HasIntersection(from.Intersection) {
		return Route{}, fmt.Errorf("%w: %s not in graph", ErrNoRoute, from.Intersection)
	}
	return search(g, from.Intersection, []Port{from}, dest, buildOptions(opts))
}

type item struct {
	node NodeID
	cost float64 // cost so far
	prio float64 // cost plus heuristic
	seq  int
}

type queue []item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio < q[j].prio
	}
	return q[i].seq < q[j].seq
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

func search(g *Graph, start network.IntersectionID, from []Port, dest network.IntersectionID, o options) (Route, error) {
	destPos, ok := g.Position(dest)
	if !ok {
		return Route{}, fmt.Errorf("%w: %s not in graph", ErrNoRoute, dest)
	}
	if start == dest {
		return Route{Start: start, Destination: dest, Version: g.Version, Algorithm: o.algorithm}, nil
	}
	if err := o.ctx.Err(); err != nil {
		return Route{}, err
	}

	n := g.NodeCount()
	best := make([]float64, n)
	prev := make([]int, n) // edge index into g.edges
	done := make([]bool, n)
	for i := range best {
		best[i] = math.Inf(1)
		prev[i] = -1
	}
	heuristic := func(id NodeID) float64 {
		if o.algorithm != AStar {
			return 0
		}
		p, _ := g.Position(g.ports[id].Intersection)
		return p.Dist(destPos)
	}

	var q queue
	seq := 0
	push := func(id NodeID, cost float64) {
		heap.Push(&q, item{node: id, cost: cost, prio: cost + heuristic(id), seq: seq})
		seq++
	}
	for _, p := range from {
		id, ok := g.Node(p)
		if !ok {
			continue
		}
		best[id] = 0
		push(id, 0)
	}

	pops := 0
	for q.Len() > 0 {
		if pops++; pops%256 == 0 {
			if err := o.ctx.Err(); err != nil {
				return Route{}, err
			}
		}
		it := heap.Pop(&q).(item)
		if done[it.node] || it.cost > best[it.node] {
			continue
		}
		done[it.node] = true
		if g.ports[it.node].Intersection == dest {
			return g.route(start, dest, it.node, prev, o), nil
		}
		for _, ei := range g.out[it.node] {
			e := g.edges[ei]
			if done[e.To] {
				continue
			}
			c := it.cost + o.edgeCost(e)
			if c < best[e.To] {
				best[e.To] = c
				prev[e.To] = ei
				push(e.To, c)
			}
		}
	}
	if err := o.ctx.Err(); err != nil {
		return Route{}, err
	}
	return Route{}, fmt.Errorf("%w: %s to %s", ErrNoRoute, start, dest)
}

func (o options) edgeCost(e Edge) float64 {
	if o.cost == nil {
		return e.Length
	}
	return o.cost(e)
}

func (g *Graph) route(start, dest network.IntersectionID, end NodeID, prev []int, o options) Route {
	var rev []Edge
	for id := end; prev[id] >= 0; {
		e := g.edges[prev[id]]
		rev = append(rev, e)
		id = e.From
	}

	r := Route{Start: start, Destination: dest, Version: g.Version, Algorithm: o.algorithm}
	for i := len(rev) - 1; i >= 0; i-- {
		e := rev[i]
		c := o.edgeCost(e)
		r.Distance += e.Length
		r.Cost += c
		r.Legs = append(r.Legs, Leg{
			Segment:    e.Segment,
			Direction:  e.Direction,
			From:       g.ports[e.From].Intersection,
			To:         g.ports[e.To].Intersection,
			Length:     e.Length,
			Cost:       c,
			Cumulative: r.Distance,
		})
	}
	return r
}

// Verify reports whether every leg of r still exists in the network as
// routed. It returns ErrStaleRoute otherwise.
func Verify(r Route, n interface {
	Segment(network.SegmentID) (network.Segment, bool)
}) error {
	for _, l := range r.Legs {
		seg, ok := n.Segment(l.Segment)
		if !ok {
			return fmt.Errorf("%w: %s removed", ErrStaleRoute, l.Segment)
		}
		if seg.Intersection(l.Direction.Entry()) != l.From || seg.Intersection(l.Direction.Exit()) != l.To {
			return fmt.Errorf("%w: %s rebound", ErrStaleRoute, l.Segment)
		}
	}
	return nil
}
