// Package navgraph derives a directed navigation graph from the rail network
// and searches it for routes.
//
// Every intersection contributes two departure ports, one per side. A train
// that arrives through a binding on one side must leave through the other,
// so an edge runs from the port a segment leaves through to the opposite
// port at its far end. Each segment yields one edge per direction, weighted
// by arc length.
package navgraph

import (
	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/network"
)

// Port is a graph node: leaving an intersection through one side.
type Port struct {
	Intersection network.IntersectionID
	Side         network.Side
}

func (p Port) String() string {
	return p.Intersection.String() + "/" + p.Side.String()
}

// NodeID indexes a port in a Graph.
type NodeID int

// Edge is one segment traversed in one direction.
type Edge struct {
	From      NodeID
	To        NodeID
	Segment   network.SegmentID
	Direction network.Direction
	Length    float64
}

// Source is anything that can produce a topology snapshot.
type Source interface {
	Snapshot() *network.Snapshot
	Version() uint64
}

// Graph is an immutable navigation graph built from one network version.
type Graph struct {
	Version uint64

	ports []Port
	index map[Port]NodeID
	pos   map[network.IntersectionID]core.Vec2
	edges []Edge
	out   [][]int // node -> edge indices, insertion order
}

// Build derives the graph from the current state of src.
func Build(src Source) *Graph {
	return FromSnapshot(src.Snapshot())
}

// FromSnapshot derives the graph from a snapshot. Edges are inserted in
// ascending segment order, forward before backward.
func FromSnapshot(snap *network.Snapshot) *Graph {
	g := &Graph{
		Version: snap.Version,
		ports:   make([]Port, 0, 2*len(snap.Intersections)),
		index:   make(map[Port]NodeID, 2*len(snap.Intersections)),
		pos:     make(map[network.IntersectionID]core.Vec2, len(snap.Intersections)),
		edges:   make([]Edge, 0, 2*len(snap.Segments)),
	}
	for _, in := range snap.Intersections {
		g.pos[in.ID] = in.Pos
		for _, side := range []network.Side{network.SideRight, network.SideLeft} {
			p := Port{Intersection: in.ID, Side: side}
			g.index[p] = NodeID(len(g.ports))
			g.ports = append(g.ports, p)
		}
	}
	g.out = make([][]int, len(g.ports))

	for _, seg := range snap.Segments {
		l := seg.Length()
		g.addEdge(
			Port{seg.Start, seg.StartSide},
			Port{seg.End, seg.EndSide.Opposite()},
			seg.ID, network.Forward, l,
		)
		g.addEdge(
			Port{seg.End, seg.EndSide},
			Port{seg.Start, seg.StartSide.Opposite()},
			seg.ID, network.Backward, l,
		)
	}
	return g
}

func (g *Graph) addEdge(from, to Port, seg network.SegmentID, dir network.Direction, length float64) {
	f, ok := g.index[from]
	if !ok {
		return
	}
	t, ok := g.index[to]
	if !ok {
		return
	}
	g.out[f] = append(g.out[f], len(g.edges))
	g.edges = append(g.edges, Edge{From: f, To: t, Segment: seg, Direction: dir, Length: length})
}

// Node returns the node of a port.
func (g *Graph) Node(p Port) (NodeID, bool) {
	id, ok := g.index[p]
	return id, ok
}

// Port returns the port of a node.
func (g *Graph) Port(id NodeID) Port {
	return g.ports[id]
}

// Position returns the location of an intersection.
func (g *Graph) Position(id network.IntersectionID) (core.Vec2, bool) {
	p, ok := g.pos[id]
	return p, ok
}

// HasIntersection reports whether the intersection is in the graph.
func (g *Graph) HasIntersection(id network.IntersectionID) bool {
	_, ok := g.pos[id]
	return ok
}

// Out returns the edges leaving a node in insertion order.
func (g *Graph) Out(id NodeID) []Edge {
	idx := g.out[id]
	out := make([]Edge, len(idx))
	for i, e := range idx {
		out[i] = g.edges[e]
	}
	return out
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// NodeCount returns the number of ports.
func (g *Graph) NodeCount() int {
	return len(g.ports)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}
