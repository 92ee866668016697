package navgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
	"github.com/vovakirdan/railsim/internal/network"
)

type fixture struct {
	n   *network.Network
	ids map[string]network.IntersectionID
	seg map[string]network.SegmentID
}

// newFixture builds straight segments between named points. Each entry of
// edges is "AB" for a segment from A to B.
func newFixture(t *testing.T, points map[string]core.Vec2, edges ...string) *fixture {
	t.Helper()
	f := &fixture{n: network.New(), ids: map[string]network.IntersectionID{}, seg: map[string]network.SegmentID{}}
	for _, e := range edges {
		a, b := points[e[:1]], points[e[1:]]
		c, err := curve.Straight(a, b)
		require.NoError(t, err)
		id, err := f.n.AddSegment(c, network.AtPoint(a), network.AtPoint(b))
		require.NoError(t, err, "adding %s", e)
		f.seg[e] = id
	}
	for name, p := range points {
		if id, ok := f.n.NearestIntersection(p, 0.01); ok {
			f.ids[name] = id
		}
	}
	return f
}

func line(t *testing.T) *fixture {
	return newFixture(t, map[string]core.Vec2{
		"A": core.V(0, 0),
		"B": core.V(10, 0),
		"C": core.V(25, 0),
	}, "AB", "BC")
}

func TestBuild(t *testing.T) {
	f := line(t)
	g := Build(f.n)

	assert.Equal(t, f.n.Version(), g.Version)
	assert.Equal(t, 6, g.NodeCount())
	require.Equal(t, 4, g.EdgeCount())

	edges := g.Edges()
	want := []struct {
		seg string
		dir network.Direction
	}{
		{"AB", network.Forward}, {"AB", network.Backward},
		{"BC", network.Forward}, {"BC", network.Backward},
	}
	for i, w := range want {
		assert.Equal(t, f.seg[w.seg], edges[i].Segment, "edge %d", i)
		assert.Equal(t, w.dir, edges[i].Direction, "edge %d", i)
	}
	assert.InDelta(t, 10, edges[0].Length, 1e-9)
	assert.InDelta(t, 15, edges[2].Length, 1e-9)

	// A through train arrives at B on one side and leaves on the other.
	into := g.Port(edges[0].To)
	out := g.Port(edges[2].From)
	assert.Equal(t, into, out)
	assert.Equal(t, f.ids["B"], into.Intersection)
}

func TestFindRouteAlongLine(t *testing.T) {
	f := line(t)
	g := Build(f.n)

	for _, alg := range []Algorithm{Dijkstra, AStar} {
		t.Run(alg.String(), func(t *testing.T) {
			r, err := FindRoute(g, f.ids["A"], f.ids["C"], WithAlgorithm(alg))
			require.NoError(t, err)

			assert.InDelta(t, 25, r.Distance, 1e-9)
			assert.InDelta(t, 25, r.Cost, 1e-9)
			assert.Equal(t, []network.IntersectionID{f.ids["A"], f.ids["B"], f.ids["C"]}, r.Nodes())
			assert.Equal(t, []network.SegmentID{f.seg["AB"], f.seg["BC"]}, r.Segments())
			require.Len(t, r.Legs, 2)
			assert.Equal(t, network.Forward, r.Legs[0].Direction)
			assert.InDelta(t, 10, r.Legs[0].Cumulative, 1e-9)
			assert.InDelta(t, 15, r.Remaining(0), 1e-9)
			assert.Equal(t, g.Version, r.Version)
		})
	}

	back, err := FindRoute(g, f.ids["C"], f.ids["A"])
	require.NoError(t, err)
	assert.Equal(t, network.Backward, back.Legs[0].Direction)
	assert.Equal(t, []network.IntersectionID{f.ids["C"], f.ids["B"], f.ids["A"]}, back.Nodes())
}

func TestFindRouteToSelf(t *testing.T) {
	f := line(t)
	r, err := FindRoute(Build(f.n), f.ids["A"], f.ids["A"])
	require.NoError(t, err)
	assert.True(t, r.Empty())
	assert.Zero(t, r.Cost)
	assert.Equal(t, []network.IntersectionID{f.ids["A"]}, r.Nodes())
}

func TestFindRouteNoRoute(t *testing.T) {
	f := newFixture(t, map[string]core.Vec2{
		"A": core.V(0, 0),
		"B": core.V(10, 0),
		"D": core.V(0, 50),
		"E": core.V(10, 50),
	}, "AB", "DE")
	g := Build(f.n)

	_, err := FindRoute(g, f.ids["A"], f.ids["E"])
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = FindRoute(g, f.ids["A"], 999)
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = FindRoute(g, 999, f.ids["A"])
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestFindRouteFromIsDirectional(t *testing.T) {
	f := line(t)
	g := Build(f.n)

	toward, ok := f.n.SideOf(f.seg["BC"], network.EndpointStart)
	require.True(t, ok)

	r, err := FindRouteFrom(g, Port{Intersection: f.ids["B"], Side: toward}, f.ids["C"])
	require.NoError(t, err)
	assert.Equal(t, []network.SegmentID{f.seg["BC"]}, r.Segments())

	// Leaving B the other way heads to A, which is a dead end.
	_, err = FindRouteFrom(g, Port{Intersection: f.ids["B"], Side: toward.Opposite()}, f.ids["C"])
	assert.ErrorIs(t, err, ErrNoRoute)
}

func diamond(t *testing.T) *fixture {
	return newFixture(t, map[string]core.Vec2{
		"A": core.V(0, 0),
		"B": core.V(10, 10),
		"C": core.V(10, -10),
		"D": core.V(20, 0),
	}, "AB", "AC", "BD", "CD")
}

func TestFindRouteTiesAreDeterministic(t *testing.T) {
	f := diamond(t)
	g := Build(f.n)

	first, err := FindRoute(g, f.ids["A"], f.ids["D"])
	require.NoError(t, err)
	assert.Equal(t, []network.SegmentID{f.seg["AB"], f.seg["BD"]}, first.Segments(),
		"equal-cost paths resolve to the first inserted edge")

	for i := 0; i < 20; i++ {
		again, err := FindRoute(Build(f.n), f.ids["A"], f.ids["D"])
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestAStarMatchesDijkstra(t *testing.T) {
	points := map[string]core.Vec2{}
	names := "abcdefghi"
	for i, r := range names {
		points[string(r)] = core.V(float64(i%3)*50, float64(i/3)*40)
	}
	f := newFixture(t, points,
		"ab", "bc", "de", "ef", "gh", "hi",
		"ad", "dg", "be", "eh", "cf", "fi",
	)
	g := Build(f.n)

	for _, from := range names {
		for _, to := range names {
			src, dst := f.ids[string(from)], f.ids[string(to)]
			d, dErr := FindRoute(g, src, dst, WithAlgorithm(Dijkstra))
			a, aErr := FindRoute(g, src, dst, WithAlgorithm(AStar))
			if dErr != nil {
				assert.ErrorIs(t, aErr, ErrNoRoute, "%c->%c", from, to)
				continue
			}
			require.NoError(t, aErr, "%c->%c", from, to)
			assert.InDelta(t, d.Distance, a.Distance, 1e-9, "%c->%c", from, to)
			assert.Equal(t, AStar, a.Algorithm)
		}
	}
}

func TestWithEdgeCost(t *testing.T) {
	f := line(t)
	double := func(e Edge) float64 { return 2 * e.Length }

	r, err := FindRoute(Build(f.n), f.ids["A"], f.ids["C"], WithEdgeCost(double), WithAlgorithm(AStar))
	require.NoError(t, err)
	assert.InDelta(t, 25, r.Distance, 1e-9)
	assert.InDelta(t, 50, r.Cost, 1e-9)
	assert.InDelta(t, 20, r.Legs[0].Cost, 1e-9)
}

func TestFindRouteCancelled(t *testing.T) {
	f := line(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FindRoute(Build(f.n), f.ids["A"], f.ids["C"], WithContext(ctx))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerify(t *testing.T) {
	f := line(t)
	r, err := FindRoute(Build(f.n), f.ids["A"], f.ids["C"])
	require.NoError(t, err)
	require.NoError(t, Verify(r, f.n))

	require.NoError(t, f.n.RemoveSegment(f.seg["BC"]))
	assert.ErrorIs(t, Verify(r, f.n), ErrStaleRoute)
}

func TestCacheRebuildsLazily(t *testing.T) {
	f := line(t)
	c := NewCache(f.n)
	assert.True(t, c.Stale())

	g1 := c.Graph()
	assert.Same(t, g1, c.Graph())
	assert.Equal(t, 1, c.Rebuilds())

	stop := c.Watch(f.n)
	defer stop()

	a, b := core.V(25, 0), core.V(40, 0)
	seg, err := curve.Straight(a, b)
	require.NoError(t, err)
	_, err = f.n.AddSegment(seg, network.AtPoint(a), network.AtPoint(b))
	require.NoError(t, err)

	assert.True(t, c.Stale())
	assert.Equal(t, 1, c.Rebuilds(), "rebuild waits for the next request")

	g2 := c.Graph()
	assert.Equal(t, f.n.Version(), g2.Version)
	assert.Equal(t, 8, g2.NodeCount())
	assert.Equal(t, 2, c.Rebuilds())

	// Old snapshots stay valid.
	assert.Equal(t, 6, g1.NodeCount())

	c.Invalidate()
	c.Graph()
	assert.Equal(t, 3, c.Rebuilds())
}

type movedOn struct {
	*network.Network
}

func (m movedOn) Version() uint64 { return m.Network.Version() + 1 }

func TestPlanner(t *testing.T) {
	f := line(t)
	cache := NewCache(f.n)
	req := Request{From: Port{Intersection: f.ids["A"]}, Destination: f.ids["C"]}

	p := NewPlanner(cache, f.n)
	res := <-p.Plan(context.Background(), req)
	require.NoError(t, res.Err)
	assert.InDelta(t, 25, res.Route.Distance, 1e-9)
	assert.Equal(t, req, res.Request)

	stale := NewPlanner(cache, movedOn{f.n})
	res = <-stale.Plan(context.Background(), req)
	assert.ErrorIs(t, res.Err, ErrStaleRoute)
	assert.True(t, res.Route.Empty())

	p.Wait()
	stale.Wait()
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
		ok   bool
	}{
		{"", Dijkstra, true},
		{"dijkstra", Dijkstra, true},
		{"astar", AStar, true},
		{"bfs", Dijkstra, false},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, err == nil, tt.in)
	}
}
