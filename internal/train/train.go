// Package train moves trains along routes, coordinating every block change
// with the traffic controller.
package train

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/navgraph"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/traffic"
)

// ErrBadRoute is returned when a route does not start where the train can
// go next.
var ErrBadRoute = errors.New("train: route does not fit the train")

// State is what a train is doing.
type State uint8

const (
	Idle    State = iota // no route
	Running              // following a route
	Holding              // waiting at a boundary for the next block
	Arrived              // reached its destination; route cleared
	Stale                // route no longer matches the network
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Holding:
		return "holding"
	case Arrived:
		return "arrived"
	case Stale:
		return "stale"
	}
	return "idle"
}

// Train is a single vehicle. Its position is a segment, a direction of
// travel and a curve parameter.
type Train struct {
	ID        traffic.TrainID
	Segment   network.SegmentID
	T         float64
	Direction network.Direction
	Speed     float64 // world units per second

	s     float64 // arc length from the curve start
	route *navgraph.Route
	leg   int // next leg to take at the coming boundary
	state State
}

// State returns the current state.
func (tr *Train) State() State {
	return tr.state
}

// Route returns the route being followed, or nil.
func (tr *Train) Route() *navgraph.Route {
	return tr.route
}

// NextLeg returns the index of the leg the train takes at its next boundary.
func (tr *Train) NextLeg() int {
	return tr.leg
}

// Destination returns the route destination, if any.
func (tr *Train) Destination() (network.IntersectionID, bool) {
	if tr.route == nil {
		return 0, false
	}
	return tr.route.Destination, true
}

// Block returns the block the train occupies.
func (tr *Train) Block() traffic.BlockID {
	return traffic.BlockID{Segment: tr.Segment, Direction: tr.Direction}
}

// Remaining returns the route distance left, including the rest of the
// current segment.
func (tr *Train) Remaining(seg network.Segment) float64 {
	d := toExit(tr, seg.Length())
	if tr.route == nil {
		return d
	}
	for _, l := range tr.route.Legs[tr.leg:] {
		d += l.Length
	}
	return d
}

func toExit(tr *Train, length float64) float64 {
	if tr.Direction == network.Backward {
		return tr.s
	}
	return length - tr.s
}

// Topology is the part of the network a controller reads.
type Topology interface {
	Segment(network.SegmentID) (network.Segment, bool)
	SideOf(network.SegmentID, network.Endpoint) (network.Side, bool)
	Version() uint64
}

// StepResult reports what happened during one Advance.
type StepResult struct {
	Moved     float64             // distance travelled
	Crossed   []network.SegmentID // segments entered, in order
	Completed bool                // the destination was reached
	Held      bool                // waiting at a boundary
	Denied    error               // the denial that caused the hold
}

// Controller advances trains.
type Controller struct {
	net     Topology
	traffic *traffic.Controller
}

// NewController returns a controller over the given network and traffic.
func NewController(net Topology, tc *traffic.Controller) *Controller {
	return &Controller{net: net, traffic: tc}
}

// Place puts a new train on seg at parameter t, reserving and occupying its
// block.
func (c *Controller) Place(id traffic.TrainID, seg network.SegmentID, t float64, dir network.Direction, speed float64) (*Train, error) {
	s, ok := c.net.Segment(seg)
	if !ok {
		return nil, fmt.Errorf("%w: %s", network.ErrUnknownSegment, seg)
	}
	t = core.ClampF(t, 0, 1)
	tr := &Train{ID: id, Segment: seg, T: t, Direction: dir, Speed: speed, s: s.Curve.DistanceAt(t)}
	if err := c.traffic.Request(tr.Block(), id); err != nil {
		return nil, err
	}
	if err := c.traffic.Enter(tr.Block(), id); err != nil {
		return nil, err
	}
	return tr, nil
}

// Remove releases every block held by the train.
func (c *Controller) Remove(tr *Train) {
	c.traffic.ReleaseTrain(tr.ID)
}

// Position returns the train's world position and heading.
func (c *Controller) Position(tr *Train) (core.Vec2, core.Vec2, bool) {
	seg, ok := c.net.Segment(tr.Segment)
	if !ok {
		return core.Vec2{}, core.Vec2{}, false
	}
	pos, tan := seg.Curve.Evaluate(tr.T)
	if tr.Direction == network.Backward {
		tan = tan.Neg()
	}
	return pos, tan, true
}

// Departure returns the port the train leaves through at the end of its
// current segment.
func (c *Controller) Departure(tr *Train) (navgraph.Port, error) {
	seg, ok := c.net.Segment(tr.Segment)
	if !ok {
		return navgraph.Port{}, fmt.Errorf("%w: %s", navgraph.ErrStaleRoute, tr.Segment)
	}
	exit := tr.Direction.Exit()
	side, _ := c.net.SideOf(tr.Segment, exit)
	return navgraph.Port{Intersection: seg.Intersection(exit), Side: side.Opposite()}, nil
}

// Assign sets a route starting at the train's departure port.
func (c *Controller) Assign(tr *Train, r navgraph.Route) error {
	dep, err := c.Departure(tr)
	if err != nil {
		return err
	}
	if r.Start != dep.Intersection {
		return fmt.Errorf("%w: route starts at %s, train leaves through %s", ErrBadRoute, r.Start, dep.Intersection)
	}
	if len(r.Legs) > 0 {
		first := r.Legs[0]
		side, ok := c.net.SideOf(first.Segment, first.Entry())
		if !ok {
			return fmt.Errorf("%w: %s", navgraph.ErrStaleRoute, first.Segment)
		}
		if side != dep.Side {
			return fmt.Errorf("%w: %s would reverse at %s", ErrBadRoute, first.Segment, dep.Intersection)
		}
	}
	tr.route = &r
	tr.leg = 0
	tr.state = Running
	return nil
}

// Stop clears the route.
func (c *Controller) Stop(tr *Train) {
	tr.route = nil
	tr.leg = 0
	tr.state = Idle
}

// Reverse turns the train around on its segment. The route is cleared.
func (c *Controller) Reverse(tr *Train) error {
	next := tr.Block().Opposite()
	if err := c.traffic.Request(next, tr.ID); err != nil {
		return err
	}
	if err := c.traffic.Enter(next, tr.ID); err != nil {
		return err
	}
	if err := c.traffic.Vacate(tr.Block(), tr.ID); err != nil {
		return err
	}
	tr.Direction = next.Direction
	c.Stop(tr)
	return nil
}

// Advance moves the train by Speed*dt along its route. At each segment
// boundary it checks the next leg still exists, requests its block and
// crosses only if granted; otherwise it holds at the boundary and retries on
// the next call.
func (c *Controller) Advance(tr *Train, dt float64) (StepResult, error) {
	var res StepResult
	if tr.route == nil || tr.state == Stale || tr.state == Arrived {
		return res, nil
	}

	budget := tr.Speed * dt
	if budget <= 0 {
		return res, nil
	}
	for {
		seg, ok := c.net.Segment(tr.Segment)
		if !ok {
			tr.state = Stale
			return res, fmt.Errorf("%w: %s removed under %s", navgraph.ErrStaleRoute, tr.Segment, tr.ID)
		}
		length := seg.Length()
		ahead := toExit(tr, length)
		if budget < ahead {
			tr.move(budget)
			res.Moved += budget
			tr.T = seg.Curve.ParamAtDistance(tr.s)
			if tr.state == Holding {
				tr.state = Running
			}
			return res, nil
		}
		tr.move(ahead)
		res.Moved += ahead
		budget -= ahead
		tr.T = tr.Direction.Exit().Param()

		if tr.leg >= len(tr.route.Legs) {
			tr.route = nil
			tr.leg = 0
			tr.state = Arrived
			res.Completed = true
			return res, nil
		}

		leg := tr.route.Legs[tr.leg]
		if err := c.checkLeg(tr, seg, leg); err != nil {
			tr.state = Stale
			return res, err
		}

		next := traffic.BlockID{Segment: leg.Segment, Direction: leg.Direction}
		if err := c.traffic.Request(next, tr.ID); err != nil {
			tr.state = Holding
			res.Held = true
			res.Denied = err
			return res, nil
		}
		if err := c.traffic.Enter(next, tr.ID); err != nil {
			return res, err
		}
		if err := c.traffic.Vacate(tr.Block(), tr.ID); err != nil {
			return res, err
		}

		nextSeg, _ := c.net.Segment(leg.Segment)
		tr.Segment = leg.Segment
		tr.Direction = leg.Direction
		tr.s = 0
		if leg.Direction == network.Backward {
			tr.s = nextSeg.Length()
		}
		tr.T = leg.Entry().Param()
		tr.leg++
		tr.state = Running
		res.Crossed = append(res.Crossed, leg.Segment)

		if budget <= 0 {
			return res, nil
		}
	}
}

func (tr *Train) move(d float64) {
	if tr.Direction == network.Backward {
		tr.s -= d
	} else {
		tr.s += d
	}
}

// checkLeg verifies the next leg when the network has changed since the
// route was planned.
func (c *Controller) checkLeg(tr *Train, cur network.Segment, leg navgraph.Leg) error {
	if tr.route.Version == c.net.Version() {
		return nil
	}
	rest := navgraph.Route{Legs: tr.route.Legs[tr.leg:]}
	if err := navgraph.Verify(rest, c.net); err != nil {
		return err
	}
	if cur.Intersection(tr.Direction.Exit()) != leg.From {
		return fmt.Errorf("%w: %s no longer leads to %s", navgraph.ErrStaleRoute, cur.ID, leg.From)
	}
	return nil
}
