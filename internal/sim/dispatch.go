package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/railsim/internal/navgraph"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/traffic"
	"github.com/vovakirdan/railsim/internal/train"
)

type pendingPlan struct {
	train    traffic.TrainID
	ch       <-chan navgraph.Result
	seq      uint64
	started  time.Time
	reversed bool
}

// Async reports whether routes are planned in the background for the
// current network size.
func (w *World) Async() bool {
	t := w.cfg.Routing.AsyncThreshold
	return t > 0 && w.net.SegmentCount() >= t
}

// Dispatch sends a train to dest. A train whose way ahead cannot reach dest
// turns around once and tries the other way. On large networks the route is
// planned in the background and assigned on a later step.
func (w *World) Dispatch(id traffic.TrainID, dest network.IntersectionID) error {
	v, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrain, id)
	}
	if !w.Graph().HasIntersection(dest) {
		return fmt.Errorf("%w: %s does not exist", navgraph.ErrNoRoute, dest)
	}
	w.trains.Stop(v.Train)
	v.trip = trip{dest: dest}
	v.plans++
	v.planning = false
	return w.plan(v, dest, false)
}

func (w *World) request(v *Vehicle, dest network.IntersectionID) (navgraph.Request, error) {
	dep, err := w.trains.Departure(v.Train)
	if err != nil {
		return navgraph.Request{}, err
	}
	opts := []navgraph.Option{navgraph.WithAlgorithm(w.cfg.Algorithm())}
	if p := w.cfg.Routing.TrafficPenalty; p > 0 {
		opts = append(opts, navgraph.WithEdgeCost(w.congestionCost(v.ID, p)))
	}
	return navgraph.Request{
		From:        dep,
		Directed:    true,
		Destination: dest,
		Options:     opts,
	}, nil
}

// congestionCost prices segments another train holds in either direction at
// their length plus penalty. Reservations are read now, so the cost is safe
// to use from a background search.
func (w *World) congestionCost(id traffic.TrainID, penalty float64) navgraph.EdgeCost {
	busy := make(map[network.SegmentID]bool)
	for _, r := range w.traffic.Snapshot() {
		if r.Train != id {
			busy[r.Block.Segment] = true
		}
	}
	return func(e navgraph.Edge) float64 {
		if busy[e.Segment] {
			return e.Length + penalty
		}
		return e.Length
	}
}

func (w *World) plan(v *Vehicle, dest network.IntersectionID, reversed bool) error {
	req, err := w.request(v, dest)
	if err != nil {
		return err
	}
	w.Graph()
	if w.Async() {
		v.planning = true
		v.plans++
		w.pending = append(w.pending, pendingPlan{
			train:    v.ID,
			ch:       w.planner.Plan(w.ctx, req),
			seq:      v.plans,
			started:  time.Now(),
			reversed: reversed,
		})
		w.log.Debug("route requested", "train", v.ID, "destination", dest)
		return nil
	}
	start := time.Now()
	r, err := w.planner.Route(w.ctx, req)
	return w.finishPlan(v, req, r, err, time.Since(start), reversed)
}

// finishPlan assigns a planned route, or handles the failure.
func (w *World) finishPlan(v *Vehicle, req navgraph.Request, r navgraph.Route, err error, took time.Duration, reversed bool) error {
	alg := w.cfg.Algorithm().String()
	switch {
	case err == nil:
		w.metrics.ObserveRoute(alg, "ok", took.Seconds())
	case errors.Is(err, navgraph.ErrStaleRoute):
		w.metrics.ObserveRoute(alg, "stale", took.Seconds())
		w.log.Debug("discarding stale plan", "train", v.ID, "destination", req.Destination)
		return w.plan(v, req.Destination, reversed)
	case errors.Is(err, navgraph.ErrNoRoute) && !reversed:
		w.metrics.ObserveRoute(alg, "no_route", took.Seconds())
		if rerr := w.trains.Reverse(v.Train); rerr != nil {
			w.emit(Event{Kind: EventNoRoute, Train: v.ID, Intersection: req.Destination, Err: err})
			return err
		}
		w.emit(Event{Kind: EventReversed, Train: v.ID, Segment: v.Segment})
		w.log.Info("train reversed", "train", v.ID, "segment", v.Segment)
		return w.plan(v, req.Destination, true)
	default:
		w.metrics.ObserveRoute(alg, "no_route", took.Seconds())
		w.emit(Event{Kind: EventNoRoute, Train: v.ID, Intersection: req.Destination, Err: err})
		w.log.Warn("no route", "train", v.ID, "destination", req.Destination, "err", err)
		return err
	}

	if err := w.trains.Assign(v.Train, r); err != nil {
		if errors.Is(err, navgraph.ErrStaleRoute) {
			return w.plan(v, req.Destination, reversed)
		}
		w.log.Error("route rejected by train", "train", v.ID, "route", r.String(), "err", err)
		return err
	}
	v.trip = trip{
		origin:    r.Start,
		dest:      r.Destination,
		legs:      len(r.Legs),
		distance:  r.Distance,
		startTick: w.tick,
		active:    true,
	}
	w.emit(Event{Kind: EventDispatched, Train: v.ID, Intersection: r.Destination})
	w.log.Info("train dispatched", "train", v.ID, "route", r.String(), "distance", r.Distance)
	return nil
}

// collectPlans assigns finished background plans. Plans for trains that
// were removed or redispatched meanwhile are dropped, and plans searched on
// an older network version are replanned.
func (w *World) collectPlans() {
	pending := w.pending
	w.pending = nil
	var keep []pendingPlan
	for _, p := range pending {
		select {
		case res, ok := <-p.ch:
			if !ok {
				continue
			}
			v, exists := w.byID[p.train]
			if !exists || v.plans != p.seq {
				continue
			}
			v.planning = false
			err := res.Err
			if err == nil && res.Route.Version != w.net.Version() {
				err = fmt.Errorf("%w: planned on version %d, network at %d", navgraph.ErrStaleRoute, res.Route.Version, w.net.Version())
			}
			if err := w.finishPlan(v, res.Request, res.Route, err, time.Since(p.started), p.reversed); err != nil {
				w.log.Debug("background plan failed", "train", p.train, "err", err)
			}
		default:
			keep = append(keep, p)
		}
	}
	// Replans queued by finishPlan land in w.pending during the loop.
	w.pending = append(keep, w.pending...)
}

// Reroute replans a train to its current destination.
func (w *World) Reroute(id traffic.TrainID) error {
	v, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrain, id)
	}
	if v.trip.dest == 0 {
		return nil
	}
	return w.Dispatch(id, v.trip.dest)
}

// RerouteAll replans every train that has a destination and returns the
// first error.
func (w *World) RerouteAll() error {
	var first error
	for _, v := range w.fleet {
		if v.trip.dest == 0 || v.State() == train.Arrived {
			continue
		}
		if err := w.Reroute(v.ID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Dispatcher sends patrolling trains round-robin between their stops.
type Dispatcher struct {
	routes map[traffic.TrainID]*patrol
}

type patrol struct {
	stops []network.IntersectionID
	next  int
}

// NewDispatcher returns a dispatcher with no patrols.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{routes: make(map[traffic.TrainID]*patrol)}
}

// Assign sets the stops a train cycles through.
func (d *Dispatcher) Assign(id traffic.TrainID, stops ...network.IntersectionID) {
	if len(stops) == 0 {
		d.Clear(id)
		return
	}
	d.routes[id] = &patrol{stops: append([]network.IntersectionID(nil), stops...)}
}

// Clear stops patrolling.
func (d *Dispatcher) Clear(id traffic.TrainID) {
	delete(d.routes, id)
}

// Stops returns a train's patrol stops.
func (d *Dispatcher) Stops(id traffic.TrainID) []network.IntersectionID {
	p, ok := d.routes[id]
	if !ok {
		return nil
	}
	return append([]network.IntersectionID(nil), p.stops...)
}

// Next returns the stop to send the train to and advances the cycle.
func (d *Dispatcher) Next(id traffic.TrainID) (network.IntersectionID, bool) {
	p, ok := d.routes[id]
	if !ok {
		return 0, false
	}
	stop := p.stops[p.next%len(p.stops)]
	p.next++
	return stop, true
}

// SetPatrol makes a train cycle through stops.
func (w *World) SetPatrol(id traffic.TrainID, stops ...network.IntersectionID) error {
	if _, ok := w.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrain, id)
	}
	w.patrol.Assign(id, stops...)
	return nil
}

// dispatchIdle sends idle patrolling trains to their next stop. A stop the
// train cannot reach is skipped until the next cycle.
func (w *World) dispatchIdle(v *Vehicle) {
	if v.planning {
		return
	}
	switch v.State() {
	case train.Idle, train.Arrived:
	default:
		return
	}
	dest, ok := w.patrol.Next(v.ID)
	if !ok {
		return
	}
	if err := w.Dispatch(v.ID, dest); err != nil {
		w.log.Debug("patrol stop skipped", "train", v.ID, "stop", dest, "err", err)
	}
}
