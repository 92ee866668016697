package sim

import (
	"errors"

	"github.com/vovakirdan/railsim/internal/navgraph"
	"github.com/vovakirdan/railsim/internal/train"
)

func (w *World) emit(e Event) {
	e.Tick = w.tick
	w.events = append(w.events, e)
}

// Step advances the world by dt seconds and returns what happened since the
// previous step, including events raised by Dispatch in between. Trains move
// in placement order, so when two trains want the same block the one placed
// first asks first.
func (w *World) Step(dt float64) []Event {
	w.tick++

	w.collectPlans()
	for _, v := range w.Vehicles() {
		w.stepVehicle(v, dt)
	}
	events := w.events
	w.events = nil
	return events
}

func (w *World) stepVehicle(v *Vehicle, dt float64) {
	if v.State() == train.Stale && w.cfg.Routing.AutoReroute && !v.planning {
		dest := v.trip.dest
		w.log.Info("rerouting stale train", "train", v.ID, "destination", dest)
		if err := w.Dispatch(v.ID, dest); err != nil {
			w.trains.Stop(v.Train)
			v.trip = trip{}
		}
	}
	w.dispatchIdle(v)

	res, err := w.trains.Advance(v.Train, dt)
	for _, seg := range res.Crossed {
		w.metrics.ObserveReservation("granted")
		w.emit(Event{Kind: EventCrossed, Train: v.ID, Segment: seg})
	}
	if err != nil {
		if errors.Is(err, navgraph.ErrStaleRoute) {
			w.emit(Event{Kind: EventStale, Train: v.ID, Segment: v.Segment, Intersection: v.trip.dest, Err: err})
			w.log.Warn("route went stale", "train", v.ID, "segment", v.Segment, "err", err)
			return
		}
		w.log.Error("advance failed", "train", v.ID, "err", err)
		return
	}

	if res.Held {
		w.metrics.ObserveReservation("denied")
		v.holdTicks++
		if v.holdTicks == 1 {
			w.emit(Event{Kind: EventHeld, Train: v.ID, Segment: v.Segment, Err: res.Denied})
			w.log.Debug("train holding", "train", v.ID, "segment", v.Segment, "reason", res.Denied)
		}
		if n := w.cfg.Traffic.HoldWarnTicks; n > 0 && v.holdTicks == n {
			w.log.Warn("train held for a long time", "train", v.ID, "ticks", v.holdTicks, "reason", res.Denied)
		}
	} else {
		v.holdTicks = 0
	}

	if res.Completed {
		w.complete(v)
	}
}

func (w *World) complete(v *Vehicle) {
	t := v.trip
	w.emit(Event{Kind: EventArrived, Train: v.ID, Segment: v.Segment, Intersection: t.dest})
	w.log.Info("train arrived", "train", v.ID, "destination", t.dest, "distance", t.distance, "ticks", w.tick-t.startTick)
	if !t.active {
		return
	}
	v.trip.active = false
	w.metrics.ObserveTrip()
	rec := Trip{
		Train:       v.ID,
		Origin:      t.origin,
		Destination: t.dest,
		Legs:        t.legs,
		Distance:    t.distance,
		Ticks:       w.tick - t.startTick,
	}
	if err := w.rec.RecordTrip(rec); err != nil {
		w.log.Error("trip write failed", "train", v.ID, "err", err)
	}
}
