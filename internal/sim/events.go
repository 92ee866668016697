package sim

import (
	"fmt"

	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/traffic"
)

// EventKind classifies what happened during a tick.
type EventKind uint8

const (
	EventDispatched EventKind = iota // a route was assigned
	EventCrossed                     // a train entered a new segment
	EventHeld                        // a train started waiting for a block
	EventArrived                     // a train reached its destination
	EventStale                       // a route no longer matches the network
	EventNoRoute                     // a destination could not be reached
	EventReversed                    // a train turned around at a dead end
)

func (k EventKind) String() string {
	switch k {
	case EventDispatched:
		return "dispatched"
	case EventCrossed:
		return "crossed"
	case EventHeld:
		return "held"
	case EventArrived:
		return "arrived"
	case EventStale:
		return "stale"
	case EventNoRoute:
		return "no_route"
	case EventReversed:
		return "reversed"
	}
	return "unknown"
}

// Event is one notable change during a tick.
type Event struct {
	Tick         uint64
	Kind         EventKind
	Train        traffic.TrainID
	Segment      network.SegmentID
	Intersection network.IntersectionID
	Err          error
}

func (e Event) String() string {
	s := fmt.Sprintf("[%d] %s %s", e.Tick, e.Train, e.Kind)
	if e.Segment != 0 {
		s += " " + e.Segment.String()
	}
	if e.Intersection != 0 {
		s += " at " + e.Intersection.String()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Trip is a completed journey.
type Trip struct {
	Train       traffic.TrainID
	Origin      network.IntersectionID
	Destination network.IntersectionID
	Legs        int
	Distance    float64
	Ticks       uint64
}

// MutationRecord is one attempted topology change.
type MutationRecord struct {
	Version   uint64 // network version after the attempt
	Op        string
	Detail    string
	ErrorKind string // empty when accepted
}

// Recorder persists what happened during a run.
type Recorder interface {
	RecordMutation(MutationRecord) error
	RecordTrip(Trip) error
}

// Metrics receives counters and gauges from the world.
type Metrics interface {
	ObserveMutation(op, result string)
	ObserveRoute(algorithm, result string, seconds float64)
	ObserveReservation(result string)
	ObserveGraphRebuild()
	ObserveTrip()
	SetTopology(segments, intersections, trains int)
}

type nopRecorder struct{}

func (nopRecorder) RecordMutation(MutationRecord) error { return nil }
func (nopRecorder) RecordTrip(Trip) error               { return nil }

type nopMetrics struct{}

func (nopMetrics) ObserveMutation(string, string)       {}
func (nopMetrics) ObserveRoute(string, string, float64) {}
func (nopMetrics) ObserveReservation(string)            {}
func (nopMetrics) ObserveGraphRebuild()                 {}
func (nopMetrics) ObserveTrip()                         {}
func (nopMetrics) SetTopology(int, int, int)            {}
