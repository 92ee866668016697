package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/vovakirdan/railsim/internal/config"
	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/placement"
	"github.com/vovakirdan/railsim/internal/traffic"
	"github.com/vovakirdan/railsim/internal/train"
)

type recorder struct {
	mutations []MutationRecord
	trips     []Trip
}

func (r *recorder) RecordMutation(m MutationRecord) error {
	r.mutations = append(r.mutations, m)
	return nil
}

func (r *recorder) RecordTrip(t Trip) error {
	r.trips = append(r.trips, t)
	return nil
}

type counters struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *counters) inc(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[key]++
}

func (c *counters) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

func (c *counters) ObserveMutation(op, result string)        { c.inc("mutation/" + op + "/" + result) }
func (c *counters) ObserveRoute(_, result string, _ float64) { c.inc("route/" + result) }
func (c *counters) ObserveReservation(result string)         { c.inc("reservation/" + result) }
func (c *counters) ObserveGraphRebuild()                     { c.inc("rebuild") }
func (c *counters) ObserveTrip()                             { c.inc("trip") }
func (c *counters) SetTopology(int, int, int)                {}

type harness struct {
	w   *World
	rec *recorder
	m   *counters
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{rec: &recorder{}, m: &counters{}}
	h.w = New(WithConfig(cfg), WithRecorder(h.rec), WithMetrics(h.m))
	t.Cleanup(h.w.Close)
	return h
}

func (h *harness) lay(t *testing.T, a, b core.Vec2) network.SegmentID {
	t.Helper()
	c, err := curve.Straight(a, b)
	if err != nil {
		t.Fatalf("Straight error: %v", err)
	}
	id, err := h.w.AddSegment(c, network.AtPoint(a), network.AtPoint(b))
	if err != nil {
		t.Fatalf("AddSegment(%v, %v) error: %v", a, b, err)
	}
	return id
}

func (h *harness) at(t *testing.T, p core.Vec2) network.IntersectionID {
	t.Helper()
	id, ok := h.w.Network().NearestIntersection(p, 0.01)
	if !ok {
		t.Fatalf("no intersection at %v", p)
	}
	return id
}

// runUntil steps until an event of kind occurs for the train.
func (h *harness) runUntil(t *testing.T, id traffic.TrainID, kind EventKind, maxTicks int) []Event {
	t.Helper()
	var seen []Event
	err := Run(context.Background(), h.w, Loop{TickRate: 10, MaxTicks: maxTicks}, func(_ uint64, events []Event) error {
		seen = append(seen, events...)
		for _, e := range events {
			if e.Train == id && e.Kind == kind {
				return ErrStop
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !hasEvent(seen, id, kind) {
		t.Fatalf("no %v event for %s within %d ticks; saw %v", kind, id, maxTicks, seen)
	}
	return seen
}

func hasEvent(events []Event, id traffic.TrainID, kind EventKind) bool {
	for _, e := range events {
		if e.Train == id && e.Kind == kind {
			return true
		}
	}
	return false
}

func line(t *testing.T, h *harness) []network.SegmentID {
	return []network.SegmentID{
		h.lay(t, core.V(0, 0), core.V(10, 0)),
		h.lay(t, core.V(10, 0), core.V(25, 0)),
	}
}

func TestDispatchArrives(t *testing.T) {
	h := newHarness(t, nil)
	seg := line(t, h)
	if _, err := h.w.PlaceTrain("T1", seg[0], 0, network.Forward, 10); err != nil {
		t.Fatalf("PlaceTrain error: %v", err)
	}
	dest := h.at(t, core.V(25, 0))

	if err := h.w.Dispatch("T1", dest); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	events := h.runUntil(t, "T1", EventArrived, 100)

	if !hasEvent(events, "T1", EventCrossed) {
		t.Error("no crossing reported")
	}
	if len(h.rec.trips) != 1 {
		t.Fatalf("recorded %d trips, want 1", len(h.rec.trips))
	}
	trip := h.rec.trips[0]
	if trip.Destination != dest || trip.Legs != 1 || math.Abs(trip.Distance-15) > 1e-9 {
		t.Errorf("trip = %+v, want one 15 unit leg to %v", trip, dest)
	}
	if h.m.get("trip") != 1 || h.m.get("route/ok") != 1 || h.m.get("reservation/granted") != 1 {
		t.Errorf("metrics = %v", h.m.counts)
	}

	st := h.w.Status()
	if len(st) != 1 || st[0].State != train.Arrived || !st[0].Pos.ApproxEqual(core.V(25, 0), 1e-6) {
		t.Errorf("status = %+v, want arrived at (25, 0)", st)
	}
}

func TestMutationsAreJournaled(t *testing.T) {
	h := newHarness(t, nil)
	seg := line(t, h)
	if _, err := h.w.PlaceTrain("T1", seg[0], 0.5, network.Forward, 10); err != nil {
		t.Fatalf("PlaceTrain error: %v", err)
	}

	err := h.w.RemoveSegment(seg[0])
	if r, _ := network.ReasonOf(err); r != network.ReasonTrainOnSegment {
		t.Fatalf("RemoveSegment under a train error = %v, want train on segment", err)
	}
	if err := h.w.RemoveSegment(seg[1]); err != nil {
		t.Fatalf("RemoveSegment error: %v", err)
	}

	want := []MutationRecord{
		{Version: 1, Op: "add_segment", ErrorKind: ""},
		{Version: 2, Op: "add_segment", ErrorKind: ""},
		{Version: 2, Op: "remove_segment", ErrorKind: "train_on_segment"},
		{Version: 3, Op: "remove_segment", ErrorKind: ""},
	}
	if diff := cmp.Diff(want, h.rec.mutations, cmpopts.IgnoreFields(MutationRecord{}, "Detail")); diff != "" {
		t.Errorf("journal mismatch (-want +got):\n%s", diff)
	}
	if h.m.get("mutation/remove_segment/train_on_segment") != 1 {
		t.Errorf("metrics = %v", h.m.counts)
	}
}

func TestDispatchReversesAtDeadEnd(t *testing.T) {
	h := newHarness(t, nil)
	seg := line(t, h)
	if _, err := h.w.PlaceTrain("T1", seg[1], 0.5, network.Forward, 10); err != nil {
		t.Fatalf("PlaceTrain error: %v", err)
	}

	if err := h.w.Dispatch("T1", h.at(t, core.V(0, 0))); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	v, _ := h.w.Vehicle("T1")
	if v.Direction != network.Backward || v.State() != train.Running {
		t.Fatalf("T1 %v %v, want running backward", v.Direction, v.State())
	}
	events := h.runUntil(t, "T1", EventArrived, 200)
	if !hasEvent(events, "T1", EventReversed) {
		t.Error("reversal not reported")
	}
	if v.Segment != seg[0] || v.T != 0 {
		t.Errorf("T1 on %v t=%v, want the start of %v", v.Segment, v.T, seg[0])
	}
}

func TestStaleRouteIsRerouted(t *testing.T) {
	h := newHarness(t, nil)
	ab := h.lay(t, core.V(0, 0), core.V(20, 0))
	h.lay(t, core.V(20, 0), core.V(40, 20))
	h.lay(t, core.V(20, 0), core.V(40, -20))
	h.lay(t, core.V(40, 20), core.V(60, 0))
	h.lay(t, core.V(40, -20), core.V(60, 0))
	if _, err := h.w.PlaceTrain("T1", ab, 0.5, network.Forward, 10); err != nil {
		t.Fatalf("PlaceTrain error: %v", err)
	}
	if err := h.w.Dispatch("T1", h.at(t, core.V(60, 0))); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	v, _ := h.w.Vehicle("T1")
	first := v.Route().Segments()
	if len(first) != 2 {
		t.Fatalf("route %v, want two legs", first)
	}
	if err := h.w.RemoveSegment(first[1]); err != nil {
		t.Fatalf("RemoveSegment error: %v", err)
	}

	events := h.runUntil(t, "T1", EventArrived, 300)
	if !hasEvent(events, "T1", EventStale) {
		t.Error("stale route not reported")
	}
	if n := len(h.rec.trips); n != 1 {
		t.Fatalf("recorded %d trips, want 1", n)
	}
	if h.rec.trips[0].Legs != 2 {
		t.Errorf("rerouted trip = %+v, want two legs", h.rec.trips[0])
	}
}

func TestDispatchAvoidsOccupiedBranch(t *testing.T) {
	tests := []struct {
		name    string
		penalty float64
		upper   bool
	}{
		{"traffic ignored", 0, true},
		{"traffic penalised", 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *config.Config) { c.Routing.TrafficPenalty = tt.penalty })
			ab := h.lay(t, core.V(0, 0), core.V(20, 0))
			upper := []network.SegmentID{
				h.lay(t, core.V(20, 0), core.V(40, 20)),
				h.lay(t, core.V(40, 20), core.V(60, 0)),
			}
			lower := []network.SegmentID{
				h.lay(t, core.V(20, 0), core.V(40, -24)),
				h.lay(t, core.V(40, -24), core.V(60, 0)),
			}
			if _, err := h.w.PlaceTrain("T1", ab, 0.5, network.Forward, 10); err != nil {
				t.Fatalf("PlaceTrain T1 error: %v", err)
			}
			if _, err := h.w.PlaceTrain("T2", upper[1], 0.5, network.Forward, 1); err != nil {
				t.Fatalf("PlaceTrain T2 error: %v", err)
			}

			if err := h.w.Dispatch("T1", h.at(t, core.V(60, 0))); err != nil {
				t.Fatalf("Dispatch error: %v", err)
			}
			v, _ := h.w.Vehicle("T1")
			want := lower
			if tt.upper {
				want = upper
			}
			if diff := cmp.Diff(want, v.Route().Segments()); diff != "" {
				t.Errorf("route mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFollowerHoldsBehindLeader(t *testing.T) {
	h := newHarness(t, nil)
	seg := []network.SegmentID{
		h.lay(t, core.V(0, 0), core.V(10, 0)),
		h.lay(t, core.V(10, 0), core.V(25, 0)),
		h.lay(t, core.V(25, 0), core.V(45, 0)),
	}
	if _, err := h.w.PlaceTrain("T1", seg[0], 0.5, network.Forward, 10); err != nil {
		t.Fatalf("PlaceTrain T1 error: %v", err)
	}
	if _, err := h.w.PlaceTrain("T2", seg[1], 0.9, network.Forward, 1); err != nil {
		t.Fatalf("PlaceTrain T2 error: %v", err)
	}
	if err := h.w.Dispatch("T1", h.at(t, core.V(25, 0))); err != nil {
		t.Fatalf("Dispatch T1 error: %v", err)
	}
	if err := h.w.Dispatch("T2", h.at(t, core.V(45, 0))); err != nil {
		t.Fatalf("Dispatch T2 error: %v", err)
	}

	events := h.runUntil(t, "T1", EventHeld, 50)
	held := 0
	for _, e := range events {
		if e.Kind == EventHeld {
			held++
			if !errors.Is(e.Err, traffic.ErrReservationDenied) {
				t.Errorf("hold reason = %v", e.Err)
			}
		}
	}
	if held != 1 {
		t.Errorf("%d hold events, want 1", held)
	}

	h.runUntil(t, "T1", EventArrived, 100)
	if h.m.get("reservation/denied") == 0 {
		t.Error("denials not counted")
	}
}

func TestPatrolCyclesStops(t *testing.T) {
	h := newHarness(t, nil)
	seg := line(t, h)
	if _, err := h.w.PlaceTrain("T1", seg[0], 0.5, network.Forward, 20); err != nil {
		t.Fatalf("PlaceTrain error: %v", err)
	}
	a, c := h.at(t, core.V(0, 0)), h.at(t, core.V(25, 0))
	if err := h.w.SetPatrol("T1", c, a); err != nil {
		t.Fatalf("SetPatrol error: %v", err)
	}

	err := Run(context.Background(), h.w, Loop{TickRate: 10, MaxTicks: 400}, func(uint64, []Event) error {
		if len(h.rec.trips) >= 3 {
			return ErrStop
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(h.rec.trips) < 3 {
		t.Fatalf("completed %d trips, want 3", len(h.rec.trips))
	}
	want := []network.IntersectionID{c, a, c}
	for i, w := range want {
		if got := h.rec.trips[i].Destination; got != w {
			t.Errorf("trip %d to %v, want %v", i, got, w)
		}
	}
	if diff := cmp.Diff([]network.IntersectionID{c, a}, h.w.Dispatcher().Stops("T1")); diff != "" {
		t.Errorf("Stops mismatch (-want +got):\n%s", diff)
	}
}

func TestPatrolBetweenStations(t *testing.T) {
	h := newHarness(t, nil)
	seg := line(t, h)
	if _, err := h.w.PlaceTrain("T1", seg[0], 0.5, network.Forward, 20); err != nil {
		t.Fatalf("PlaceTrain error: %v", err)
	}
	west, err := h.w.Place(placement.Station{Name: "West", At: core.V(0, 0.3)})
	if err != nil {
		t.Fatalf("placing West: %v", err)
	}
	halt, err := h.w.Place(placement.Station{Name: "Halt", At: core.V(18, 0)})
	if err != nil {
		t.Fatalf("placing Halt: %v", err)
	}
	if h.w.Network().HasSegment(seg[1]) {
		t.Errorf("%v should have been split for Halt", seg[1])
	}
	if _, err := h.w.Place(placement.Station{Name: "Lost", At: core.V(10, 40)}); !errors.Is(err, placement.ErrNotOnRail) {
		t.Errorf("placing off the track error = %v, want ErrNotOnRail", err)
	}

	if err := h.w.SetPatrolStations("T1", "Nowhere"); !errors.Is(err, ErrUnknownStation) {
		t.Errorf("SetPatrolStations error = %v, want ErrUnknownStation", err)
	}
	if err := h.w.SetPatrolStations("T1", "Halt", "West"); err != nil {
		t.Fatalf("SetPatrolStations error: %v", err)
	}
	want := []StationInfo{
		{Name: "Halt", Intersection: halt.Junction, Trains: []traffic.TrainID{"T1"}},
		{Name: "West", Intersection: west.Junction, Trains: []traffic.TrainID{"T1"}},
	}
	if diff := cmp.Diff(want, h.w.Stations()); diff != "" {
		t.Errorf("Stations mismatch (-want +got):\n%s", diff)
	}

	err = Run(context.Background(), h.w, Loop{TickRate: 10, MaxTicks: 400}, func(uint64, []Event) error {
		if len(h.rec.trips) >= 2 {
			return ErrStop
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(h.rec.trips) < 2 {
		t.Fatalf("completed %d trips, want 2", len(h.rec.trips))
	}
	for i, want := range []network.IntersectionID{halt.Junction, west.Junction} {
		if got := h.rec.trips[i].Destination; got != want {
			t.Errorf("trip %d to %v, want %v", i, got, want)
		}
	}
}

func TestAsyncPlanning(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Routing.AsyncThreshold = 1 })
	seg := line(t, h)
	if _, err := h.w.PlaceTrain("T1", seg[0], 0, network.Forward, 10); err != nil {
		t.Fatalf("PlaceTrain error: %v", err)
	}
	if !h.w.Async() {
		t.Fatal("planning should be asynchronous")
	}
	if err := h.w.Dispatch("T1", h.at(t, core.V(25, 0))); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	v, _ := h.w.Vehicle("T1")
	if v.Route() != nil {
		t.Fatal("route assigned before the plan was collected")
	}

	deadline := time.Now().Add(5 * time.Second)
	for v.Route() == nil && time.Now().Before(deadline) {
		h.w.Step(0)
		time.Sleep(time.Millisecond)
	}
	if v.Route() == nil {
		t.Fatal("background plan never assigned")
	}
	h.runUntil(t, "T1", EventArrived, 100)
}

func TestAsyncPlanOutdatedByEditIsReplanned(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Routing.AsyncThreshold = 1 })
	seg := []network.SegmentID{
		h.lay(t, core.V(0, 0), core.V(10, 0)),
		h.lay(t, core.V(10, 0), core.V(25, 0)),
		h.lay(t, core.V(25, 0), core.V(40, 0)),
		h.lay(t, core.V(40, 0), core.V(55, 0)),
	}
	if _, err := h.w.PlaceTrain("T1", seg[0], 0, network.Forward, 10); err != nil {
		t.Fatalf("PlaceTrain error: %v", err)
	}
	if err := h.w.Dispatch("T1", h.at(t, core.V(55, 0))); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	h.w.planner.Wait()

	// Replace a later leg while the finished plan waits to be collected.
	if err := h.w.RemoveSegment(seg[2]); err != nil {
		t.Fatalf("RemoveSegment error: %v", err)
	}
	relaid := h.lay(t, core.V(25, 0), core.V(40, 0))

	h.w.Step(0)
	v, _ := h.w.Vehicle("T1")
	if v.Route() != nil {
		t.Fatalf("plan from an older network assigned: %v", v.Route().Segments())
	}
	if got := h.m.get("route/stale"); got != 1 {
		t.Errorf("stale plans = %d, want 1", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for v.Route() == nil && time.Now().Before(deadline) {
		h.w.Step(0)
		time.Sleep(time.Millisecond)
	}
	if v.Route() == nil {
		t.Fatal("replanned route never assigned")
	}
	if got, want := v.Route().Version, h.w.Network().Version(); got != want {
		t.Errorf("route version = %d, want %d", got, want)
	}
	want := []network.SegmentID{seg[1], relaid, seg[3]}
	if diff := cmp.Diff(want, v.Route().Segments()); diff != "" {
		t.Errorf("route segments mismatch (-want +got):\n%s", diff)
	}
	h.runUntil(t, "T1", EventArrived, 200)
}

func TestPlaceTrainErrors(t *testing.T) {
	h := newHarness(t, nil)
	seg := line(t, h)
	if _, err := h.w.PlaceTrainNear("T1", core.V(5, 0.2), 0, false); err != nil {
		t.Fatalf("PlaceTrainNear error: %v", err)
	}
	v, _ := h.w.Vehicle("T1")
	if v.Segment != seg[0] || v.Speed != config.Default().Sim.DefaultSpeed {
		t.Errorf("T1 on %v at speed %v", v.Segment, v.Speed)
	}
	if _, err := h.w.PlaceTrain("T1", seg[1], 0.5, network.Forward, 1); !errors.Is(err, ErrDuplicateTrain) {
		t.Errorf("duplicate PlaceTrain error = %v", err)
	}
	if err := h.w.Dispatch("T9", 1); !errors.Is(err, ErrUnknownTrain) {
		t.Errorf("Dispatch unknown train error = %v", err)
	}
	if err := h.w.RemoveTrain("T1"); err != nil {
		t.Fatalf("RemoveTrain error: %v", err)
	}
	if h.w.Traffic().Len() != 0 || len(h.w.Vehicles()) != 0 {
		t.Error("RemoveTrain left state behind")
	}
}

func TestRunStops(t *testing.T) {
	h := newHarness(t, nil)

	if err := Run(context.Background(), h.w, Loop{TickRate: 30, MaxTicks: 5}, nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if h.w.Tick() != 5 {
		t.Errorf("Tick = %d, want 5", h.w.Tick())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Run(ctx, h.w, Loop{TickRate: 30}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Run error = %v", err)
	}

	if err := Run(context.Background(), h.w, Loop{TickRate: 1000, MaxTicks: 3, Realtime: true}, nil); err != nil {
		t.Errorf("realtime Run error: %v", err)
	}
	if h.w.Tick() != 8 {
		t.Errorf("Tick = %d, want 8", h.w.Tick())
	}

	boom := errors.New("boom")
	err := Run(context.Background(), h.w, Loop{MaxTicks: 10}, func(uint64, []Event) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("Run error = %v, want boom", err)
	}
}
