// Package sim owns a running rail network: the track, the trains on it and
// the fixed-timestep loop that moves them.
//
// A World is driven from a single goroutine. Every topology change goes
// through its mutation methods, which log, trace, count and journal the
// attempt; reads go through snapshots.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vovakirdan/railsim/internal/config"
	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
	"github.com/vovakirdan/railsim/internal/navgraph"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/placement"
	"github.com/vovakirdan/railsim/internal/traffic"
	"github.com/vovakirdan/railsim/internal/train"
)

const tracerName = "github.com/vovakirdan/railsim/internal/sim"

// ErrUnknownTrain is returned for a train id not in the world.
var ErrUnknownTrain = errors.New("sim: unknown train")

// ErrDuplicateTrain is returned when a train id is already in use.
var ErrDuplicateTrain = errors.New("sim: duplicate train")

// Vehicle is a train with its dispatch bookkeeping.
type Vehicle struct {
	*train.Train
	Color core.Color

	trip      trip
	planning  bool   // a background plan is pending
	plans     uint64 // bumped per request; older results are dropped
	holdTicks int
}

type trip struct {
	origin    network.IntersectionID
	dest      network.IntersectionID
	legs      int
	distance  float64
	startTick uint64
	active    bool
}

// Option configures a World.
type Option func(*World)

// WithConfig sets the configuration. Rules are taken from its rail section.
func WithConfig(cfg config.Config) Option {
	return func(w *World) {
		w.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(w *World) {
		w.log = l
	}
}

// WithRecorder journals mutations and trips.
func WithRecorder(r Recorder) Option {
	return func(w *World) {
		w.rec = r
	}
}

// WithMetrics reports counters and gauges.
func WithMetrics(m Metrics) Option {
	return func(w *World) {
		w.metrics = m
	}
}

// WithContext sets the context used for traces and background planning.
func WithContext(ctx context.Context) Option {
	return func(w *World) {
		w.ctx = ctx
	}
}

// World is the single owner of a simulated network. It is not safe for
// concurrent use.
type World struct {
	cfg     config.Config
	log     *log.Logger
	rec     Recorder
	metrics Metrics
	ctx     context.Context

	net     *network.Network
	cache   *navgraph.Cache
	planner *navgraph.Planner
	traffic *traffic.Controller
	trains  *train.Controller

	fleet    []*Vehicle
	byID     map[traffic.TrainID]*Vehicle
	patrol   *Dispatcher
	stations map[string]network.IntersectionID
	pending  []pendingPlan
	events   []Event
	tick     uint64
	rebuilds int

	closers []func()
}

// New returns an empty world.
func New(opts ...Option) *World {
	w := &World{
		cfg:     config.Default(),
		log:     log.New(io.Discard),
		rec:     nopRecorder{},
		metrics: nopMetrics{},
		ctx:     context.Background(),
		byID:    make(map[traffic.TrainID]*Vehicle),
	}
	w.stations = make(map[string]network.IntersectionID)
	for _, opt := range opts {
		opt(w)
	}

	w.net = network.New(network.WithRules(w.cfg.NetworkRules()), network.WithGuard(w.guard))
	w.cache = navgraph.NewCache(w.net)
	w.planner = navgraph.NewPlanner(w.cache, w.net)
	w.traffic = traffic.NewController()
	w.trains = train.NewController(w.net, w.traffic)
	w.patrol = NewDispatcher()
	w.closers = append(w.closers, w.cache.Watch(w.net), w.net.Subscribe(w.onChange))
	return w
}

// Close stops background work.
func (w *World) Close() {
	for _, fn := range w.closers {
		fn()
	}
	w.closers = nil
	w.planner.Wait()
}

// Config returns the configuration in use.
func (w *World) Config() config.Config {
	return w.cfg
}

// Network returns the track.
func (w *World) Network() *network.Network {
	return w.net
}

// Traffic returns the block reservations.
func (w *World) Traffic() *traffic.Controller {
	return w.traffic
}

// Dispatcher returns the patrol dispatcher.
func (w *World) Dispatcher() *Dispatcher {
	return w.patrol
}

// Tick returns the number of completed steps.
func (w *World) Tick() uint64 {
	return w.tick
}

// Graph returns the current navigation graph.
func (w *World) Graph() *navgraph.Graph {
	g := w.cache.Graph()
	if n := w.cache.Rebuilds(); n != w.rebuilds {
		for ; w.rebuilds < n; w.rebuilds++ {
			w.metrics.ObserveGraphRebuild()
		}
	}
	return g
}

// guard refuses to remove track under a train.
func (w *World) guard(seg network.SegmentID) error {
	for _, v := range w.fleet {
		if v.Segment == seg {
			return fmt.Errorf("%s is on it", v.ID)
		}
	}
	return nil
}

func (w *World) onChange(ch network.Change) {
	if pruned := w.traffic.Prune(w.net.HasSegment); len(pruned) > 0 {
		w.log.Debug("reservations pruned", "count", len(pruned), "version", ch.Version)
	}
	w.metrics.SetTopology(w.net.SegmentCount(), w.net.IntersectionCount(), len(w.fleet))
}

// mutation runs one topology change with tracing, metrics, the journal and
// logging around it.
func (w *World) mutation(op, detail string, fn func() error) error {
	_, span := otel.Tracer(tracerName).Start(w.ctx, "sim/"+op)
	defer span.End()
	span.SetAttributes(attribute.String("detail", detail))

	err := fn()
	version := w.net.Version()
	kind := network.ErrorKind(err)
	result := "ok"
	if err != nil {
		result = kind
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		w.log.Warn("mutation rejected", "op", op, "detail", detail, "err", err)
	} else {
		w.log.Info("mutation", "op", op, "detail", detail, "version", version)
	}
	span.SetAttributes(attribute.String("result", result), attribute.Int64("version", int64(version)))
	w.metrics.ObserveMutation(op, result)
	if rerr := w.rec.RecordMutation(MutationRecord{Version: version, Op: op, Detail: detail, ErrorKind: kind}); rerr != nil {
		w.log.Error("journal write failed", "op", op, "err", rerr)
	}
	return err
}

// AddSegment adds a curve between two anchors.
func (w *World) AddSegment(c *curve.Curve, start, end network.Anchor) (network.SegmentID, error) {
	var id network.SegmentID
	err := w.mutation(network.ChangeAddSegment.String(), fmt.Sprintf("%s -> %s", start, end), func() error {
		var err error
		id, err = w.net.AddSegment(c, start, end)
		return err
	})
	return id, err
}

// InsertMid splits a segment at parameter t.
func (w *World) InsertMid(seg network.SegmentID, t float64) (network.Split, error) {
	var sp network.Split
	err := w.mutation(network.ChangeInsertMid.String(), fmt.Sprintf("%s at %.3f", seg, t), func() error {
		var err error
		sp, err = w.net.InsertMid(seg, t)
		return err
	})
	return sp, err
}

// ExpandFrom branches a new segment off an existing one.
func (w *World) ExpandFrom(x network.Expansion) (network.ExpandResult, error) {
	var res network.ExpandResult
	err := w.mutation(network.ChangeExpandFrom.String(), fmt.Sprintf("%s near %s -> %s", x.Segment, x.Near, x.End), func() error {
		var err error
		res, err = w.net.ExpandFrom(x)
		return err
	})
	return res, err
}

// RemoveSegment removes a segment. Track under a train cannot be removed.
func (w *World) RemoveSegment(id network.SegmentID) error {
	return w.mutation(network.ChangeRemoveSegment.String(), id.String(), func() error {
		return w.net.RemoveSegment(id)
	})
}

// RemoveIntersection removes a dead-end intersection and its segment.
func (w *World) RemoveIntersection(id network.IntersectionID) error {
	return w.mutation(network.ChangeRemoveIntersection.String(), id.String(), func() error {
		return w.net.RemoveIntersection(id)
	})
}

// Place commits a placeable.
func (w *World) Place(p placement.Placeable) (placement.Result, error) {
	return p.Commit(w)
}

// Preview describes what placing p would do.
func (w *World) Preview(p placement.Placeable) placement.Preview {
	return p.Preview(w)
}

// PlaceTrain puts a new train on a segment.
func (w *World) PlaceTrain(id traffic.TrainID, seg network.SegmentID, t float64, dir network.Direction, speed float64) (*train.Train, error) {
	if _, ok := w.byID[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTrain, id)
	}
	if speed <= 0 {
		speed = w.cfg.Sim.DefaultSpeed
	}
	tr, err := w.trains.Place(id, seg, t, dir, speed)
	if err != nil {
		w.log.Warn("train placement rejected", "train", id, "segment", seg, "err", err)
		return nil, err
	}
	v := &Vehicle{Train: tr, Color: core.TrainColor(len(w.fleet))}
	w.fleet = append(w.fleet, v)
	w.byID[id] = v
	w.metrics.SetTopology(w.net.SegmentCount(), w.net.IntersectionCount(), len(w.fleet))
	w.log.Info("train placed", "train", id, "segment", seg, "t", t, "direction", dir)
	return tr, nil
}

// PlaceTrainNear puts a new train on the track nearest p.
func (w *World) PlaceTrainNear(id traffic.TrainID, p core.Vec2, speed float64, backward bool) (*train.Train, error) {
	if speed <= 0 {
		speed = w.cfg.Sim.DefaultSpeed
	}
	res, err := w.Place(placement.Train{ID: id, At: p, Speed: speed, Backward: backward})
	if err != nil {
		return nil, err
	}
	return res.Train, nil
}

// RemoveTrain takes a train off the track.
func (w *World) RemoveTrain(id traffic.TrainID) error {
	v, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrain, id)
	}
	w.trains.Remove(v.Train)
	delete(w.byID, id)
	for i, f := range w.fleet {
		if f == v {
			w.fleet = append(w.fleet[:i], w.fleet[i+1:]...)
			break
		}
	}
	w.patrol.Clear(id)
	w.metrics.SetTopology(w.net.SegmentCount(), w.net.IntersectionCount(), len(w.fleet))
	w.log.Info("train removed", "train", id)
	return nil
}

// Vehicle returns a train by id.
func (w *World) Vehicle(id traffic.TrainID) (*Vehicle, bool) {
	v, ok := w.byID[id]
	return v, ok
}

// Vehicles returns the trains in placement order.
func (w *World) Vehicles() []*Vehicle {
	return append([]*Vehicle(nil), w.fleet...)
}

// TrainStatus is a read-only view of one train.
type TrainStatus struct {
	ID          traffic.TrainID
	Color       core.Color
	Segment     network.SegmentID
	T           float64
	Direction   network.Direction
	State       train.State
	Destination network.IntersectionID // zero without a route
	Remaining   float64
	Pos         core.Vec2
	Heading     core.Vec2
	HoldTicks   int
}

// Status reports every train in placement order.
func (w *World) Status() []TrainStatus {
	out := make([]TrainStatus, 0, len(w.fleet))
	for _, v := range w.fleet {
		st := TrainStatus{
			ID:        v.ID,
			Color:     v.Color,
			Segment:   v.Segment,
			T:         v.T,
			Direction: v.Direction,
			State:     v.State(),
			HoldTicks: v.holdTicks,
		}
		if d, ok := v.Destination(); ok {
			st.Destination = d
		}
		if seg, ok := w.net.Segment(v.Segment); ok {
			st.Remaining = v.Remaining(seg)
		}
		st.Pos, st.Heading, _ = w.trains.Position(v.Train)
		out = append(out, st)
	}
	return out
}

// Elapsed returns the simulated time covered by the completed steps at the
// configured tick rate.
func (w *World) Elapsed() time.Duration {
	rate := w.cfg.Sim.TickRate
	if rate <= 0 {
		rate = 30
	}
	return time.Duration(w.tick) * time.Second / time.Duration(rate)
}
