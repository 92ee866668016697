// Package placement turns editor intents into network and train changes.
//
// Every placeable shares one contract: Validate reports whether the intent
// would be accepted, Preview describes what it would do without changing
// anything, and Commit applies it. The set of placeables is closed.
package placement

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/curve"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/traffic"
	"github.com/vovakirdan/railsim/internal/train"
)

// ErrNothingThere is returned when a placeable finds no segment within
// reach of its point.
var ErrNothingThere = errors.New("placement: no segment within reach")

// Kind identifies a placeable variant.
type Kind uint8

const (
	KindRail Kind = iota
	KindTrain
	KindDestroyer
	KindStation
)

func (k Kind) String() string {
	switch k {
	case KindTrain:
		return "train"
	case KindDestroyer:
		return "destroyer"
	case KindStation:
		return "station"
	}
	return "rail"
}

// Board is the mutable world a placeable acts on.
type Board interface {
	Network() *network.Network
	Traffic() *traffic.Controller
	AddSegment(c *curve.Curve, start, end network.Anchor) (network.SegmentID, error)
	ExpandFrom(x network.Expansion) (network.ExpandResult, error)
	InsertMid(seg network.SegmentID, t float64) (network.Split, error)
	RemoveSegment(id network.SegmentID) error
	PlaceTrain(id traffic.TrainID, seg network.SegmentID, t float64, dir network.Direction, speed float64) (*train.Train, error)
	Station(name string) (network.IntersectionID, bool)
	AddStation(name string, at network.IntersectionID) error
}

// Placeable is one editor intent.
type Placeable interface {
	Kind() Kind
	Validate(b Board) error
	Preview(b Board) Preview
	Commit(b Board) (Result, error)

	placeable()
}

// Preview shows what a commit would do.
type Preview struct {
	Kind    Kind
	Err     error             // nil when the commit would be accepted
	Curve   *curve.Curve      // proposed track, for rails
	Samples []curve.Sample    // Curve sampled for drawing
	Segment network.SegmentID // target segment, for placeables acting on track
	Pos     core.Vec2         // where the intent lands
}

// Valid reports whether the previewed commit would be accepted.
func (p Preview) Valid() bool {
	return p.Err == nil
}

// Result reports what a commit changed.
type Result struct {
	Kind     Kind
	Segments []network.SegmentID // segments added
	Junction network.IntersectionID
	Removed  network.SegmentID
	Train    *train.Train
	Station  string
}

func (r Result) String() string {
	switch r.Kind {
	case KindTrain:
		return fmt.Sprintf("train %s on %s", r.Train.ID, r.Train.Segment)
	case KindDestroyer:
		return fmt.Sprintf("removed %s", r.Removed)
	case KindStation:
		return fmt.Sprintf("station %s at %s", r.Station, r.Junction)
	}
	return fmt.Sprintf("added %v", r.Segments)
}

// previewSamples is how many samples a rail preview carries.
const previewSamples = 32

// reach is how far from track a placed point may be.
func reach(n *network.Network) float64 {
	r := n.Rules()
	return 4 * r.SnapTolerance
}

// target finds the segment nearest p within reach.
func target(n *network.Network, p core.Vec2) (network.SegmentID, float64, error) {
	id, t, dist, ok := n.NearestSegment(p)
	if !ok || dist > reach(n) {
		return 0, 0, fmt.Errorf("%w: %s", ErrNothingThere, p)
	}
	return id, t, nil
}
