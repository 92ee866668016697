package placement

import (
	"fmt"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/traffic"
)

// Train places a train on the track nearest At.
type Train struct {
	ID    traffic.TrainID
	At    core.Vec2
	Speed float64
	// Backward runs the train against the segment's parameter direction.
	Backward bool
}

func (Train) Kind() Kind { return KindTrain }
func (Train) placeable() {}

func (p Train) direction() network.Direction {
	if p.Backward {
		return network.Backward
	}
	return network.Forward
}

// spot finds the segment and parameter the train would stand on.
func (p Train) spot(b Board) (network.SegmentID, float64, error) {
	if p.ID == "" {
		return 0, 0, fmt.Errorf("placement: train needs an id")
	}
	if p.Speed <= 0 {
		return 0, 0, fmt.Errorf("placement: train %s speed %v must be positive", p.ID, p.Speed)
	}
	id, t, err := target(b.Network(), p.At)
	if err != nil {
		return 0, 0, err
	}
	if held := b.Traffic().HeldBy(p.ID); len(held) > 0 {
		return 0, 0, fmt.Errorf("placement: train %s already placed", p.ID)
	}
	block := traffic.BlockID{Segment: id, Direction: p.direction()}
	for _, blk := range []traffic.BlockID{block, block.Opposite()} {
		if s, who := b.Traffic().State(blk); s != traffic.Free {
			return 0, 0, &traffic.DeniedError{Block: block, Holder: who, Held: blk}
		}
	}
	return id, t, nil
}

func (p Train) Validate(b Board) error {
	_, _, err := p.spot(b)
	return err
}

func (p Train) Preview(b Board) Preview {
	pv := Preview{Kind: KindTrain, Pos: p.At}
	id, t, err := p.spot(b)
	pv.Err = err
	if err == nil {
		pv.Segment = id
		if seg, ok := b.Network().Segment(id); ok {
			pv.Pos = seg.Curve.Position(t)
		}
	}
	return pv
}

func (p Train) Commit(b Board) (Result, error) {
	id, t, err := p.spot(b)
	if err != nil {
		return Result{}, err
	}
	tr, err := b.PlaceTrain(p.ID, id, t, p.direction(), p.Speed)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindTrain, Train: tr}, nil
}

// Destroyer removes the segment nearest At.
type Destroyer struct {
	At core.Vec2
}

func (Destroyer) Kind() Kind { return KindDestroyer }
func (Destroyer) placeable() {}

func (d Destroyer) Validate(b Board) error {
	id, _, err := target(b.Network(), d.At)
	if err != nil {
		return err
	}
	return occupied(b, id)
}

func (d Destroyer) Preview(b Board) Preview {
	pv := Preview{Kind: KindDestroyer, Pos: d.At}
	id, _, err := target(b.Network(), d.At)
	if err != nil {
		pv.Err = err
		return pv
	}
	pv.Segment = id
	pv.Err = occupied(b, id)
	return pv
}

func (d Destroyer) Commit(b Board) (Result, error) {
	id, _, err := target(b.Network(), d.At)
	if err != nil {
		return Result{}, err
	}
	if err := b.RemoveSegment(id); err != nil {
		return Result{}, err
	}
	return Result{Kind: KindDestroyer, Removed: id}, nil
}

// occupied rejects removal of a segment a train is on.
func occupied(b Board, id network.SegmentID) error {
	for _, dir := range []network.Direction{network.Forward, network.Backward} {
		blk := traffic.BlockID{Segment: id, Direction: dir}
		if s, who := b.Traffic().State(blk); s == traffic.Occupied {
			return &network.PlacementError{Reason: network.ReasonTrainOnSegment, Segment: id, Detail: string(who)}
		}
	}
	return nil
}
