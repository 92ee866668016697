// Package traffic implements block reservations between trains.
//
// A block is one segment traversed in one direction. Each block is Free,
// Reserved by a train about to enter it, or Occupied by a train running on
// it. Requests are granted first come, first served; there is no queueing
// and no deadlock avoidance. The two directions of a segment conflict, so
// trains never meet head on.
package traffic

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vovakirdan/railsim/internal/network"
)

// ErrReservationDenied is returned when a block is held by another train.
// It is transient: the caller retries on a later tick.
var ErrReservationDenied = errors.New("traffic: reservation denied")

// ErrNotHeld is returned when a train enters or releases a block it does not
// hold in the required state.
var ErrNotHeld = errors.New("traffic: block not held")

// TrainID identifies a train.
type TrainID string

// BlockID names a segment in one direction.
type BlockID struct {
	Segment   network.SegmentID
	Direction network.Direction
}

func (b BlockID) String() string {
	return fmt.Sprintf("%s/%s", b.Segment, b.Direction)
}

// Opposite returns the same segment in the other direction.
func (b BlockID) Opposite() BlockID {
	return BlockID{Segment: b.Segment, Direction: b.Direction.Reverse()}
}

// State is the reservation state of a block.
type State uint8

const (
	Free State = iota
	Reserved
	Occupied
)

func (s State) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case Occupied:
		return "occupied"
	}
	return "free"
}

// Reservation is a held block.
type Reservation struct {
	Block BlockID
	Train TrainID
	State State
}

// DeniedError explains a denied request.
type DeniedError struct {
	Block  BlockID
	Holder TrainID
	Held   BlockID // the block the holder has, which may be Block's opposite
}

func (e *DeniedError) Error() string {
	if e.Held != e.Block {
		return fmt.Sprintf("traffic: %s denied, %s holds %s", e.Block, e.Holder, e.Held)
	}
	return fmt.Sprintf("traffic: %s denied, held by %s", e.Block, e.Holder)
}

func (e *DeniedError) Unwrap() error {
	return ErrReservationDenied
}

// Controller arbitrates block reservations. It is safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	blocks map[BlockID]Reservation
}

// NewController returns a controller with every block free.
func NewController() *Controller {
	return &Controller{blocks: make(map[BlockID]Reservation)}
}

// Request reserves block for train. It succeeds if the block is free or
// already held by train, and fails with a *DeniedError if the block or its
// opposite direction is held by another train.
func (c *Controller) Request(block BlockID, train TrainID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range []BlockID{block, block.Opposite()} {
		if r, ok := c.blocks[b]; ok && r.Train != train {
			return &DeniedError{Block: block, Holder: r.Train, Held: b}
		}
	}
	if _, ok := c.blocks[block]; !ok {
		c.blocks[block] = Reservation{Block: block, Train: train, State: Reserved}
	}
	return nil
}

// Enter marks a reserved block as occupied.
func (c *Controller) Enter(block BlockID, train TrainID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.blocks[block]
	if !ok || r.Train != train {
		return fmt.Errorf("%w: %s by %s", ErrNotHeld, block, train)
	}
	r.State = Occupied
	c.blocks[block] = r
	return nil
}

// Vacate frees a block the train occupies.
func (c *Controller) Vacate(block BlockID, train TrainID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.blocks[block]
	if !ok || r.Train != train || r.State != Occupied {
		return fmt.Errorf("%w: %s not occupied by %s", ErrNotHeld, block, train)
	}
	delete(c.blocks, block)
	return nil
}

// Cancel drops a reservation that was never entered.
func (c *Controller) Cancel(block BlockID, train TrainID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.blocks[block]
	if !ok || r.Train != train || r.State != Reserved {
		return fmt.Errorf("%w: %s not reserved by %s", ErrNotHeld, block, train)
	}
	delete(c.blocks, block)
	return nil
}

// State returns the state of a block and its holder.
func (c *Controller) State(block BlockID) (State, TrainID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.blocks[block]
	if !ok {
		return Free, ""
	}
	return r.State, r.Train
}

// HeldBy returns the blocks held by a train, sorted.
func (c *Controller) HeldBy(train TrainID) []Reservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Reservation
	for _, r := range c.blocks {
		if r.Train == train {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out
}

// ReleaseTrain frees every block held by a train and returns how many were
// released.
func (c *Controller) ReleaseTrain(train TrainID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for b, r := range c.blocks {
		if r.Train == train {
			delete(c.blocks, b)
			n++
		}
	}
	return n
}

// Prune frees blocks whose segment no longer exists and returns them.
func (c *Controller) Prune(exists func(network.SegmentID) bool) []Reservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Reservation
	for b, r := range c.blocks {
		if !exists(b.Segment) {
			delete(c.blocks, b)
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out
}

// Snapshot returns every held block sorted by segment and direction.
func (c *Controller) Snapshot() []Reservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Reservation, 0, len(c.blocks))
	for _, r := range c.blocks {
		out = append(out, r)
	}
	sortReservations(out)
	return out
}

// Len returns the number of held blocks.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

func sortReservations(rs []Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i].Block, rs[j].Block
		if a.Segment != b.Segment {
			return a.Segment < b.Segment
		}
		return a.Direction < b.Direction
	})
}
