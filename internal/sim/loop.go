package sim

import (
	"context"
	"errors"
	"time"
)

// ErrStop may be returned from a tick callback to end Run without error.
var ErrStop = errors.New("sim: stop")

// Loop configures Run.
type Loop struct {
	TickRate int  // ticks per second; also fixes dt
	MaxTicks int  // 0 runs until the context ends
	Realtime bool // pace ticks on the wall clock
}

// Interval returns the wall-clock duration of one tick.
func (l Loop) Interval() time.Duration {
	if l.TickRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(l.TickRate)
}

// Run steps w until MaxTicks is reached, the context ends or onTick returns
// an error. onTick may be nil.
func Run(ctx context.Context, w *World, l Loop, onTick func(tick uint64, events []Event) error) error {
	dt := l.Interval().Seconds()

	var tick <-chan time.Time
	if l.Realtime {
		t := time.NewTicker(l.Interval())
		defer t.Stop()
		tick = t.C
	}

	for n := 0; l.MaxTicks <= 0 || n < l.MaxTicks; n++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		events := w.Step(dt)
		if onTick == nil {
			continue
		}
		if err := onTick(w.Tick(), events); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}
