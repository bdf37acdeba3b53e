package sim

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"navsense/internal/location"
)

// State is one simulated reading. Either part may be absent.
type State struct {
	Sample    location.Sample
	HasSample bool

	HeadingDeg float64
	HasHeading bool
}

// Path yields a state for any elapsed time. Duration 0 means unbounded.
type Path interface {
	StateAt(elapsed time.Duration) State
	Duration() time.Duration
}

var (
	_ Path = (*Scenario)(nil)
	_ Path = Orbit{}
)

// Driver pushes a Path into a simulated source on a fixed tick.
type Driver struct {
	Source   *location.SimulatedSource
	Path     Path
	Interval time.Duration
	// Loop restarts a bounded path; otherwise Run returns after publishing
	// the final state.
	Loop bool
}

// Run drives the source until ctx is done or a bounded, non-looping path
// ends.
func (d *Driver) Run(ctx context.Context) error {
	if d == nil || d.Source == nil || d.Path == nil {
		return fmt.Errorf("sim: driver needs a source and a path")
	}
	interval := d.Interval
	if interval <= 0 {
		interval = time.Second
	}
	runID := uuid.NewString()
	dur := d.Path.Duration()
	log.Printf("sim driver started run=%s interval=%s duration=%s loop=%t", runID, interval, dur, d.Loop)
	defer log.Printf("sim driver stopped run=%s", runID)

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		elapsed := time.Since(start)
		finished := false
		if dur > 0 {
			if d.Loop {
				elapsed %= dur
			} else if elapsed >= dur {
				elapsed = dur
				finished = true
			}
		}

		d.push(d.Path.StateAt(elapsed))
		if finished {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Driver) push(st State) {
	if st.HasSample {
		d.Source.SetLocation(st.Sample)
	}
	if st.HasHeading {
		d.Source.SetHeading(st.HeadingDeg)
	}
}
