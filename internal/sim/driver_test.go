package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"navsense/internal/location"
)

type collector struct {
	mu       sync.Mutex
	samples  []location.Sample
	headings []float64
}

func (c *collector) OnLocationUpdated(s location.Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

func (c *collector) OnHeadingUpdated(h float64) {
	c.mu.Lock()
	c.headings = append(c.headings, h)
	c.mu.Unlock()
}

func inline(task func()) { task() }

func TestDriver_BoundedPathEndsOnFinalState(t *testing.T) {
	h0, h1 := 10.0, 20.0
	scn, err := NewScenario(ScenarioScript{
		Keyframes: []Keyframe{
			{T: 0, LatDeg: 1, LonDeg: 1, AccuracyM: 3, HeadingDeg: &h0},
			{T: 30 * time.Millisecond, LatDeg: 2, LonDeg: 2, AccuracyM: 3, HeadingDeg: &h1},
		},
	})
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}

	src := location.NewSimulatedSource()
	c := &collector{}
	if err := src.AddListener(c, location.ExecutorFunc(inline)); err != nil {
		t.Fatalf("AddListener: %v", err)
	}

	d := &Driver{Source: src, Path: scn, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) < 2 {
		t.Fatalf("samples=%d want >=2", len(c.samples))
	}
	last := c.samples[len(c.samples)-1]
	if got := last.Coordinates(); got.Lat() != 2 || got.Lon() != 2 {
		t.Fatalf("final sample=%v want 2,2", got)
	}
	if len(c.headings) != len(c.samples) || c.headings[len(c.headings)-1] != 20 {
		t.Fatalf("headings=%v", c.headings)
	}
}

func TestDriver_StopsOnContext(t *testing.T) {
	src := location.NewSimulatedSource()
	d := &Driver{Source: src, Path: Orbit{CenterLatDeg: 1, CenterLonDeg: 1}, Interval: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("err=%v want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("driver did not stop")
	}
	if _, ok := src.LastLocation(); !ok {
		t.Fatalf("expected a published location")
	}
}

func TestDriver_RequiresSourceAndPath(t *testing.T) {
	if err := (&Driver{}).Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
