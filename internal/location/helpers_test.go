package location

import (
	"sync/atomic"
	"testing"
	"time"
)

const deliveryTimeout = 2 * time.Second

type recordingListener struct {
	locs     chan Sample
	headings chan float64
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		locs:     make(chan Sample, 1024),
		headings: make(chan float64, 1024),
	}
}

func (r *recordingListener) OnLocationUpdated(s Sample)  { r.locs <- s }
func (r *recordingListener) OnHeadingUpdated(h float64) { r.headings <- h }

func (r *recordingListener) nextLocation(t *testing.T) Sample {
	t.Helper()
	select {
	case s := <-r.locs:
		return s
	case <-time.After(deliveryTimeout):
		t.Fatalf("timed out waiting for location delivery")
		return Sample{}
	}
}

func (r *recordingListener) nextHeading(t *testing.T) float64 {
	t.Helper()
	select {
	case h := <-r.headings:
		return h
	case <-time.After(deliveryTimeout):
		t.Fatalf("timed out waiting for heading delivery")
		return 0
	}
}

func (r *recordingListener) expectNoLocation(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case s := <-r.locs:
		t.Fatalf("unexpected location delivery: %v", s)
	case <-time.After(wait):
	}
}

func (r *recordingListener) expectNoHeading(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case h := <-r.headings:
		t.Fatalf("unexpected heading delivery: %v", h)
	case <-time.After(wait):
	}
}

// countingExecutor records how many tasks were handed to it before passing
// them to a serial worker.
type countingExecutor struct {
	n     atomic.Int64
	inner *SerialExecutor
}

func newCountingExecutor(t *testing.T, name string) *countingExecutor {
	t.Helper()
	e := &countingExecutor{inner: NewSerialExecutor(name)}
	t.Cleanup(e.inner.Close)
	return e
}

func (c *countingExecutor) Execute(task func()) {
	c.n.Add(1)
	c.inner.Execute(task)
}

func newSerial(t *testing.T, name string) *SerialExecutor {
	t.Helper()
	e := NewSerialExecutor(name)
	t.Cleanup(e.Close)
	return e
}

func mustSample(t *testing.T, lat, lon, acc float64, course *CourseOverGround) Sample {
	t.Helper()
	c, err := NewCoordinates(lat, lon)
	if err != nil {
		t.Fatalf("NewCoordinates(%v, %v): %v", lat, lon, err)
	}
	s, err := NewSample(c, acc, course)
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	return s
}
