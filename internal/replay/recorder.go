package replay

import (
	"log"
	"sync"
	"time"

	"navsense/internal/location"
)

// Recorder is a listener that appends every reading it receives to a Writer.
// The first write error is kept and later readings are discarded.
type Recorder struct {
	mu  sync.Mutex
	w   *Writer
	now func() time.Time
	err error
}

var _ location.Listener = (*Recorder)(nil)

func NewRecorder(w *Writer) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

func (r *Recorder) OnLocationUpdated(s location.Sample) {
	r.write(func(now time.Time) error { return r.w.WriteLocation(now, s) })
}

func (r *Recorder) OnHeadingUpdated(headingDeg float64) {
	r.write(func(now time.Time) error { return r.w.WriteHeading(now, headingDeg) })
}

func (r *Recorder) write(fn func(time.Time) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := fn(r.now()); err != nil {
		r.err = err
		log.Printf("replay: recording stopped: %v", err)
	}
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close flushes and closes the underlying writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Close()
}
