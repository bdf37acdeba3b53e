package location

import (
	"log"
	"sync"
	"sync/atomic"
)

// Stats are cumulative dispatch counters.
type Stats struct {
	Listeners          int    `json:"listeners"`
	LocationsPublished uint64 `json:"locations_published"`
	HeadingsPublished  uint64 `json:"headings_published"`
	DeliveriesQueued   uint64 `json:"deliveries_queued"`
	ListenerPanics     uint64 `json:"listener_panics"`
}

// Dispatcher holds the last-known readings and fans new ones out to every
// registered listener. It is the shared engine behind every Source.
//
// New subscribers are not sent the last-known values; they see the next
// update. Callers wanting an initial value can read LastLocation/LastHeading
// after AddListener.
type Dispatcher struct {
	reg Registry

	// pubMu orders store+submit across concurrent producers so that every
	// executor receives updates in the order they were stored. It is held
	// across Execute, which is why executors must not run tasks inline.
	pubMu sync.Mutex

	lastLoc     atomic.Pointer[Sample]
	lastHeading atomic.Pointer[float64]

	locations  atomic.Uint64
	headings   atomic.Uint64
	deliveries atomic.Uint64
	panics     atomic.Uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) LastLocation() (Sample, bool) {
	p := d.lastLoc.Load()
	if p == nil {
		return Sample{}, false
	}
	return *p, true
}

func (d *Dispatcher) LastHeading() (float64, bool) {
	p := d.lastHeading.Load()
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (d *Dispatcher) AddListener(l Listener, e Executor) error {
	return d.reg.Add(l, e)
}

func (d *Dispatcher) RemoveListener(l Listener) {
	d.reg.Remove(l)
}

// PublishLocation records s as the last location and queues one delivery
// per registration. It does not wait for any listener.
func (d *Dispatcher) PublishLocation(s Sample) {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()
	v := s
	d.lastLoc.Store(&v)
	d.locations.Add(1)
	for _, reg := range d.reg.Snapshot() {
		l := reg.Listener
		d.submit(reg.Executor, func() { l.OnLocationUpdated(v) })
	}
}

// PublishHeading is the heading counterpart of PublishLocation.
func (d *Dispatcher) PublishHeading(headingDeg float64) {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()
	v := headingDeg
	d.lastHeading.Store(&v)
	d.headings.Add(1)
	for _, reg := range d.reg.Snapshot() {
		l := reg.Listener
		d.submit(reg.Executor, func() { l.OnHeadingUpdated(v) })
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Listeners:          d.reg.Len(),
		LocationsPublished: d.locations.Load(),
		HeadingsPublished:  d.headings.Load(),
		DeliveriesQueued:   d.deliveries.Load(),
		ListenerPanics:     d.panics.Load(),
	}
}

func (d *Dispatcher) submit(e Executor, deliver func()) {
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				d.panics.Add(1)
				log.Printf("location: listener panicked: %v", r)
			}
		}()
		deliver()
	}
	// A panicking Execute skips this registration only.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("location: executor rejected delivery: %v", r)
		}
	}()
	e.Execute(task)
	d.deliveries.Add(1)
}
