// Package location is the position/heading abstraction shared by the
// navigation engine and the UI. Producers push readings into a Source; the
// Source fans them out to listeners, each on the Executor it registered with.
package location

// Source is a provider of location and heading readings.
//
// LastLocation and LastHeading report ok=false until the first reading.
// AddListener is additive: registering the same listener twice yields two
// deliveries per update. RemoveListener removes all registrations of the
// listener and is a no-op for unknown listeners. A delivery already handed
// to an executor may still arrive after RemoveListener returns.
type Source interface {
	LastLocation() (Sample, bool)
	LastHeading() (float64, bool)
	AddListener(l Listener, e Executor) error
	RemoveListener(l Listener)
}

var (
	_ Source = (*Dispatcher)(nil)
	_ Source = (*SimulatedSource)(nil)
)

// SimulatedSource is a Source whose readings are set directly by a driver
// (tests, scripted scenarios, log replay). Every Set call dispatches, even
// when the value is unchanged.
type SimulatedSource struct {
	d *Dispatcher
}

func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{d: NewDispatcher()}
}

func (s *SimulatedSource) SetLocation(sample Sample) { s.d.PublishLocation(sample) }
func (s *SimulatedSource) SetHeading(headingDeg float64) {
	s.d.PublishHeading(headingDeg)
}

func (s *SimulatedSource) LastLocation() (Sample, bool) { return s.d.LastLocation() }
func (s *SimulatedSource) LastHeading() (float64, bool) { return s.d.LastHeading() }

func (s *SimulatedSource) AddListener(l Listener, e Executor) error {
	return s.d.AddListener(l, e)
}

func (s *SimulatedSource) RemoveListener(l Listener) { s.d.RemoveListener(l) }

func (s *SimulatedSource) Stats() Stats { return s.d.Stats() }
