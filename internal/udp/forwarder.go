package udp

import (
	"log"
	"sync"
	"time"

	"navsense/internal/location"
)

// Sender is satisfied by *Broadcaster.
type Sender interface {
	Send(payload []byte) error
}

// Forwarder is a listener that re-emits readings over UDP, one encoded
// message per datagram.
type Forwarder struct {
	out Sender
	enc Encoder
	now func() time.Time

	mu       sync.Mutex
	sent     uint64
	failures uint64
	lastErr  string
}

var _ location.Listener = (*Forwarder)(nil)

// NewForwarder uses NMEA when enc is nil.
func NewForwarder(out Sender, enc Encoder) *Forwarder {
	if enc == nil {
		enc = NMEAEncoder{}
	}
	return &Forwarder{out: out, enc: enc, now: time.Now}
}

func (f *Forwarder) OnLocationUpdated(s location.Sample) {
	f.send(f.enc.Location(s, f.now()))
}

func (f *Forwarder) OnHeadingUpdated(headingDeg float64) {
	f.send(f.enc.Heading(headingDeg, f.now()))
}

func (f *Forwarder) send(msgs [][]byte) {
	for _, m := range msgs {
		err := f.out.Send(m)

		f.mu.Lock()
		if err != nil {
			// Log the first failure of a streak only.
			if f.lastErr == "" {
				log.Printf("udp forward failed: %v", err)
			}
			f.failures++
			f.lastErr = err.Error()
		} else {
			f.sent++
			f.lastErr = ""
		}
		f.mu.Unlock()
	}
}

// ForwarderStats is exposed on the status endpoint.
type ForwarderStats struct {
	Sent      uint64 `json:"sent"`
	Failures  uint64 `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

func (f *Forwarder) Stats() ForwarderStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ForwarderStats{Sent: f.sent, Failures: f.failures, LastError: f.lastErr}
}
