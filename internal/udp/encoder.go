package udp

import (
	"time"

	"navsense/internal/gdl90"
	"navsense/internal/gps"
	"navsense/internal/location"
)

// Encoder turns a reading into datagrams. A nil result sends nothing.
type Encoder interface {
	Location(s location.Sample, now time.Time) [][]byte
	Heading(headingDeg float64, now time.Time) [][]byte
}

// NMEAEncoder emits $GPRMC for locations and $HEHDT for headings.
type NMEAEncoder struct{}

func (NMEAEncoder) Location(s location.Sample, now time.Time) [][]byte {
	return [][]byte{[]byte(gps.EncodeRMC(s, now) + "\r\n")}
}

func (NMEAEncoder) Heading(headingDeg float64, _ time.Time) [][]byte {
	line := gps.EncodeHDT(headingDeg)
	if line == "" {
		return nil
	}
	return [][]byte{[]byte(line + "\r\n")}
}

// GDL90Encoder emits a heartbeat plus an ownship report per location and an
// AHRS report per heading.
type GDL90Encoder struct {
	ID gdl90.Identity
}

func (e GDL90Encoder) Location(s location.Sample, now time.Time) [][]byte {
	return [][]byte{
		gdl90.HeartbeatFrame(now, true),
		gdl90.OwnshipFrame(e.ID, s),
	}
}

func (GDL90Encoder) Heading(headingDeg float64, _ time.Time) [][]byte {
	frame := gdl90.HeadingFrame(headingDeg)
	if frame == nil {
		return nil
	}
	return [][]byte{frame}
}
