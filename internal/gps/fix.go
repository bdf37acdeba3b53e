package gps

import (
	"fmt"

	"navsense/internal/location"
)

const (
	// uereM converts HDOP to an approximate 1-sigma horizontal error.
	uereM = 5.0

	// defaultHorizAccM is used when the receiver gives neither an error
	// estimate nor HDOP.
	defaultHorizAccM = 50.0
)

// fixReading is a completed fix as reported by the receiver, before
// validation.
type fixReading struct {
	latDeg float64
	lonDeg float64
	hAccM  float64

	trackDeg    *float64
	trackErrDeg *float64
}

func (f fixReading) sample() (location.Sample, error) {
	coords, err := location.NewCoordinates(f.latDeg, f.lonDeg)
	if err != nil {
		return location.Sample{}, err
	}
	course := location.CourseFromOptional(f.trackDeg, f.trackErrDeg)
	sample, err := location.NewSample(coords, f.hAccM, course)
	if err != nil {
		return location.Sample{}, fmt.Errorf("fix %s: %w", coords, err)
	}
	return sample, nil
}

// horizAccuracy picks the best available horizontal error estimate.
func horizAccuracy(ehpM float64, ehpOK bool, hdop float64, hdopOK bool) float64 {
	if ehpOK {
		return ehpM
	}
	if hdopOK && hdop > 0 {
		return hdop * uereM
	}
	return defaultHorizAccM
}
