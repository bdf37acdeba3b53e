package sim

import (
	"math"
	"time"

	"navsense/internal/location"
)

const metersPerDegLat = 111320.0

// Orbit is an endless figure-eight around a center point. It is used when no
// scenario script is configured.
type Orbit struct {
	CenterLatDeg      float64
	CenterLonDeg      float64
	RadiusM           float64
	Period            time.Duration
	AccuracyM         float64
	CourseAccuracyDeg float64
}

// Duration is zero: an orbit never ends.
func (o Orbit) Duration() time.Duration { return 0 }

// StateAt returns a deterministic position for elapsed. Course and heading
// both follow the instantaneous direction of travel.
func (o Orbit) StateAt(elapsed time.Duration) State {
	period := o.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	radiusM := o.RadiusM
	if radiusM <= 0 {
		radiusM = 500
	}
	acc := o.AccuracyM
	if acc < 0 {
		acc = 0
	}

	radiusDeg := radiusM / metersPerDegLat
	if elapsed < 0 {
		elapsed = 0
	}
	phase := float64(elapsed%period) / float64(period)

	// Lissajous figure-eight that stays within the configured radius.
	//	x = cos(2πt)
	//	y = 0.5*sin(4πt)
	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	lat := o.CenterLatDeg + radiusDeg*y
	lon := o.CenterLonDeg + (radiusDeg*x)/math.Cos(o.CenterLatDeg*math.Pi/180.0)

	// Track based on instantaneous velocity (atan2(east, north)).
	vx := -2 * math.Pi * math.Sin(w)
	vy := 2 * math.Pi * math.Cos(2*w)
	trackDeg := math.Mod((math.Atan2(vx, vy)*180/math.Pi)+360, 360)

	out := State{HeadingDeg: trackDeg, HasHeading: true}
	coords, err := location.NewCoordinates(lat, lon)
	if err != nil {
		return out
	}
	cogAcc := o.CourseAccuracyDeg
	course := location.CourseFromOptional(&trackDeg, &cogAcc)
	if sample, err := location.NewSample(coords, acc, course); err == nil {
		out.Sample = sample
		out.HasSample = true
	}
	return out
}
