package location

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidCoordinates = errors.New("location: invalid coordinates")
	ErrInvalidCourse      = errors.New("location: invalid course over ground")
	ErrInvalidSample      = errors.New("location: invalid sample")
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	lat float64
	lon float64
}

// NewCoordinates validates lat in [-90, 90] and lon in [-180, 180].
func NewCoordinates(latDeg, lonDeg float64) (Coordinates, error) {
	if !isFinite(latDeg) || latDeg < -90 || latDeg > 90 {
		return Coordinates{}, fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinates, latDeg)
	}
	if !isFinite(lonDeg) || lonDeg < -180 || lonDeg > 180 {
		return Coordinates{}, fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinates, lonDeg)
	}
	return Coordinates{lat: latDeg, lon: lonDeg}, nil
}

func (c Coordinates) Lat() float64 { return c.lat }
func (c Coordinates) Lon() float64 { return c.lon }

func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.lat, c.lon)
}

// CourseOverGround is a bearing together with its accuracy, both in whole
// degrees. It only exists as a complete pair.
type CourseOverGround struct {
	bearing  uint16
	accuracy uint16
}

// NewCourseOverGround requires bearing in [0, 359].
func NewCourseOverGround(bearingDeg, accuracyDeg uint16) (CourseOverGround, error) {
	if bearingDeg > 359 {
		return CourseOverGround{}, fmt.Errorf("%w: bearing %d out of range", ErrInvalidCourse, bearingDeg)
	}
	return CourseOverGround{bearing: bearingDeg, accuracy: accuracyDeg}, nil
}

// CourseFromOptional builds a course only when both bearing and accuracy are
// known. Partial or invalid input yields nil.
func CourseFromOptional(bearingDeg, accuracyDeg *float64) *CourseOverGround {
	if bearingDeg == nil || accuracyDeg == nil {
		return nil
	}
	b, acc := *bearingDeg, *accuracyDeg
	if !isFinite(b) || !isFinite(acc) || acc < 0 || acc > math.MaxUint16 {
		return nil
	}
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	cog, err := NewCourseOverGround(uint16(b)%360, uint16(acc))
	if err != nil {
		return nil
	}
	return &cog
}

func (c CourseOverGround) Bearing() uint16  { return c.bearing }
func (c CourseOverGround) Accuracy() uint16 { return c.accuracy }

// Sample is an immutable location reading.
type Sample struct {
	coords    Coordinates
	hAccM     float64
	course    CourseOverGround
	hasCourse bool
}

// NewSample validates horizontal accuracy (meters, >= 0). A nil course means
// the source had no course over ground.
func NewSample(coords Coordinates, horizontalAccuracyM float64, course *CourseOverGround) (Sample, error) {
	if !isFinite(horizontalAccuracyM) || horizontalAccuracyM < 0 {
		return Sample{}, fmt.Errorf("%w: horizontal accuracy %v", ErrInvalidSample, horizontalAccuracyM)
	}
	s := Sample{coords: coords, hAccM: horizontalAccuracyM}
	if course != nil {
		s.course = *course
		s.hasCourse = true
	}
	return s, nil
}

func (s Sample) Coordinates() Coordinates    { return s.coords }
func (s Sample) HorizontalAccuracy() float64 { return s.hAccM }

// Course reports the course over ground, if the source provided one.
func (s Sample) Course() (CourseOverGround, bool) {
	return s.course, s.hasCourse
}

func (s Sample) Equal(o Sample) bool {
	return s == o
}

func (s Sample) String() string {
	if s.hasCourse {
		return fmt.Sprintf("%s acc=%.1fm cog=%d±%d", s.coords, s.hAccM, s.course.bearing, s.course.accuracy)
	}
	return fmt.Sprintf("%s acc=%.1fm", s.coords, s.hAccM)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
