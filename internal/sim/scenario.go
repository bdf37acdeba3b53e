package sim

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"navsense/internal/location"
)

// ScenarioScript is a deterministic, script-driven route description.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 30s
//	keyframes:
//	  - t: 0s
//	    lat_deg: 47.6062
//	    lon_deg: -122.3321
//	    accuracy_m: 5
//	    course_deg: 90           # optional, needs course_accuracy_deg
//	    course_accuracy_deg: 3   # optional, needs course_deg
//	    heading_deg: 92          # optional
//
// Keyframes must use non-decreasing t values.
//
// Keep this struct stable: scripts are test fixtures.
type ScenarioScript struct {
	Version   int           `yaml:"version"`
	Duration  time.Duration `yaml:"duration"`
	Keyframes []Keyframe    `yaml:"keyframes"`
}

// Keyframe is a time-stamped reading.
type Keyframe struct {
	T                 time.Duration `yaml:"t"`
	LatDeg            float64       `yaml:"lat_deg"`
	LonDeg            float64       `yaml:"lon_deg"`
	AccuracyM         float64       `yaml:"accuracy_m"`
	CourseDeg         *float64      `yaml:"course_deg"`
	CourseAccuracyDeg *float64      `yaml:"course_accuracy_deg"`
	HeadingDeg        *float64      `yaml:"heading_deg"`
}

func (k Keyframe) hasCourse() bool {
	return k.CourseDeg != nil && k.CourseAccuracyDeg != nil
}

// Scenario is the validated, runtime representation.
type Scenario struct {
	script   ScenarioScript
	duration time.Duration
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

// ParseScenarioScriptYAML parses a YAML scenario script.
func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	if err := validateKeyframes(script.Keyframes); err != nil {
		return nil, err
	}

	dur := script.Duration
	if dur <= 0 {
		dur = script.Keyframes[len(script.Keyframes)-1].T
	}
	if dur <= 0 && len(script.Keyframes) > 1 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}

	return &Scenario{script: script, duration: dur}, nil
}

// Duration returns the effective scenario duration.
func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// StateAt computes the reading at elapsed, clamped to [0, Duration()].
func (s *Scenario) StateAt(elapsed time.Duration) State {
	if s == nil {
		return State{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.duration {
		elapsed = s.duration
	}

	kf0, kf1, alpha := selectSegment(s.script.Keyframes, elapsed)

	lat := lerp(kf0.LatDeg, kf1.LatDeg, alpha)
	lon := lerpLonDeg(kf0.LonDeg, kf1.LonDeg, alpha)
	acc := lerp(kf0.AccuracyM, kf1.AccuracyM, alpha)

	var course *location.CourseOverGround
	if kf0.hasCourse() && kf1.hasCourse() {
		b := lerpAngleDeg(*kf0.CourseDeg, *kf1.CourseDeg, alpha)
		ba := lerp(*kf0.CourseAccuracyDeg, *kf1.CourseAccuracyDeg, alpha)
		course = location.CourseFromOptional(&b, &ba)
	}

	out := State{}
	coords, err := location.NewCoordinates(lat, lon)
	if err == nil {
		if sample, err := location.NewSample(coords, acc, course); err == nil {
			out.Sample = sample
			out.HasSample = true
		}
	}
	if kf0.HeadingDeg != nil && kf1.HeadingDeg != nil {
		out.HeadingDeg = lerpAngleDeg(*kf0.HeadingDeg, *kf1.HeadingDeg, alpha)
		out.HasHeading = true
	}
	return out
}

func validateKeyframes(kfs []Keyframe) error {
	for i, kf := range kfs {
		if kf.T < 0 {
			return fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < kfs[i-1].T {
			return fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		if _, err := location.NewCoordinates(kf.LatDeg, kf.LonDeg); err != nil {
			return fmt.Errorf("keyframes[%d]: %w", i, err)
		}
		if kf.AccuracyM < 0 || !finite(kf.AccuracyM) {
			return fmt.Errorf("keyframes[%d].accuracy_m must be a finite value >= 0", i)
		}
		if (kf.CourseDeg == nil) != (kf.CourseAccuracyDeg == nil) {
			return fmt.Errorf("keyframes[%d]: course_deg and course_accuracy_deg must be set together", i)
		}
		if kf.CourseDeg != nil && !finite(*kf.CourseDeg) {
			return fmt.Errorf("keyframes[%d].course_deg must be finite", i)
		}
		if kf.CourseAccuracyDeg != nil && (*kf.CourseAccuracyDeg < 0 || !finite(*kf.CourseAccuracyDeg)) {
			return fmt.Errorf("keyframes[%d].course_accuracy_deg must be a finite value >= 0", i)
		}
		if kf.HeadingDeg != nil && !finite(*kf.HeadingDeg) {
			return fmt.Errorf("keyframes[%d].heading_deg must be finite", i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func selectSegment(kfs []Keyframe, t time.Duration) (Keyframe, Keyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpLonDeg interpolates across the antimeridian the short way and returns
// a value in [-180, 180].
func lerpLonDeg(a, b, t float64) float64 {
	delta := b - a
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	v := a + delta*t
	if v > 180 {
		v -= 360
	} else if v < -180 {
		v += 360
	}
	return v
}

func lerpAngleDeg(a0, a1, t float64) float64 {
	// Shortest-path interpolation across wraparound.
	// Normalize to [0, 360).
	norm := func(x float64) float64 {
		x = math.Mod(x, 360)
		if x < 0 {
			x += 360
		}
		// -1e-20 + 360 rounds to 360.
		if x >= 360 {
			x = 0
		}
		return x
	}
	a0 = norm(a0)
	a1 = norm(a1)
	delta := a1 - a0
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return norm(a0 + delta*t)
}
