package indicator

import (
	"log"
	"sync"
	"time"

	"navsense/internal/location"
)

// lineDriver is a single digital output. Close should leave the line low.
type lineDriver interface {
	Set(on bool) error
	Close() error
}

type Config struct {
	Pin          int
	MaxAccuracyM float64
	StaleAfter   time.Duration
}

// FixLED is a location listener. Headings are ignored.
type FixLED struct {
	cfg Config
	drv lineDriver

	mu     sync.Mutex
	lit    bool
	gen    uint64
	timer  *time.Timer
	closed bool
}

var _ location.Listener = (*FixLED)(nil)

// Open claims the configured GPIO pin.
func Open(cfg Config) (*FixLED, error) {
	drv, err := openLineFn(cfg.Pin)
	if err != nil {
		return nil, err
	}
	return newFixLED(cfg, drv), nil
}

func newFixLED(cfg Config, drv lineDriver) *FixLED {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Second
	}
	return &FixLED{cfg: cfg, drv: drv}
}

func (f *FixLED) OnLocationUpdated(s location.Sample) {
	good := f.cfg.MaxAccuracyM <= 0 || s.HorizontalAccuracy() <= f.cfg.MaxAccuracyM

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.setLocked(good)
	if good {
		gen := f.gen
		f.timer = time.AfterFunc(f.cfg.StaleAfter, func() { f.expire(gen) })
	}
}

func (f *FixLED) OnHeadingUpdated(float64) {}

func (f *FixLED) expire(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || gen != f.gen {
		return
	}
	f.setLocked(false)
}

func (f *FixLED) setLocked(on bool) {
	if f.lit == on {
		return
	}
	if err := f.drv.Set(on); err != nil {
		log.Printf("indicator: set gpio%d=%t failed: %v", f.cfg.Pin, on, err)
		return
	}
	f.lit = on
}

// Lit reports the last state written to the line.
func (f *FixLED) Lit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lit
}

func (f *FixLED) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
	}
	f.lit = false
	return f.drv.Close()
}
