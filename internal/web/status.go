package web

import (
	"sync"
	"sync/atomic"
	"time"

	"navsense/internal/location"
)

// Source is a location source that also reports dispatch counters.
type Source interface {
	location.Source
	Stats() location.Stats
}

type Status struct {
	startUnixNano int64
	mode          atomic.Value // string

	mu     sync.Mutex
	extras map[string]func() any
}

func NewStatus() *Status {
	s := &Status{extras: map[string]func() any{}}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.mode.Store("")
	return s
}

func (s *Status) SetMode(mode string) {
	s.mode.Store(mode)
}

// SetExtra publishes fn's result under name in every snapshot. Consumers use
// it to expose their own diagnostics (receiver state, forwarder counters).
func (s *Status) SetExtra(name string, fn func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.extras, name)
		return
	}
	s.extras[name] = fn
}

type StatusSnapshot struct {
	Service   string         `json:"service"`
	NowUTC    string         `json:"now_utc"`
	UptimeSec int64          `json:"uptime_sec"`
	Mode      string         `json:"mode"`
	Dispatch  location.Stats `json:"dispatch"`
	Streams   int64          `json:"streams"`
	Extras    map[string]any `json:"extras,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time, src Source, streams int64) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "navsense",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Mode:      s.mode.Load().(string),
		Streams:   streams,
	}
	if src != nil {
		snap.Dispatch = src.Stats()
	}

	s.mu.Lock()
	fns := make(map[string]func() any, len(s.extras))
	for k, fn := range s.extras {
		fns[k] = fn
	}
	s.mu.Unlock()
	if len(fns) > 0 {
		snap.Extras = make(map[string]any, len(fns))
		for k, fn := range fns {
			snap.Extras[k] = fn()
		}
	}
	return snap
}
