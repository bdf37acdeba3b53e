package main

import (
	"log"

	"navsense/internal/location"
)

// fixLogger prints every reading. It is always attached so the log shows
// what consumers were sent.
type fixLogger struct {
	l *log.Logger
}

func newFixLogger(l *log.Logger) *fixLogger {
	return &fixLogger{l: l}
}

func (f *fixLogger) OnLocationUpdated(s location.Sample) {
	f.l.Printf("fix %s", s)
}

func (f *fixLogger) OnHeadingUpdated(headingDeg float64) {
	f.l.Printf("heading %.1f", headingDeg)
}
