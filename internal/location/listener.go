package location

import (
	"errors"
	"reflect"
)

var (
	ErrNilListener = errors.New("location: listener is nil")
	ErrNilExecutor = errors.New("location: executor is nil")
)

// Listener receives readings from a Source. Calls arrive on the Executor the
// listener was registered with, never on the producer's goroutine.
type Listener interface {
	OnLocationUpdated(s Sample)
	OnHeadingUpdated(headingDeg float64)
}

// ListenerFuncs adapts plain functions to Listener. Register it by pointer;
// the pointer is the listener identity used by RemoveListener.
type ListenerFuncs struct {
	Location func(Sample)
	Heading  func(float64)
}

func (f *ListenerFuncs) OnLocationUpdated(s Sample) {
	if f != nil && f.Location != nil {
		f.Location(s)
	}
}

func (f *ListenerFuncs) OnHeadingUpdated(headingDeg float64) {
	if f != nil && f.Heading != nil {
		f.Heading(headingDeg)
	}
}

// sameListener compares identities without panicking on non-comparable
// dynamic types (those never match).
func sameListener(a, b Listener) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
