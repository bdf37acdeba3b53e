package location

import (
	"sync"
	"testing"
	"time"
)

func TestSimulatedSource_NoReadingYet(t *testing.T) {
	src := NewSimulatedSource()
	if _, ok := src.LastLocation(); ok {
		t.Fatalf("expected no last location")
	}
	if _, ok := src.LastHeading(); ok {
		t.Fatalf("expected no last heading")
	}
}

func TestSimulatedSource_DeliverThenRemove(t *testing.T) {
	src := NewSimulatedSource()
	l1 := newRecordingListener()
	c1 := newCountingExecutor(t, "c1")
	if err := src.AddListener(l1, c1); err != nil {
		t.Fatalf("AddListener: %v", err)
	}

	want := mustSample(t, 47.6062, -122.3321, 5.0, nil)
	src.SetLocation(want)

	got := l1.nextLocation(t)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if got.Coordinates().Lat() != 47.6062 || got.Coordinates().Lon() != -122.3321 || got.HorizontalAccuracy() != 5.0 {
		t.Fatalf("fields mismatch: %v", got)
	}
	if _, ok := got.Course(); ok {
		t.Fatalf("expected no course")
	}
	l1.expectNoLocation(t, 50*time.Millisecond)
	if n := c1.n.Load(); n != 1 {
		t.Fatalf("executor tasks=%d want 1", n)
	}

	src.RemoveListener(l1)
	src.SetLocation(mustSample(t, 40.7128, -74.0060, 3.0, nil))
	l1.expectNoLocation(t, 100*time.Millisecond)
	if n := c1.n.Load(); n != 1 {
		t.Fatalf("executor tasks=%d want 1 after removal", n)
	}

	last, ok := src.LastLocation()
	if !ok || last.Coordinates().Lat() != 40.7128 {
		t.Fatalf("last=%v ok=%v", last, ok)
	}
}

func TestSimulatedSource_EachListenerOnItsOwnExecutor(t *testing.T) {
	src := NewSimulatedSource()
	const n = 5
	listeners := make([]*recordingListener, n)
	execs := make([]*countingExecutor, n)
	for i := range listeners {
		listeners[i] = newRecordingListener()
		execs[i] = newCountingExecutor(t, "exec")
		if err := src.AddListener(listeners[i], execs[i]); err != nil {
			t.Fatalf("AddListener: %v", err)
		}
	}

	s := mustSample(t, 10, 20, 1, nil)
	src.SetLocation(s)
	for i, l := range listeners {
		if got := l.nextLocation(t); !got.Equal(s) {
			t.Fatalf("listener %d got %v", i, got)
		}
		l.expectNoLocation(t, 10*time.Millisecond)
		if c := execs[i].n.Load(); c != 1 {
			t.Fatalf("executor %d tasks=%d want 1", i, c)
		}
	}
}

func TestSimulatedSource_SlowListenerDoesNotBlockOthers(t *testing.T) {
	src := NewSimulatedSource()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	slow := &ListenerFuncs{Location: func(Sample) {
		entered <- struct{}{}
		<-release
	}}
	fast := newRecordingListener()

	if err := src.AddListener(slow, newSerial(t, "slow")); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	if err := src.AddListener(fast, newSerial(t, "fast")); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	defer close(release)

	s1 := mustSample(t, 1, 1, 1, nil)
	s2 := mustSample(t, 2, 2, 2, nil)

	done := make(chan struct{})
	go func() {
		src.SetLocation(s1)
		src.SetLocation(s2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deliveryTimeout):
		t.Fatalf("producer blocked by slow listener")
	}
	select {
	case <-entered:
	case <-time.After(deliveryTimeout):
		t.Fatalf("slow listener never ran")
	}
	if got := fast.nextLocation(t); !got.Equal(s1) {
		t.Fatalf("fast got %v want %v", got, s1)
	}
	if got := fast.nextLocation(t); !got.Equal(s2) {
		t.Fatalf("fast got %v want %v", got, s2)
	}
}

func TestSimulatedSource_ChannelsAreIndependent(t *testing.T) {
	src := NewSimulatedSource()
	l := newRecordingListener()
	if err := src.AddListener(l, newSerial(t, "l")); err != nil {
		t.Fatalf("AddListener: %v", err)
	}

	s := mustSample(t, 5, 6, 7, nil)
	src.SetLocation(s)
	_ = l.nextLocation(t)

	src.SetHeading(123.5)
	if h := l.nextHeading(t); h != 123.5 {
		t.Fatalf("heading=%v want 123.5", h)
	}
	l.expectNoLocation(t, 50*time.Millisecond)

	last, ok := src.LastLocation()
	if !ok || !last.Equal(s) {
		t.Fatalf("heading update changed last location: %v", last)
	}

	src.SetLocation(mustSample(t, 8, 9, 1, nil))
	_ = l.nextLocation(t)
	l.expectNoHeading(t, 50*time.Millisecond)
	if h, ok := src.LastHeading(); !ok || h != 123.5 {
		t.Fatalf("location update changed last heading: %v %v", h, ok)
	}
}

func TestSimulatedSource_NoDeduplication(t *testing.T) {
	src := NewSimulatedSource()
	l := newRecordingListener()
	if err := src.AddListener(l, newSerial(t, "l")); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	s := mustSample(t, 1, 2, 3, nil)
	src.SetLocation(s)
	src.SetLocation(s)
	src.SetHeading(90)
	src.SetHeading(90)

	for i := 0; i < 2; i++ {
		if got := l.nextLocation(t); !got.Equal(s) {
			t.Fatalf("delivery %d got %v", i, got)
		}
		if h := l.nextHeading(t); h != 90 {
			t.Fatalf("heading delivery %d got %v", i, h)
		}
	}
}

func TestSimulatedSource_DuplicateRegistrationDeliversTwice(t *testing.T) {
	src := NewSimulatedSource()
	l := newRecordingListener()
	e1, e2 := newCountingExecutor(t, "e1"), newCountingExecutor(t, "e2")
	_ = src.AddListener(l, e1)
	_ = src.AddListener(l, e2)

	src.SetLocation(mustSample(t, 1, 1, 1, nil))
	_ = l.nextLocation(t)
	_ = l.nextLocation(t)
	l.expectNoLocation(t, 50*time.Millisecond)
	if e1.n.Load() != 1 || e2.n.Load() != 1 {
		t.Fatalf("executor counts=%d,%d want 1,1", e1.n.Load(), e2.n.Load())
	}

	src.RemoveListener(l)
	src.SetLocation(mustSample(t, 2, 2, 2, nil))
	l.expectNoLocation(t, 50*time.Millisecond)
}

func TestSimulatedSource_NoReplayOnSubscribe(t *testing.T) {
	src := NewSimulatedSource()
	src.SetLocation(mustSample(t, 1, 1, 1, nil))
	src.SetHeading(45)

	l := newRecordingListener()
	if err := src.AddListener(l, newSerial(t, "late")); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	l.expectNoLocation(t, 50*time.Millisecond)
	l.expectNoHeading(t, 10*time.Millisecond)
}

func TestSimulatedSource_PreservesOrderPerListener(t *testing.T) {
	src := NewSimulatedSource()
	l := newRecordingListener()
	if err := src.AddListener(l, newSerial(t, "ordered")); err != nil {
		t.Fatalf("AddListener: %v", err)
	}

	const n = 500
	for i := 0; i < n; i++ {
		src.SetHeading(float64(i))
	}
	for i := 0; i < n; i++ {
		if h := l.nextHeading(t); h != float64(i) {
			t.Fatalf("delivery %d heading=%v", i, h)
		}
	}
}

func TestSimulatedSource_ListenerPanicIsIsolated(t *testing.T) {
	src := NewSimulatedSource()
	bad := &ListenerFuncs{Location: func(Sample) { panic("boom") }}
	good := newRecordingListener()
	shared := newSerial(t, "shared")

	_ = src.AddListener(bad, shared)
	_ = src.AddListener(good, shared)

	s1 := mustSample(t, 1, 1, 1, nil)
	s2 := mustSample(t, 2, 2, 2, nil)
	src.SetLocation(s1)
	src.SetLocation(s2)

	if got := good.nextLocation(t); !got.Equal(s1) {
		t.Fatalf("got %v want %v", got, s1)
	}
	if got := good.nextLocation(t); !got.Equal(s2) {
		t.Fatalf("got %v want %v", got, s2)
	}

	deadline := time.Now().Add(deliveryTimeout)
	for src.Stats().ListenerPanics < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("panics=%d want 2", src.Stats().ListenerPanics)
		}
		time.Sleep(5 * time.Millisecond)
	}

	src.RemoveListener(bad)
	if st := src.Stats(); st.Listeners != 1 {
		t.Fatalf("listeners=%d want 1", st.Listeners)
	}
}

func TestSimulatedSource_PanickingExecutorIsIsolated(t *testing.T) {
	src := NewSimulatedSource()
	broken := ExecutorFunc(func(func()) { panic("queue full") })
	good := newRecordingListener()

	_ = src.AddListener(newRecordingListener(), broken)
	_ = src.AddListener(good, newSerial(t, "good"))

	s := mustSample(t, 3, 3, 3, nil)
	src.SetLocation(s)
	if got := good.nextLocation(t); !got.Equal(s) {
		t.Fatalf("got %v want %v", got, s)
	}
	if st := src.Stats(); st.DeliveriesQueued != 1 {
		t.Fatalf("deliveries=%d want 1", st.DeliveriesQueued)
	}
}

func TestSimulatedSource_ConcurrentMutationAndDispatch(t *testing.T) {
	src := NewSimulatedSource()
	exec := newSerial(t, "shared")
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				l := &ListenerFuncs{}
				_ = src.AddListener(l, exec)
				src.RemoveListener(l)
			}
		}()
	}

	stable := newRecordingListener()
	_ = src.AddListener(stable, newSerial(t, "stable"))

	const n = 200
	for i := 0; i < n; i++ {
		src.SetLocation(mustSample(t, float64(i%90), 0, 1, nil))
		src.SetHeading(float64(i))
	}
	close(stop)
	wg.Wait()

	for i := 0; i < n; i++ {
		if got := stable.nextLocation(t); got.Coordinates().Lat() != float64(i%90) {
			t.Fatalf("delivery %d lat=%v", i, got.Coordinates().Lat())
		}
		if h := stable.nextHeading(t); h != float64(i) {
			t.Fatalf("delivery %d heading=%v", i, h)
		}
	}
	if st := src.Stats(); st.LocationsPublished != n || st.HeadingsPublished != n {
		t.Fatalf("stats=%+v", st)
	}
}

func TestDispatcher_ConcurrentProducersKeepPerListenerOrder(t *testing.T) {
	d := NewDispatcher()
	a, b := newRecordingListener(), newRecordingListener()
	_ = d.AddListener(a, newSerial(t, "a"))
	_ = d.AddListener(b, newSerial(t, "b"))

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.PublishHeading(float64(p*1000 + i))
			}
		}(p)
	}
	wg.Wait()

	for i := 0; i < 200; i++ {
		ha, hb := a.nextHeading(t), b.nextHeading(t)
		if ha != hb {
			t.Fatalf("delivery %d: listeners disagree on order: %v vs %v", i, ha, hb)
		}
	}
}

func TestSimulatedSource_ListenerMayPublishFromCallback(t *testing.T) {
	src := NewSimulatedSource()
	echoed := mustSample(t, 1, 2, 3, nil)

	// Turns every heading into a location update on the same source.
	echo := &ListenerFuncs{
		Heading: func(float64) { src.SetLocation(echoed) },
	}
	if err := src.AddListener(echo, newSerial(t, "echo")); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	rec := newRecordingListener()
	if err := src.AddListener(rec, newSerial(t, "rec")); err != nil {
		t.Fatalf("AddListener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		src.SetHeading(90)
	}()
	select {
	case <-done:
	case <-time.After(deliveryTimeout):
		t.Fatalf("SetHeading did not return")
	}

	if h := rec.nextHeading(t); h != 90 {
		t.Fatalf("heading=%v", h)
	}
	if got := rec.nextLocation(t); !got.Equal(echoed) {
		t.Fatalf("location=%v want %v", got, echoed)
	}
}
