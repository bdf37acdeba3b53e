package gps

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"navsense/internal/location"
)

type captured struct {
	locs     chan location.Sample
	headings chan float64
}

func newCaptured(t *testing.T, src location.Source) *captured {
	t.Helper()
	c := &captured{locs: make(chan location.Sample, 16), headings: make(chan float64, 16)}
	exec := location.NewSerialExecutor("test")
	t.Cleanup(exec.Close)
	l := &location.ListenerFuncs{
		Location: func(s location.Sample) { c.locs <- s },
		Heading:  func(h float64) { c.headings <- h },
	}
	if err := src.AddListener(l, exec); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	return c
}

func (c *captured) location(t *testing.T) location.Sample {
	t.Helper()
	select {
	case s := <-c.locs:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for location")
		return location.Sample{}
	}
}

func (c *captured) heading(t *testing.T) float64 {
	t.Helper()
	select {
	case h := <-c.headings:
		return h
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for heading")
		return 0
	}
}

func TestService_ReadNMEADispatches(t *testing.T) {
	svc := New(Config{Enable: true})
	got := newCaptured(t, svc)

	input := strings.Join([]string{
		"garbage before the first sentence",
		nmeaLine("GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"),
		nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"),
		nmeaLine("HEHDT,12.5,T"),
		"$GPRMC,bad*00",
	}, "\n")

	err := svc.readNMEA(context.Background(), strings.NewReader(input), &nmeaState{device: "test"})
	if err == nil {
		t.Fatalf("expected EOF error")
	}

	s := got.location(t)
	if math.Abs(s.Coordinates().Lon()-11.516666) > 1e-4 {
		t.Fatalf("lon=%v", s.Coordinates().Lon())
	}
	if h := got.heading(t); h != 12.5 {
		t.Fatalf("heading=%v", h)
	}

	last, ok := svc.LastLocation()
	if !ok || !last.Equal(s) {
		t.Fatalf("last=%v ok=%v", last, ok)
	}
	snap := svc.Snapshot()
	if snap.FixesPublished != 1 {
		t.Fatalf("fixes_published=%d", snap.FixesPublished)
	}
	if snap.LastError == "" {
		t.Fatalf("expected checksum error recorded")
	}
}

func TestService_InvalidFixIsDropped(t *testing.T) {
	svc := New(Config{Enable: true, Source: "gpsd"})
	got := newCaptured(t, svc)

	input := `{"class":"TPV","mode":3,"lat":95.0,"lon":2.0,"eph":3.0}
{"class":"TPV","mode":3,"lat":45.0,"lon":2.0,"eph":-1.0}
{"class":"TPV","mode":3,"lat":45.0,"lon":2.0,"eph":3.0}
`
	_ = svc.readGPSD(context.Background(), strings.NewReader(input), newGPSDState(""))

	s := got.location(t)
	if s.Coordinates().Lat() != 45.0 || s.HorizontalAccuracy() != 3.0 {
		t.Fatalf("sample=%v", s)
	}
	select {
	case extra := <-got.locs:
		t.Fatalf("unexpected extra sample %v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	snap := svc.Snapshot()
	if snap.FixesDropped != 2 || snap.FixesPublished != 1 {
		t.Fatalf("dropped=%d published=%d", snap.FixesDropped, snap.FixesPublished)
	}
}

func TestService_GoodFixClearsDroppedFixError(t *testing.T) {
	svc := New(Config{Enable: true, Source: "gpsd"})
	st := newGPSDState("")

	_ = svc.readGPSD(context.Background(), strings.NewReader(`{"class":"TPV","mode":3,"lat":95.0,"lon":2.0,"eph":3.0}`+"\n"), st)
	if e := svc.Snapshot().LastError; !strings.Contains(e, "dropped fix") {
		t.Fatalf("last_error=%q want dropped fix", e)
	}

	_ = svc.readGPSD(context.Background(), strings.NewReader(`{"class":"TPV","mode":3,"lat":45.0,"lon":2.0,"eph":3.0}`+"\n"), st)
	snap := svc.Snapshot()
	if snap.LastError != "" {
		t.Fatalf("last_error=%q want empty after a good fix", snap.LastError)
	}
	if snap.FixesPublished != 1 || snap.FixesDropped != 1 {
		t.Fatalf("published=%d dropped=%d", snap.FixesPublished, snap.FixesDropped)
	}
}

func TestService_ReadStopsOnContext(t *testing.T) {
	svc := New(Config{Enable: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.readNMEA(ctx, strings.NewReader(nmeaLine("HEHDT,1,T")), &nmeaState{})
	if err != context.Canceled {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if _, ok := svc.LastHeading(); ok {
		t.Fatalf("no heading expected after cancel")
	}
}

func TestService_DisabledStartIsNoop(t *testing.T) {
	svc := New(Config{})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Close()
	if svc.Snapshot().Enabled {
		t.Fatalf("expected disabled snapshot")
	}
}

func TestService_UnknownSource(t *testing.T) {
	svc := New(Config{Enable: true, Source: "carrier-pigeon"})
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
