package replay

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"navsense/internal/location"
)

func mustSample(t *testing.T, lat, lon, acc float64, course *location.CourseOverGround) location.Sample {
	t.Helper()
	c, err := location.NewCoordinates(lat, lon)
	if err != nil {
		t.Fatalf("NewCoordinates: %v", err)
	}
	s, err := location.NewSample(c, acc, course)
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	return s
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0, L, 47.5, -122.25, 4
10,L,47.6,-122.3,5,270,3
25,H,181.5
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("expected 4 records, got %d", len(recs))
	}
	if recs[0].Kind != KindStart {
		t.Fatalf("expected START marker, got %+v", recs[0])
	}
	if recs[1].Kind != KindLocation || recs[1].At != 0 {
		t.Fatalf("record 1: %+v", recs[1])
	}
	if !recs[1].Sample.Equal(mustSample(t, 47.5, -122.25, 4, nil)) {
		t.Fatalf("sample 1: %v", recs[1].Sample)
	}
	cog, _ := location.NewCourseOverGround(270, 3)
	if recs[2].At != 10*time.Nanosecond || !recs[2].Sample.Equal(mustSample(t, 47.6, -122.3, 5, &cog)) {
		t.Fatalf("record 2: %+v", recs[2])
	}
	if recs[3].Kind != KindHeading || recs[3].HeadingDeg != 181.5 || recs[3].At != 25*time.Nanosecond {
		t.Fatalf("record 3: %+v", recs[3])
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	cases := []string{
		"not-a-valid-line\n",
		"-1,H,10\n",
		"0,X,1\n",
		"0,L,91,0,1\n",
		"0,L,1,2,-1\n",
		"0,L,1,2,3,90\n",
		"0,L,1,2,3,abc,1\n",
		"0,H,1,2\n",
	}
	for _, in := range cases {
		if _, err := NewReader(strings.NewReader(in)).ReadAll(); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestWriter_WritesExpectedFormat(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "out.log")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	w.start = time.Unix(0, 0)

	cog, _ := location.NewCourseOverGround(90, 2)
	if err := w.WriteLocation(time.Unix(0, 20), mustSample(t, 1.5, -2.25, 3, &cog)); err != nil {
		t.Fatalf("WriteLocation() error: %v", err)
	}
	if err := w.WriteHeading(time.Unix(0, 30), 45.5); err != nil {
		t.Fatalf("WriteHeading() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteHeading(time.Unix(0, 40), 1); err == nil {
		t.Fatalf("expected error after Close")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(b) != "START\n20,L,1.5,-2.25,3,90,2\n30,H,45.5\n" {
		t.Fatalf("unexpected file contents: %q", string(b))
	}
}

func TestRecorder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	rec := NewRecorder(w)
	base := w.start
	step := 0
	rec.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Millisecond)
	}

	src := location.NewSimulatedSource()
	if err := src.AddListener(rec, location.ExecutorFunc(func(task func()) { task() })); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	cog, _ := location.NewCourseOverGround(359, 1)
	in := []location.Sample{
		mustSample(t, 10, 20, 5, nil),
		mustSample(t, -10.125, 179.5, 0, &cog),
	}
	src.SetLocation(in[0])
	src.SetHeading(12.25)
	src.SetLocation(in[1])
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.Err() != nil {
		t.Fatalf("Err: %v", rec.Err())
	}

	recs, err := NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v\n%s", err, buf.String())
	}
	if len(recs) != 4 {
		t.Fatalf("records=%d want 4", len(recs))
	}
	if !recs[1].Sample.Equal(in[0]) || recs[2].HeadingDeg != 12.25 || !recs[3].Sample.Equal(in[1]) {
		t.Fatalf("round trip mismatch: %+v", recs)
	}
	if recs[1].At != time.Millisecond || recs[3].At != 3*time.Millisecond {
		t.Fatalf("offsets: %s %s", recs[1].At, recs[3].At)
	}
}
