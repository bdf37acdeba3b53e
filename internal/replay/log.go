package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"navsense/internal/location"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Location lines are: <t_ns>,L,<lat>,<lon>,<accuracy_m>[,<bearing>,<bearing_acc>]
// - Heading lines are: <t_ns>,H,<heading_deg>
//   where t_ns is nanoseconds since START (monotonic).

// Kind tells which channel a record belongs to.
type Kind int

const (
	KindStart Kind = iota
	KindLocation
	KindHeading
)

type Record struct {
	At         time.Duration
	Kind       Kind
	Sample     location.Sample
	HeadingDeg float64
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{Kind: KindStart})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (Record, error) {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 3 {
		return Record{}, fmt.Errorf("invalid replay line (too few fields): %q", line)
	}

	tsNs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid replay timestamp %q: %w", fields[0], err)
	}
	if tsNs < 0 {
		return Record{}, fmt.Errorf("invalid replay timestamp (negative): %d", tsNs)
	}
	at := time.Duration(tsNs) * time.Nanosecond

	nums := make([]float64, 0, len(fields)-2)
	for _, f := range fields[2:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid replay number %q: %w", f, err)
		}
		nums = append(nums, v)
	}

	switch fields[1] {
	case "L":
		if len(nums) != 3 && len(nums) != 5 {
			return Record{}, fmt.Errorf("location record needs 3 or 5 values, got %d", len(nums))
		}
		coords, err := location.NewCoordinates(nums[0], nums[1])
		if err != nil {
			return Record{}, err
		}
		var course *location.CourseOverGround
		if len(nums) == 5 {
			course = location.CourseFromOptional(&nums[3], &nums[4])
			if course == nil {
				return Record{}, fmt.Errorf("%w: %v,%v", location.ErrInvalidCourse, nums[3], nums[4])
			}
		}
		sample, err := location.NewSample(coords, nums[2], course)
		if err != nil {
			return Record{}, err
		}
		return Record{At: at, Kind: KindLocation, Sample: sample}, nil
	case "H":
		if len(nums) != 1 {
			return Record{}, fmt.Errorf("heading record needs 1 value, got %d", len(nums))
		}
		return Record{At: at, Kind: KindHeading, HeadingDeg: nums[0]}, nil
	default:
		return Record{}, fmt.Errorf("unknown record kind %q", fields[1])
	}
}

type Writer struct {
	c      io.Closer
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.c = f
	return w, nil
}

// NewWriter writes the START marker to w. Close flushes but leaves w open.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		return nil, err
	}
	return &Writer{w: bw, start: time.Now()}, nil
}

func (ww *Writer) offset(now time.Time) int64 {
	// Use monotonic component of time when available.
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	return d.Nanoseconds()
}

func (ww *Writer) WriteLocation(now time.Time, s location.Sample) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	c := s.Coordinates()
	line := fmt.Sprintf("%d,L,%s,%s,%s", ww.offset(now), formatFloat(c.Lat()), formatFloat(c.Lon()), formatFloat(s.HorizontalAccuracy()))
	if cog, ok := s.Course(); ok {
		line += fmt.Sprintf(",%d,%d", cog.Bearing(), cog.Accuracy())
	}
	_, err := ww.w.WriteString(line + "\n")
	return err
}

func (ww *Writer) WriteHeading(now time.Time, headingDeg float64) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	_, err := fmt.Fprintf(ww.w, "%d,H,%s\n", ww.offset(now), formatFloat(headingDeg))
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		if ww.c != nil {
			_ = ww.c.Close()
		}
		return err
	}
	if ww.c != nil {
		return ww.c.Close()
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
