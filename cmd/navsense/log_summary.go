package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"navsense/internal/replay"
)

type logSummary struct {
	Segments    int
	Locations   int
	WithCourse  int
	Headings    int
	MaxDuration time.Duration
	BestAccM    float64
	WorstAccM   float64
}

func summarizeLocationLog(records []replay.Record) logSummary {
	var s logSummary

	origin := time.Duration(0)
	hasData := false
	for _, r := range records {
		if r.Kind == replay.KindStart {
			s.Segments++
			origin = r.At
			continue
		}
		hasData = true

		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		switch r.Kind {
		case replay.KindHeading:
			s.Headings++
		case replay.KindLocation:
			acc := r.Sample.HorizontalAccuracy()
			if s.Locations == 0 || acc < s.BestAccM {
				s.BestAccM = acc
			}
			if acc > s.WorstAccM {
				s.WorstAccM = acc
			}
			s.Locations++
			if _, ok := r.Sample.Course(); ok {
				s.WithCourse++
			}
		}
	}
	if s.Segments == 0 && hasData {
		s.Segments = 1
	}
	return s
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}

	s := summarizeLocationLog(recs)
	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "locations: %d\n", s.Locations)
	fmt.Fprintf(w, "with_course: %d\n", s.WithCourse)
	fmt.Fprintf(w, "headings: %d\n", s.Headings)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	if s.Locations > 0 {
		fmt.Fprintf(w, "accuracy_m: best=%g worst=%g\n", s.BestAccM, s.WorstAccM)
	}
	return nil
}
