package web

import "navsense/internal/location"

// CourseJSON is the wire form of a course over ground.
type CourseJSON struct {
	BearingDeg  uint16 `json:"bearing_deg"`
	AccuracyDeg uint16 `json:"accuracy_deg"`
}

// LocationJSON is the wire form of a location sample.
type LocationJSON struct {
	LatDeg              float64     `json:"lat_deg"`
	LonDeg              float64     `json:"lon_deg"`
	HorizontalAccuracyM float64     `json:"horizontal_accuracy_m"`
	Course              *CourseJSON `json:"course"`
}

// LastKnown is the /api/location response. Fields are null until the first
// reading of each kind.
type LastKnown struct {
	Location   *LocationJSON `json:"location"`
	HeadingDeg *float64      `json:"heading_deg"`
}

// StreamMessage is one websocket frame on /api/ws.
type StreamMessage struct {
	Type       string        `json:"type"` // "hello", "location" or "heading"
	ClientID   string        `json:"client_id,omitempty"`
	Location   *LocationJSON `json:"location,omitempty"`
	HeadingDeg *float64      `json:"heading_deg,omitempty"`
}

func toLocationJSON(s location.Sample) *LocationJSON {
	c := s.Coordinates()
	out := &LocationJSON{
		LatDeg:              c.Lat(),
		LonDeg:              c.Lon(),
		HorizontalAccuracyM: s.HorizontalAccuracy(),
	}
	if cog, ok := s.Course(); ok {
		out.Course = &CourseJSON{BearingDeg: cog.Bearing(), AccuracyDeg: cog.Accuracy()}
	}
	return out
}

func lastKnown(src location.Source) LastKnown {
	var out LastKnown
	if s, ok := src.LastLocation(); ok {
		out.Location = toLocationJSON(s)
	}
	if h, ok := src.LastHeading(); ok {
		out.HeadingDeg = &h
	}
	return out
}
