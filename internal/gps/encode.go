package gps

import (
	"fmt"
	"math"
	"time"

	"navsense/internal/location"
)

// EncodeRMC renders s as a $GPRMC sentence stamped with now. Speed is left
// empty; the track field is filled only when s carries a course.
func EncodeRMC(s location.Sample, now time.Time) string {
	now = now.UTC()
	c := s.Coordinates()
	lat, ns := nmeaAngle(c.Lat(), 2, "N", "S")
	lon, ew := nmeaAngle(c.Lon(), 3, "E", "W")
	track := ""
	if cog, ok := s.Course(); ok {
		track = fmt.Sprintf("%.1f", float64(cog.Bearing()))
	}
	payload := fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,,%s,%s,,",
		now.Format("150405.00"), lat, ns, lon, ew, track, now.Format("020106"))
	return withChecksum(payload)
}

// EncodeHDT renders a $HEHDT true-heading sentence. It returns "" for NaN or
// infinite headings.
func EncodeHDT(headingDeg float64) string {
	if math.IsNaN(headingDeg) || math.IsInf(headingDeg, 0) {
		return ""
	}
	h := math.Mod(headingDeg, 360)
	if h < 0 {
		h += 360
	}
	// Printed with two decimals; 359.999 must not come out as 360.00.
	h = math.Round(h*100) / 100
	if h >= 360 {
		h = 0
	}
	return withChecksum(fmt.Sprintf("HEHDT,%.2f,T", h))
}

func withChecksum(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

// nmeaAngle formats decimal degrees as [d]ddmm.mmmm plus hemisphere.
func nmeaAngle(v float64, degDigits int, pos, neg string) (string, string) {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	mins := (v - deg) * 60
	// Avoid printing 60.0000 minutes after rounding.
	if math.Round(mins*1e4) >= 60*1e4 {
		deg++
		mins = 0
	}
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(deg), mins), hemi
}
