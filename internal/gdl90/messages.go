package gdl90

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"navsense/internal/location"
)

const (
	latLonResolution = 180.0 / 8388608.0 // degrees per LSB, signed 24-bit
	trackResolution  = 360.0 / 256.0

	altitudeUnknown = 0x0FFF
	speedUnknown    = 0x0FFF
	vvelUnknown     = 0x0800
	nicDefault      = 8
)

// Identity is what the ownship report announces about this unit.
type Identity struct {
	ICAO     [3]byte
	Callsign string
}

// HeartbeatFrame builds the Heartbeat (0x00) stamped with now.
func HeartbeatFrame(now time.Time, gpsValid bool) []byte {
	msg := make([]byte, 7)
	msg[0] = 0x00

	// bit0 UAT initialized, bit4 address talkback, bit7 GPS position valid.
	flags := byte(0x01) | byte(0x10)
	if gpsValid {
		flags |= 0x80
	}
	msg[1] = flags

	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	secs := uint32(now.Sub(midnight).Seconds())

	// Seconds since 0000Z: bit 16 goes in status byte 2, low 16 bits follow
	// little-endian.
	msg[2] = byte(((secs >> 16) << 7) | 0x01)
	msg[3] = byte(secs & 0xFF)
	msg[4] = byte((secs & 0xFFFF) >> 8)
	return Frame(msg)
}

// OwnshipFrame builds an Ownship Report (0x0A) from a sample. Altitude,
// speed and vertical velocity are sent as unknown; the track field is only
// marked valid when the sample carries a course.
func OwnshipFrame(id Identity, s location.Sample) []byte {
	msg := make([]byte, 28)
	msg[0] = 0x0A
	msg[1] = 0x00 // no alert, ADS-B with ICAO address
	msg[2], msg[3], msg[4] = id.ICAO[0], id.ICAO[1], id.ICAO[2]

	c := s.Coordinates()
	lat := encodeLatLon24(c.Lat())
	msg[5], msg[6], msg[7] = lat[0], lat[1], lat[2]
	lon := encodeLatLon24(c.Lon())
	msg[8], msg[9], msg[10] = lon[0], lon[1], lon[2]

	msg[11] = byte((altitudeUnknown >> 4) & 0xFF)
	msg[12] = byte((altitudeUnknown & 0x0F) << 4)

	cog, hasCourse := s.Course()
	if hasCourse {
		msg[12] |= 0x01 // true track valid
	}

	nacp := NACpFromHorizontalAccuracyMeters(s.HorizontalAccuracy())
	msg[13] = (nicDefault << 4) | (nacp & 0x0F)

	msg[14] = byte((speedUnknown & 0xFF0) >> 4)
	msg[15] = byte((speedUnknown&0x00F)<<4) | byte((vvelUnknown&0x0F00)>>8)
	msg[16] = byte(vvelUnknown & 0xFF)

	if hasCourse {
		msg[17] = encodeTrack8(float64(cog.Bearing()))
	}
	msg[18] = 0x01 // emitter: light
	copy(msg[19:27], []byte(sanitizeCallsign(id.Callsign)))
	return Frame(msg)
}

// HeadingFrame builds the "LE" AHRS report (0x4C 0x45) with only the heading
// field populated; every other field carries its invalid sentinel. It returns
// nil for NaN or infinite headings.
func HeadingFrame(headingDeg float64) []byte {
	if math.IsNaN(headingDeg) || math.IsInf(headingDeg, 0) {
		return nil
	}
	msg := make([]byte, 24)
	msg[0], msg[1], msg[2], msg[3] = 0x4C, 0x45, 0x01, 0x01

	h := math.Mod(headingDeg, 360)
	if h < 0 {
		h += 360
	}
	hdg := int16(math.Round(h*10)) % 3600

	put16 := func(i int, v uint16) {
		msg[i] = byte(v >> 8)
		msg[i+1] = byte(v)
	}
	const invalid = 0x7FFF
	put16(4, invalid)  // roll
	put16(6, invalid)  // pitch
	put16(8, uint16(hdg))
	put16(10, invalid) // slip/skid
	put16(12, invalid) // yaw rate
	put16(14, invalid) // g
	put16(16, invalid) // airspeed
	put16(18, 0xFFFF)  // pressure altitude
	put16(20, invalid) // vertical speed
	put16(22, invalid) // reserved
	return Frame(msg)
}

// NACpFromHorizontalAccuracyMeters maps horizontal accuracy to a NACp
// category. Zero or negative accuracy means unknown.
func NACpFromHorizontalAccuracyMeters(accuracyM float64) byte {
	switch {
	case accuracyM <= 0:
		return 0
	case accuracyM < 3:
		return 11
	case accuracyM < 10:
		return 10
	case accuracyM < 30:
		return 9
	case accuracyM < 92.6:
		return 8
	case accuracyM < 185.2:
		return 7
	case accuracyM < 555.6:
		return 6
	default:
		return 0
	}
}

func ParseICAOHex(s string) ([3]byte, error) {
	var out [3]byte
	s = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if len(s) != 6 {
		return out, fmt.Errorf("icao must be 6 hex chars")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func encodeLatLon24(deg float64) [3]byte {
	// Truncate toward zero.
	wk := int32(deg / latLonResolution)
	u := uint32(wk) & 0x00FFFFFF
	return [3]byte{byte(u >> 16), byte(u >> 8), byte(u)}
}

func encodeTrack8(deg float64) byte {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return byte(int(math.Floor((deg+trackResolution/2)/trackResolution)) % 256)
}

func sanitizeCallsign(s string) string {
	if s == "" {
		s = "NAVSENSE"
	}
	s = strings.ToUpper(s)
	if len(s) > 8 {
		s = s[:8]
	}
	b := []byte(s)
	for i, c := range b {
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || c == ' ') {
			b[i] = ' '
		}
	}
	for len(b) < 8 {
		b = append(b, ' ')
	}
	return string(b)
}
