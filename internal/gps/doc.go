// Package gps is the hardware-backed location source.
//
// It reads a USB serial GNSS receiver (NMEA RMC/GGA/HDT), a plain TCP NMEA
// feed, or a gpsd daemon (TPV/SKY/ATT JSON) and republishes fixes and headings through the shared
// location dispatcher:
// - RMC (or TPV with mode >= 2) produces a location sample
// - HDT (or ATT) produces a heading
// - Course over ground is attached only when the receiver reports both
//   track and track error (gpsd epd); NMEA never carries the latter
package gps
