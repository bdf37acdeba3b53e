// Package gdl90 encodes location readings as GDL90 messages for EFB apps
// that listen on UDP 4000.
package gdl90

import "fmt"

const (
	flagByte   = 0x7E
	escapeByte = 0x7D
	escapeXor  = 0x20
)

// Frame appends the CRC16 to an unframed message (ID + payload), applies
// byte-stuffing and wraps the result in 0x7E flags.
func Frame(message []byte) []byte {
	crc := crc16(message)

	// CRC is little-endian (low byte first).
	withCRC := make([]byte, 0, len(message)+2)
	withCRC = append(withCRC, message...)
	withCRC = append(withCRC, byte(crc&0xFF), byte((crc>>8)&0xFF))

	out := make([]byte, 0, 2+len(withCRC)*2)
	out = append(out, flagByte)
	for _, b := range withCRC {
		if b == flagByte || b == escapeByte {
			out = append(out, escapeByte, b^escapeXor)
			continue
		}
		out = append(out, b)
	}
	return append(out, flagByte)
}

// Unframe reverses Frame. crcOK reports whether the trailing CRC matched.
func Unframe(frame []byte) (msg []byte, crcOK bool, err error) {
	if len(frame) < 4 {
		return nil, false, fmt.Errorf("frame too short: %d", len(frame))
	}
	if frame[0] != flagByte || frame[len(frame)-1] != flagByte {
		return nil, false, fmt.Errorf("missing start/end flags")
	}

	raw := make([]byte, 0, len(frame))
	for i := 1; i < len(frame)-1; i++ {
		b := frame[i]
		if b == escapeByte {
			i++
			if i >= len(frame)-1 {
				return nil, false, fmt.Errorf("truncated escape at end of frame")
			}
			raw = append(raw, frame[i]^escapeXor)
			continue
		}
		raw = append(raw, b)
	}
	if len(raw) < 3 {
		return nil, false, fmt.Errorf("unescaped payload too short: %d", len(raw))
	}

	msg = raw[:len(raw)-2]
	got := uint16(raw[len(raw)-2]) | (uint16(raw[len(raw)-1]) << 8)
	return msg, got == crc16(msg), nil
}

// crc16 is CRC-CCITT (poly 0x1021, init 0) as used by GDL90.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc16Table[crc>>8] ^ (crc << 8) ^ uint16(b)
	}
	return crc
}

var crc16Table = func() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()
