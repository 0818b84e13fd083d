// Package exiftest builds small JPEG files carrying EXIF GPS data for tests.
package exiftest

import (
	"bytes"
	"encoding/binary"
)

// Rational is an EXIF RATIONAL: numerator, denominator.
type Rational [2]uint32

// DMS is degrees, minutes, seconds.
type DMS [3]Rational

type GPS struct {
	LatRef string
	Lat    DMS
	LonRef string
	Lon    DMS
	// "2006:01:02 15:04:05" layout, stored as IFD0 DateTime. Empty skips it.
	DateTime string
}

const (
	tagDateTime   = 0x0132
	tagGPSPointer = 0x8825

	tagGPSLatitudeRef  = 0x1
	tagGPSLatitude     = 0x2
	tagGPSLongitudeRef = 0x3
	tagGPSLongitude    = 0x4

	typeAscii    = 2
	typeLong     = 4
	typeRational = 5
)

// TIFF returns a little-endian TIFF block with IFD0 and a GPS IFD.
func (gps GPS) TIFF() []byte {
	ifd0Entries := uint32(1)
	if gps.DateTime != "" {
		ifd0Entries++
	}

	ifd0Off := uint32(8)
	gpsOff := ifd0Off + 2 + 12*ifd0Entries + 4
	latOff := gpsOff + 2 + 12*4 + 4
	lonOff := latOff + 24
	dateTimeOff := lonOff + 24

	var buf bytes.Buffer
	w := func(v any) { binary.Write(&buf, binary.LittleEndian, v) }
	entry := func(id, typ uint16, count, value uint32) {
		w(id)
		w(typ)
		w(count)
		w(value)
	}
	// a 1 char ASCII value and its NUL fit in the value field
	ref := func(s string) uint32 {
		if s == "" {
			return 0
		}
		return uint32(s[0])
	}

	buf.WriteString("II")
	w(uint16(42))
	w(ifd0Off)

	w(uint16(ifd0Entries))
	if gps.DateTime != "" {
		entry(tagDateTime, typeAscii, uint32(len(gps.DateTime)+1), dateTimeOff)
	}
	entry(tagGPSPointer, typeLong, 1, gpsOff)
	w(uint32(0))

	w(uint16(4))
	entry(tagGPSLatitudeRef, typeAscii, 2, ref(gps.LatRef))
	entry(tagGPSLatitude, typeRational, 3, latOff)
	entry(tagGPSLongitudeRef, typeAscii, 2, ref(gps.LonRef))
	entry(tagGPSLongitude, typeRational, 3, lonOff)
	w(uint32(0))

	w(gps.Lat)
	w(gps.Lon)

	if gps.DateTime != "" {
		buf.WriteString(gps.DateTime)
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

// JPEG wraps TIFF() in an APP1 Exif segment between SOI and EOI.
func (gps GPS) JPEG() []byte {
	tiff := gps.TIFF()

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	binary.Write(&buf, binary.BigEndian, uint16(2+6+len(tiff)))
	buf.WriteString("Exif\x00\x00")
	buf.Write(tiff)
	buf.Write([]byte{0xFF, 0xD9})

	return buf.Bytes()
}

// Madrid is Puerta del Sol: 40.4168 N, 3.7038 W.
func Madrid() GPS {
	return GPS{
		LatRef:   "N",
		Lat:      DMS{{40, 1}, {25, 1}, {48, 100}},
		LonRef:   "W",
		Lon:      DMS{{3, 1}, {42, 1}, {1368, 100}},
		DateTime: "2024:05:01 10:30:00",
	}
}
