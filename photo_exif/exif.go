// Package photo_exif reads the GPS position and capture time out of photo
// EXIF metadata.
package photo_exif

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

var ErrNoGPS = errors.New("no usable GPS data in EXIF")

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Metadata struct {
	// nil when the photo carries no usable GPS position
	Coordinates *Coordinates
	// zero when unknown
	TakenAt time.Time
}

// DMSToDecimal converts degrees/minutes/seconds to decimal degrees.
// 'ref' is the hemisphere: S and W yield negative values.
func DMSToDecimal(dms []float64, ref string) (float64, error) {
	if len(dms) != 3 {
		return 0, fmt.Errorf("DMS has %d components, need 3", len(dms))
	}

	value := dms[0] + dms[1]/60.0 + dms[2]/3600.0

	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		value = -value
	}

	return value, nil
}

func rationalsFromTag(tag *tiff.Tag) ([]float64, error) {
	if tag.Count != 3 {
		return nil, fmt.Errorf("DMS has %d components, need 3", tag.Count)
	}

	values := make([]float64, 3)
	for i := range values {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return nil, err
		}
		if den == 0 {
			return nil, fmt.Errorf("DMS component %d has a zero denominator", i)
		}
		values[i] = float64(num) / float64(den)
	}
	return values, nil
}

func decimalFromFields(x *exif.Exif, valueField, refField exif.FieldName) (float64, error) {
	valueTag, err := x.Get(valueField)
	if err != nil {
		return 0, err
	}

	refTag, err := x.Get(refField)
	if err != nil {
		return 0, err
	}

	ref, err := refTag.StringVal()
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(ref) == "" {
		return 0, fmt.Errorf("%s is empty", refField)
	}

	dms, err := rationalsFromTag(valueTag)
	if err != nil {
		return 0, err
	}

	return DMSToDecimal(dms, ref)
}

func gpsFromExif(x *exif.Exif) (*Coordinates, error) {
	lat, err := decimalFromFields(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	if err != nil {
		return nil, fmt.Errorf("%w: latitude: %v", ErrNoGPS, err)
	}

	lon, err := decimalFromFields(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if err != nil {
		return nil, fmt.Errorf("%w: longitude: %v", ErrNoGPS, err)
	}

	return &Coordinates{Lat: lat, Lon: lon}, nil
}

func decode(r io.ReadSeeker) (*exif.Exif, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	defer r.Seek(0, io.SeekStart)

	return exif.Decode(r)
}

// ExtractMetadata decodes the EXIF block of an image. The reader is
// rewound before and after. An error is returned only when no EXIF
// could be decoded at all.
func ExtractMetadata(r io.ReadSeeker) (*Metadata, error) {
	x, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("couldn't decode EXIF: %w", err)
	}

	var md Metadata

	if coords, err := gpsFromExif(x); err == nil {
		md.Coordinates = coords
	}

	if takenAt, err := x.DateTime(); err == nil {
		md.TakenAt = takenAt
	}

	return &md, nil
}

// ExtractGPS returns the photo's position or nil if it has none. Images
// that can't be read are treated the same as images without GPS.
func ExtractGPS(r io.ReadSeeker) *Coordinates {
	md, err := ExtractMetadata(r)
	if err != nil {
		return nil
	}
	return md.Coordinates
}
