package geo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	orb_geo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrNoPath       = errors.New("no path given")
	ErrPathTooShort = errors.New("path needs at least 2 points")
)

var nullJSON = []byte("null")

// NormalizePath turns the shapes users hand us for a flight path into a
// LineString. Accepted: a LineString or MultiLineString geometry, a Feature
// wrapping one, a FeatureCollection (first line feature wins), a bare
// [[lon,lat],...] array, or an object with a "path_geojson" member holding
// any of those.
func NormalizePath(raw []byte) (orb.LineString, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, nullJSON) {
		return nil, ErrNoPath
	}

	if raw[0] == '[' {
		return lineStringFromCoordinates(raw)
	}

	var head struct {
		Type        string          `json:"type"`
		PathGeoJSON json.RawMessage `json:"path_geojson"`
	}

	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("path is not valid json: %w", err)
	}

	switch head.Type {
	case "Feature":
		feature, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("bad Feature: %w", err)
		}
		return lineStringFromGeometry(feature.Geometry)
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("bad FeatureCollection: %w", err)
		}
		for _, feature := range fc.Features {
			if !isLineGeometry(feature.Geometry) {
				continue
			}
			return lineStringFromGeometry(feature.Geometry)
		}
		return nil, errors.New("FeatureCollection has no LineString feature")
	case "":
		if len(head.PathGeoJSON) > 0 {
			return NormalizePath(head.PathGeoJSON)
		}
		return nil, errors.New("path has no GeoJSON type")
	default:
		geometry, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("bad geometry: %w", err)
		}
		return lineStringFromGeometry(geometry.Geometry())
	}
}

func isLineGeometry(geometry orb.Geometry) bool {
	switch geometry.(type) {
	case orb.LineString, orb.MultiLineString:
		return true
	}
	return false
}

func lineStringFromGeometry(geometry orb.Geometry) (orb.LineString, error) {
	var ls orb.LineString

	switch typedGeometry := geometry.(type) {
	case orb.LineString:
		ls = typedGeometry
	case orb.MultiLineString:
		for _, part := range typedGeometry {
			ls = append(ls, part...)
		}
	case nil:
		return nil, ErrNoPath
	default:
		return nil, fmt.Errorf("GeoJSONType %s is not a path", geometry.GeoJSONType())
	}

	if len(ls) < 2 {
		return nil, ErrPathTooShort
	}
	return ls, nil
}

func lineStringFromCoordinates(raw []byte) (orb.LineString, error) {
	var coords [][]float64

	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, fmt.Errorf("bad coordinate array: %w", err)
	}

	ls := make(orb.LineString, len(coords))
	for idx, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has %d value(s), need [lon, lat]", idx, len(coord))
		}
		ls[idx] = orb.Point{coord[0], coord[1]}
	}

	if len(ls) < 2 {
		return nil, ErrPathTooShort
	}
	return ls, nil
}

// PathGeometryJSON is the stored form of a path: a bare LineString geometry.
func PathGeometryJSON(ls orb.LineString) ([]byte, error) {
	return geojson.NewGeometry(ls).MarshalJSON()
}

// PathLengthMeters sums the haversine distance between consecutive vertices.
func PathLengthMeters(ls orb.LineString) float64 {
	var total float64
	for i := 1; i < len(ls); i++ {
		total += orb_geo.DistanceHaversine(ls[i-1], ls[i])
	}
	return total
}

// PathLengthKm measures a stored path. Anything unparsable measures 0.
func PathLengthKm(raw []byte) float64 {
	ls, err := NormalizePath(raw)
	if err != nil {
		return 0
	}
	return PathLengthMeters(ls) / 1000
}
