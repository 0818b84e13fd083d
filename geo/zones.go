package geo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeometriesFromGeoJSON pulls every geometry out of a stored zone, which
// may be a bare geometry, a Feature or a FeatureCollection.
func GeometriesFromGeoJSON(raw []byte) ([]orb.Geometry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, nullJSON) {
		return nil, errors.New("no geometry")
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("geometry is not valid json: %w", err)
	}

	switch head.Type {
	case "Feature":
		feature, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, err
		}
		if feature.Geometry == nil {
			return nil, errors.New("feature has no geometry")
		}
		return []orb.Geometry{feature.Geometry}, nil
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, err
		}
		geometries := make([]orb.Geometry, 0, len(fc.Features))
		for _, feature := range fc.Features {
			if feature.Geometry != nil {
				geometries = append(geometries, feature.Geometry)
			}
		}
		return geometries, nil
	case "":
		return nil, errors.New("missing GeoJSON type")
	default:
		geometry, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, err
		}
		return []orb.Geometry{geometry.Geometry()}, nil
	}
}

func GeometrySupported(geometry orb.Geometry) bool {
	switch geometry.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// ZoneMatcher answers which zones contain a point or are touched by a path.
type ZoneMatcher[V comparable] struct {
	fences *FenceRTree[V]
}

// InsertGeoJSON indexes all polygonal geometries found in 'raw' under
// 'value'. It returns how many were indexed.
func (matcher *ZoneMatcher[V]) InsertGeoJSON(raw []byte, value V) (int, error) {
	geometries, err := GeometriesFromGeoJSON(raw)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, geometry := range geometries {
		if !GeometrySupported(geometry) {
			continue
		}
		if err := matcher.fences.InsertGeometry(geometry, value); err != nil {
			return inserted, err
		}
		inserted++
	}

	if inserted == 0 {
		return 0, errors.New("no Polygon or MultiPolygon geometry")
	}
	return inserted, nil
}

func (matcher *ZoneMatcher[V]) Len() int {
	return matcher.fences.Len()
}

func (matcher *ZoneMatcher[V]) GetMatchingZones(lat, lon float64) []V {
	return dedupe(matcher.fences.GetMatches(lat, lon))
}

// GetZonesAlongPath returns zones containing any vertex of the path, in
// order of first hit.
func (matcher *ZoneMatcher[V]) GetZonesAlongPath(ls orb.LineString) []V {
	var matches []V
	for _, p := range ls {
		matches = append(matches, matcher.fences.GetMatches(p.Lat(), p.Lon())...)
	}
	return dedupe(matches)
}

func dedupe[V comparable](values []V) []V {
	seen := make(map[V]struct{}, len(values))
	result := make([]V, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func NewZoneMatcher[V comparable]() *ZoneMatcher[V] {
	return &ZoneMatcher[V]{
		fences: NewFenceRTree[V](),
	}
}
