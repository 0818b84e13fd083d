package geo

import (
	"math"

	venise_geo "github.com/dernise/venise/geo"
	"github.com/paulmach/orb"
	orb_geo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

func convertToVenisePolygon(orbPolygon orb.Polygon) venise_geo.Polygon {
	polygon := venise_geo.Polygon{
		Rings: make([][]venise_geo.Point, len(orbPolygon)),
	}
	for ringIdx, ring := range orbPolygon {
		ringPoints := make([]venise_geo.Point, len(ring))
		for ptsIdx, coord := range ring {
			ringPoints[ptsIdx] = venise_geo.Point(coord)
		}
		polygon.Rings[ringIdx] = ringPoints
	}
	return polygon
}

func largestPolygon(mp orb.MultiPolygon) orb.Polygon {
	if len(mp) == 0 {
		return nil
	}

	bestPoly := mp[0]
	maxArea := orb_geo.Area(bestPoly)

	for _, poly := range mp[1:] {
		if area := orb_geo.Area(poly); area > maxArea {
			maxArea = area
			bestPoly = poly
		}
	}

	return bestPoly
}

// ZoneLabelPoint is where a zone's marker goes: its centroid, unless the
// centroid lies outside (concave or holed shapes), then the pole of
// inaccessibility of the largest polygon.
func ZoneLabelPoint(geometry orb.Geometry) orb.Point {
	center, _ := planar.CentroidArea(geometry)

	var poly orb.Polygon

	switch typedGeometry := geometry.(type) {
	case orb.Polygon:
		if planar.PolygonContains(typedGeometry, center) {
			return center
		}
		poly = typedGeometry
	case orb.MultiPolygon:
		if planar.MultiPolygonContains(typedGeometry, center) {
			return center
		}
		poly = largestPolygon(typedGeometry)
	default:
		return center
	}

	if len(poly) == 0 {
		return center
	}

	return orb.Point(venise_geo.Polylabel(convertToVenisePolygon(poly), 0.000001, false))
}

// ZoneAreaKm2 is the geodesic area of the polygonal parts of a zone.
func ZoneAreaKm2(geometry orb.Geometry) float64 {
	return math.Abs(orb_geo.Area(geometry)) / 1e6
}
