package overpass

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ParseBBox reads "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox '%s' needs 4 comma separated numbers", s)
	}

	var values [4]float64
	for idx, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox '%s': %w", s, err)
		}
		values[idx] = v
	}

	bound := orb.Bound{
		Min: orb.Point{values[0], values[1]},
		Max: orb.Point{values[2], values[3]},
	}

	if bound.Min.Lon() < -180 || bound.Max.Lon() > 180 || bound.Min.Lat() < -90 || bound.Max.Lat() > 90 {
		return orb.Bound{}, fmt.Errorf("bbox '%s' is out of range", s)
	}
	if bound.Min.Lon() >= bound.Max.Lon() || bound.Min.Lat() >= bound.Max.Lat() {
		return orb.Bound{}, fmt.Errorf("bbox '%s' must be minLon,minLat,maxLon,maxLat", s)
	}

	return bound, nil
}
