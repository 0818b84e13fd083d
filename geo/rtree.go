package geo

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"
)

type fenceEntry[V any] struct {
	polygon      orb.Polygon
	multiPolygon orb.MultiPolygon
	value        V
}

func (e fenceEntry[V]) Contains(p orb.Point) bool {
	if e.multiPolygon != nil {
		return planar.MultiPolygonContains(e.multiPolygon, p)
	}
	return planar.PolygonContains(e.polygon, p)
}

// FenceRTree indexes polygons by bounding box and answers
// point-in-polygon queries.
type FenceRTree[V any] struct {
	mutex sync.RWMutex
	rtree rtree.RTreeG[fenceEntry[V]]
	count int
}

func (rt *FenceRTree[V]) insertEntry(bbox orb.Bound, entry fenceEntry[V]) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	rt.rtree.Insert(bbox.Min, bbox.Max, entry)
	rt.count++
}

func (rt *FenceRTree[V]) InsertGeometry(geometry orb.Geometry, value V) error {
	switch typedGeometry := geometry.(type) {
	case orb.Polygon:
		rt.insertEntry(typedGeometry.Bound(), fenceEntry[V]{polygon: typedGeometry, value: value})
	case orb.MultiPolygon:
		rt.insertEntry(typedGeometry.Bound(), fenceEntry[V]{multiPolygon: typedGeometry, value: value})
	case nil:
		return fmt.Errorf("geometry is missing")
	default:
		return fmt.Errorf("GeoJSONType %s is not supported", geometry.GeoJSONType())
	}
	return nil
}

func (rt *FenceRTree[V]) Len() int {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()
	return rt.count
}

// GetMatches returns the values of every fence containing lat/lon.
func (rt *FenceRTree[V]) GetMatches(lat, lon float64) []V {
	matches := make([]V, 0, 2)

	p := orb.Point{lon, lat}

	rt.mutex.RLock()
	defer rt.mutex.RUnlock()
	rt.rtree.Search(p, p, func(min, max [2]float64, entry fenceEntry[V]) bool {
		if entry.Contains(p) {
			matches = append(matches, entry.value)
		}
		return true
	})

	return matches
}

func NewFenceRTree[V any]() *FenceRTree[V] {
	return &FenceRTree[V]{}
}
