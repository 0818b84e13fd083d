// Package zone_index keeps an in-memory spatial index of the stored zones
// so point and path lookups don't hit the database.
package zone_index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/geo"
)

type ZoneRef struct {
	Id       int64  `json:"id"`
	Name     string `json:"name"`
	ZoneType string `json:"zone_type"`
}

type ZoneSource interface {
	GetAllZones(ctx context.Context) ([]*db_store.Zone, error)
}

type ZoneIndex struct {
	logger  *logrus.Logger
	source  ZoneSource
	matcher atomic.Pointer[geo.ZoneMatcher[ZoneRef]]
	// set when the stored zones changed and the matcher must be rebuilt
	stale atomic.Bool
	// one rebuild at a time
	reloadMutex sync.Mutex
}

func (idx *ZoneIndex) Reload(ctx context.Context) error {
	idx.reloadMutex.Lock()
	defer idx.reloadMutex.Unlock()
	return idx.reload(ctx)
}

func (idx *ZoneIndex) reload(ctx context.Context) error {
	// cleared before loading: an Invalidate during the load leaves it set
	idx.stale.Store(false)

	zones, err := idx.source.GetAllZones(ctx)
	if err != nil {
		idx.stale.Store(true)
		return fmt.Errorf("failed to load zones: %w", err)
	}

	matcher := geo.NewZoneMatcher[ZoneRef]()
	skipped := 0

	for _, zone := range zones {
		ref := ZoneRef{Id: zone.Id, Name: zone.Name, ZoneType: zone.ZoneType}
		if _, err := matcher.InsertGeoJSON(zone.Geometry, ref); err != nil {
			idx.logger.Warnf("ZoneIndex: skipping zone %d (%s): %v", zone.Id, zone.Name, err)
			skipped++
		}
	}

	idx.matcher.Store(matcher)

	idx.logger.Infof("ZoneIndex: indexed %d zone geometries (%d zone(s) skipped)", matcher.Len(), skipped)

	return nil
}

// Invalidate marks the index stale. The next lookup rebuilds it.
func (idx *ZoneIndex) Invalidate() {
	idx.stale.Store(true)
}

func (idx *ZoneIndex) getMatcher(ctx context.Context) *geo.ZoneMatcher[ZoneRef] {
	matcher := idx.matcher.Load()
	if matcher != nil && !idx.stale.Load() {
		return matcher
	}

	idx.reloadMutex.Lock()
	defer idx.reloadMutex.Unlock()

	// another lookup may have rebuilt it while we waited
	matcher = idx.matcher.Load()
	if matcher == nil || idx.stale.Load() {
		if err := idx.reload(ctx); err != nil {
			idx.logger.Errorf("ZoneIndex: %v", err)
		}
		matcher = idx.matcher.Load()
	}
	return matcher
}

func (idx *ZoneIndex) GetMatchingZones(ctx context.Context, lat, lon float64) []ZoneRef {
	matcher := idx.getMatcher(ctx)
	if matcher == nil {
		return nil
	}
	return matcher.GetMatchingZones(lat, lon)
}

func (idx *ZoneIndex) GetZonesAlongPath(ctx context.Context, ls orb.LineString) []ZoneRef {
	matcher := idx.getMatcher(ctx)
	if matcher == nil {
		return nil
	}
	return matcher.GetZonesAlongPath(ls)
}

func NewZoneIndex(logger *logrus.Logger, source ZoneSource) *ZoneIndex {
	return &ZoneIndex{
		logger: logger,
		source: source,
	}
}
