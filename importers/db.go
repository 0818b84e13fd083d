package importers

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/db_store"
)

const (
	DEFAULT_ZONE_NAME = "Zona UAS"
	DEFAULT_ZONE_TYPE = "Zona de ejemplo"
)

type ZoneWriter interface {
	InsertZone(ctx context.Context, zone *db_store.Zone) (int64, error)
}

// DBZoneImporter stores each feature as a Zone, keeping the whole
// Feature as its geometry.
type DBZoneImporter struct {
	logger *logrus.Logger
	zones  ZoneWriter
}

func (*DBZoneImporter) ImporterName() string {
	return "db"
}

func stringProperty(props geojson.Properties, keys ...string) string {
	for _, key := range keys {
		if v, _ := props[key].(string); v != "" {
			return v
		}
	}
	return ""
}

// orb writes an empty geometry object for a nil Geometry
func marshalFeature(feature *geojson.Feature) ([]byte, error) {
	if feature.Geometry != nil {
		return json.Marshal(feature)
	}

	doc := map[string]any{
		"type":       "Feature",
		"properties": feature.Properties,
		"geometry":   nil,
	}
	if feature.ID != nil {
		doc["id"] = feature.ID
	}
	return json.Marshal(doc)
}

// ZoneFromFeature maps a feature onto a Zone. name falls back to
// DEFAULT_ZONE_NAME and zone_type to "type", then DEFAULT_ZONE_TYPE.
func ZoneFromFeature(feature *geojson.Feature) (*db_store.Zone, error) {
	name := stringProperty(feature.Properties, "name")
	if name == "" {
		name = DEFAULT_ZONE_NAME
	}

	zoneType := stringProperty(feature.Properties, "zone_type", "type")
	if zoneType == "" {
		zoneType = DEFAULT_ZONE_TYPE
	}

	geometry, err := marshalFeature(feature)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feature: %w", err)
	}

	return &db_store.Zone{
		Name:     name,
		ZoneType: zoneType,
		Geometry: geometry,
	}, nil
}

func (importer *DBZoneImporter) ImportFeatures(ctx context.Context, features []*geojson.Feature) (int, error) {
	created := 0

	for _, feature := range features {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		zone, err := ZoneFromFeature(feature)
		if err != nil {
			importer.logger.Warnf("DBZoneImporter: skipping feature: %v", err)
			continue
		}

		if _, err := importer.zones.InsertZone(ctx, zone); err != nil {
			return created, fmt.Errorf("failed to insert zone '%s': %w", zone.Name, err)
		}

		importer.logger.Debugf("DBZoneImporter: imported zone %d '%s' (%s)", zone.Id, zone.Name, zone.ZoneType)
		created++
	}

	return created, nil
}

func NewDBZoneImporter(logger *logrus.Logger, zones ZoneWriter) *DBZoneImporter {
	return &DBZoneImporter{
		logger: logger,
		zones:  zones,
	}
}
