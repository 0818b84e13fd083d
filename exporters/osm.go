package exporters

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmgeojson"
	"github.com/sirupsen/logrus"
)

// tags checked, in order, for a zone type
var osmZoneTypeTags = []string{"aeroway", "military", "landuse", "boundary", "leisure", "amenity", "power"}

// OSMExporter turns the named closed ways and relations of an OSM XML
// extract into zone features.
type OSMExporter struct {
	logger   *logrus.Logger
	filename string
}

func (*OSMExporter) ExporterName() string {
	return "osm"
}

func featureTags(props geojson.Properties) map[string]string {
	switch tags := props["tags"].(type) {
	case map[string]string:
		return tags
	case map[string]any:
		result := make(map[string]string, len(tags))
		for k, v := range tags {
			if s, ok := v.(string); ok {
				result[k] = s
			}
		}
		return result
	}
	return nil
}

// zoneFeaturesFromOSM keeps the named polygons of 'osmData', tagging each
// with a zone_type taken from the first of osmZoneTypeTags it carries.
func zoneFeaturesFromOSM(ctx context.Context, logger *logrus.Logger, osmData *osm.OSM) ([]*geojson.Feature, error) {
	fc, err := osmgeojson.Convert(osmData, osmgeojson.NoMeta(true))
	if err != nil {
		return nil, fmt.Errorf("error converting osm to geojson: %w", err)
	}

	features := make([]*geojson.Feature, 0, len(fc.Features))

	for _, feature := range fc.Features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if feature.Geometry == nil {
			continue
		}

		switch feature.Geometry.GeoJSONType() {
		case "Polygon", "MultiPolygon":
		default:
			continue
		}

		tags := featureTags(feature.Properties)

		name := tags["name"]
		if name == "" {
			logger.Debugf("OSMExporter: skipping unnamed feature %v", feature.ID)
			continue
		}

		zoneType := ""
		for _, tag := range osmZoneTypeTags {
			if v := tags[tag]; v != "" {
				zoneType = tag + "=" + v
				break
			}
		}

		props := geojson.Properties{
			"name":   name,
			"osm_id": feature.ID,
		}
		if zoneType != "" {
			props["zone_type"] = zoneType
		}

		zoneFeature := geojson.NewFeature(feature.Geometry)
		zoneFeature.Properties = props
		features = append(features, zoneFeature)
	}

	return features, nil
}

func (exporter *OSMExporter) ExportFeatures(ctx context.Context) ([]*geojson.Feature, error) {
	data, err := os.ReadFile(exporter.filename)
	if err != nil {
		return nil, fmt.Errorf("couldn't read OSM file: %w", err)
	}

	var osmData osm.OSM
	if err := xml.Unmarshal(data, &osmData); err != nil {
		return nil, fmt.Errorf("couldn't parse OSM XML: %w", err)
	}

	features, err := zoneFeaturesFromOSM(ctx, exporter.logger, &osmData)
	if err != nil {
		return nil, err
	}

	exporter.logger.Infof("OSMExporter: found %d named zone(s) in '%s'", len(features), exporter.filename)

	return features, nil
}

func NewOSMExporter(logger *logrus.Logger, filename string) (*OSMExporter, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("OSM file not found: %w", err)
	}

	exporter := &OSMExporter{
		logger:   logger,
		filename: filename,
	}
	return exporter, nil
}
