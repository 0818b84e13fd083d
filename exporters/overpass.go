package exporters

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/sirupsen/logrus"
)

type OverpassClient interface {
	GetZoneAreas(ctx context.Context, bound orb.Bound) (*osm.OSM, error)
}

// OverpassExporter fetches zone areas inside a bbox from an Overpass server.
type OverpassExporter struct {
	logger *logrus.Logger
	client OverpassClient
	bound  orb.Bound
}

func (*OverpassExporter) ExporterName() string {
	return "overpass"
}

func (exporter *OverpassExporter) ExportFeatures(ctx context.Context) ([]*geojson.Feature, error) {
	osmData, err := exporter.client.GetZoneAreas(ctx, exporter.bound)
	if err != nil {
		return nil, fmt.Errorf("failed to query overpass: %w", err)
	}

	features, err := zoneFeaturesFromOSM(ctx, exporter.logger, osmData)
	if err != nil {
		return nil, err
	}

	for _, feature := range features {
		feature.Properties["source"] = "overpass"
	}

	exporter.logger.Infof("OverpassExporter: found %d named zone(s) in %v", len(features), exporter.bound)

	return features, nil
}

func NewOverpassExporter(logger *logrus.Logger, client OverpassClient, bound orb.Bound) (*OverpassExporter, error) {
	if bound.IsEmpty() || bound.Min.Lon() >= bound.Max.Lon() || bound.Min.Lat() >= bound.Max.Lat() {
		return nil, fmt.Errorf("bbox %v is empty", bound)
	}

	exporter := &OverpassExporter{
		logger: logger,
		client: client,
		bound:  bound,
	}
	return exporter, nil
}
