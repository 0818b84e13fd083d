package exporters

import (
	"context"

	"github.com/paulmach/orb/geojson"
)

type Exporter interface {
	ExporterName() string
	ExportFeatures(context.Context) ([]*geojson.Feature, error)
}

// FeatureCollection wraps the features of an exporter, never returning a
// nil Features slice so it marshals as [].
func FeatureCollection(ctx context.Context, exporter Exporter) (*geojson.FeatureCollection, error) {
	features, err := exporter.ExportFeatures(ctx)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, features...)
	return fc, nil
}
