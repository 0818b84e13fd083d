package exporters

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// MultiExporter concatenates the features of several sources, in order.
// The first failing source fails the whole export.
type MultiExporter []Exporter

func (mExporter MultiExporter) ExporterName() string {
	names := make([]string, len(mExporter))
	for idx, exporter := range mExporter {
		names[idx] = exporter.ExporterName()
	}
	return strings.Join(names, "+")
}

func (mExporter *MultiExporter) Append(exporter Exporter) {
	*mExporter = append(*mExporter, exporter)
}

func (mExporter MultiExporter) ExportFeatures(ctx context.Context) ([]*geojson.Feature, error) {
	var features []*geojson.Feature

	for _, exporter := range mExporter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sourceFeatures, err := exporter.ExportFeatures(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", exporter.ExporterName(), err)
		}
		features = append(features, sourceFeatures...)
	}

	if features == nil {
		features = []*geojson.Feature{}
	}
	return features, nil
}
