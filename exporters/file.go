package exporters

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

// FileExporter reads features from a GeoJSON FeatureCollection file.
type FileExporter struct {
	logger   *logrus.Logger
	filename string
}

func (*FileExporter) ExporterName() string {
	return "geojson"
}

func (exporter *FileExporter) ExportFeatures(ctx context.Context) ([]*geojson.Feature, error) {
	data, err := os.ReadFile(exporter.filename)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GeoJSON file: %w", err)
	}
	return DecodeFeatures(exporter.logger, data)
}

// DecodeFeatures parses the "features" of a FeatureCollection document.
// Entries that aren't valid Features are skipped.
func DecodeFeatures(logger *logrus.Logger, data []byte) ([]*geojson.Feature, error) {
	var doc struct {
		Features []json.RawMessage `json:"features"`
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("couldn't parse GeoJSON: %w", err)
	}

	features := make([]*geojson.Feature, 0, len(doc.Features))

	for idx, raw := range doc.Features {
		feature, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			logger.Warnf("FileExporter: skipping feature #%d: %v", idx+1, err)
			continue
		}
		if feature.Properties == nil {
			feature.Properties = geojson.Properties{}
		}
		features = append(features, feature)
	}

	return features, nil
}

func NewFileExporter(logger *logrus.Logger, filename string) (*FileExporter, error) {
	if filename == "" {
		return nil, errors.New("no filename given")
	}

	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("GeoJSON file not found: %w", err)
	}

	exporter := &FileExporter{
		logger:   logger,
		filename: filename,
	}
	return exporter, nil
}
