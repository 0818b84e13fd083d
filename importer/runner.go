package importer

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/exporters"
	"github.com/SkylogUAS/Skylog/geo"
	"github.com/SkylogUAS/Skylog/importers"
)

type ZoneCleaner interface {
	DeleteAllZones(ctx context.Context) (int64, error)
}

type ImportResult struct {
	Deleted int64
	Created int
	Skipped int
}

type ImportRunner struct {
	logger *logrus.Logger
	config Config

	importer importers.Importer
	exporter exporters.Exporter
	cleaner  ZoneCleaner
}

func (runner *ImportRunner) filterFeatures(ctx context.Context, baseFeatures []*geojson.Feature) ([]*geojson.Feature, error) {
	features := make([]*geojson.Feature, 0, len(baseFeatures))

	for idx, feature := range baseFeatures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if feature == nil {
			runner.logger.Warnf("ImportRunner: skipping empty feature #%d", idx+1)
			continue
		}

		// stored as-is. only polygonal zones are matched against flights and photos.
		if !geo.GeometrySupported(feature.Geometry) {
			name, _ := feature.Properties["name"].(string)
			if name == "" {
				name = fmt.Sprintf("#%d", idx+1)
			}
			shape := "no geometry"
			if feature.Geometry != nil {
				shape = feature.Geometry.GeoJSONType()
			}
			runner.logger.Infof("ImportRunner: zone '%s' will not be used for matching: %s", name, shape)
		}

		features = append(features, feature)
	}

	return features, nil
}

// Import reads every feature from the exporter, replaces the stored zones
// unless KeepExisting is set, then hands every feature to the importer.
func (runner *ImportRunner) Import(ctx context.Context) (*ImportResult, error) {
	baseFeatures, err := runner.exporter.ExportFeatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get features from %s: %w", runner.exporter.ExporterName(), err)
	}

	features, err := runner.filterFeatures(ctx, baseFeatures)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Skipped: len(baseFeatures) - len(features),
	}

	if runner.config.KeepExisting {
		runner.logger.Infof("ImportRunner: keeping existing zones")
	} else {
		result.Deleted, err = runner.cleaner.DeleteAllZones(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to delete existing zones: %w", err)
		}
		runner.logger.Infof("ImportRunner: deleted %d existing zone(s)", result.Deleted)
	}

	result.Created, err = runner.importer.ImportFeatures(ctx, features)
	if err != nil {
		return result, fmt.Errorf("%s importer: %w", runner.importer.ImporterName(), err)
	}

	runner.logger.Infof(
		"ImportRunner: import complete: created %d zone(s), skipped %d, deleted beforehand %d",
		result.Created,
		result.Skipped,
		result.Deleted,
	)

	return result, nil
}

func NewImportRunner(logger *logrus.Logger, config Config, importer importers.Importer, exporter exporters.Exporter, cleaner ZoneCleaner) (*ImportRunner, error) {
	if !config.KeepExisting && cleaner == nil {
		return nil, fmt.Errorf("ImportRunner: replacing zones needs a ZoneCleaner")
	}

	runner := &ImportRunner{
		logger:   logger,
		config:   config,
		importer: importer,
		exporter: exporter,
		cleaner:  cleaner,
	}
	return runner, nil
}
