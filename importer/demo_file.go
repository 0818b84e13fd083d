package importer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/exporters"
)

// AppendFeaturesToFile adds the exporter's features to an existing
// FeatureCollection file. Features already in the file are kept untouched.
// It returns the number of features before and after.
func AppendFeaturesToFile(ctx context.Context, logger *logrus.Logger, filename string, exporter exporters.Exporter) (int, int, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return 0, 0, fmt.Errorf("couldn't read '%s': %w", filename, err)
	}

	// decoded loosely so unknown members survive the rewrite
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, 0, fmt.Errorf("couldn't parse '%s': %w", filename, err)
	}

	existing, _ := doc["features"].([]any)
	before := len(existing)

	newFeatures, err := exporter.ExportFeatures(ctx)
	if err != nil {
		return 0, 0, err
	}

	features := existing
	for _, feature := range newFeatures {
		features = append(features, feature)
	}

	if _, ok := doc["type"]; !ok {
		doc["type"] = "FeatureCollection"
	}
	doc["features"] = features

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(doc); err != nil {
		return 0, 0, fmt.Errorf("failed to encode features: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	if err := f.Chmod(0644); err != nil {
		logger.Warnf("failed to chmod '%s': %v", f.Name(), err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		if unlinkErr := os.Remove(f.Name()); unlinkErr != nil {
			logger.Warnf("failed to remove tmpfile '%s': %v", f.Name(), unlinkErr)
		}
		return 0, 0, err
	}
	f.Close()

	if err := os.Rename(f.Name(), filename); err != nil {
		return 0, 0, fmt.Errorf("failed to rename tmp file: %s -> %s: %v", f.Name(), filename, err)
	}

	return before, len(features), nil
}
