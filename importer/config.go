package importer

import (
	"errors"
	"path/filepath"
)

const DEFAULT_ZONES_FILE = "static/geojson/enaire_uas_zones_example.geojson"

type Config struct {
	// GeoJSON file used when no -file is given
	DefaultFile string `koanf:"default_file"`
	// don't empty the zones table before importing
	KeepExisting bool `koanf:"keep_existing"`
	// number of zones generated by the demo source
	DemoCount int `koanf:"demo_count"`
}

func (cfg *Config) Validate() error {
	if cfg.DefaultFile == "" {
		return errors.New("zones.default_file must be set")
	}
	if cfg.DemoCount < 0 {
		return errors.New("zones.demo_count cannot be negative")
	}
	cfg.DefaultFile = filepath.Clean(cfg.DefaultFile)
	return nil
}
