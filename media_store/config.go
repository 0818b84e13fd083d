package media_store

import (
	"errors"
	"fmt"
)

type Config struct {
	Dir         string `koanf:"dir"`
	URL         string `koanf:"url"`
	MaxUploadMB int    `koanf:"max_upload_mb"`
}

func (cfg *Config) Validate() error {
	if cfg.Dir == "" {
		return errors.New("media.dir must be set")
	}
	if cfg.URL == "" {
		return errors.New("media.url must be set")
	}
	if cfg.MaxUploadMB <= 0 {
		return fmt.Errorf("media.max_upload_mb must be positive, got %d", cfg.MaxUploadMB)
	}
	return nil
}
