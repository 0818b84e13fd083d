package overpass

import (
	"errors"
	"fmt"
	"net/url"
)

type Config struct {
	Url            string `koanf:"url"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	// retries after "timeout" or "duplicate_query" replies
	MaxRetries int `koanf:"max_retries"`
}

func (cfg *Config) Validate() error {
	if cfg.Url == "" {
		return errors.New("no overpass url configured")
	}
	if _, err := url.Parse(cfg.Url); err != nil {
		return fmt.Errorf("overpass.url is not valid: %w", err)
	}
	if cfg.TimeoutSeconds < 0 {
		return errors.New("overpass.timeout_seconds must not be negative")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("overpass.max_retries must not be negative")
	}
	return nil
}
