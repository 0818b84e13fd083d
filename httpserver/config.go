package httpserver

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Addr string `koanf:"addr"`
	// public origin used for absolute media urls, e.g. "https://skylog.example.org".
	// empty means the request's own host.
	BaseURL                string `koanf:"base_url"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

func (cfg *Config) ShutdownTimeout() time.Duration {
	if cfg.ShutdownTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
}

func (cfg *Config) Validate() error {
	if cfg.Addr == "" {
		return errors.New("no http addr configured")
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return fmt.Errorf("http.base_url is not valid: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("http.base_url '%s' needs a scheme and host", cfg.BaseURL)
		}
	}
	return nil
}
