package webhook_sender

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type SettingsConfig struct {
	FlushIntervalSeconds int `koanf:"flush_interval_seconds"`
	TimeoutSeconds       int `koanf:"timeout_seconds"`
}

func (cfg SettingsConfig) FlushInterval() time.Duration {
	return time.Second * time.Duration(cfg.FlushIntervalSeconds)
}

func (cfg SettingsConfig) Timeout() time.Duration {
	return time.Second * time.Duration(cfg.TimeoutSeconds)
}

func (cfg SettingsConfig) Validate() error {
	if sec := cfg.FlushIntervalSeconds; sec < 1 {
		return fmt.Errorf("webhooks flush_interval_seconds should be at least 1, not %d", sec)
	}
	if sec := cfg.TimeoutSeconds; sec < 0 {
		return fmt.Errorf("webhooks timeout_seconds cannot be negative, got %d", sec)
	}
	return nil
}

type WebhookConfig struct {
	Url string `koanf:"url"`
	// only alerts touching one of these zone types are sent. empty means all.
	ZoneTypes []string `koanf:"zone_types"`
	// "Key:Value" strings
	Headers []string `koanf:"headers"`
}

func (cfg *WebhookConfig) HeadersAsMap() map[string]string {
	headerMap := make(map[string]string)
	for _, header := range cfg.Headers {
		k, v, ok := strings.Cut(header, ":")
		if ok && strings.TrimSpace(k) != "" {
			headerMap[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return headerMap
}

func (cfg *WebhookConfig) Validate() error {
	u, err := url.Parse(cfg.Url)
	if err != nil {
		return fmt.Errorf("webhook url '%s' is not valid: %w", cfg.Url, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url '%s' must be http or https", cfg.Url)
	}
	for _, header := range cfg.Headers {
		if !strings.Contains(header, ":") {
			return fmt.Errorf("webhook header '%s' should look like 'Key:Value'", header)
		}
	}
	return nil
}

type WebhooksConfig []WebhookConfig

func (cfg WebhooksConfig) Validate() error {
	for _, webhookCfg := range cfg {
		if err := webhookCfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}
