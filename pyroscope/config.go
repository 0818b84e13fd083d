package pyroscope

import "errors"

type Config struct {
	ApplicationName      string `koanf:"application_name"`
	ServerAddress        string `koanf:"server_address"`
	ApiKey               string `koanf:"api_key"`
	MutexProfileFraction int    `koanf:"mutex_profile_fraction"`
	BlockProfileRate     int    `koanf:"block_profile_rate"`
}

func (cfg *Config) Enabled() bool {
	return cfg.ServerAddress != ""
}

func (cfg *Config) Validate() error {
	if cfg.Enabled() && cfg.ApplicationName == "" {
		return errors.New("pyroscope.application_name must be set when server_address is")
	}
	return nil
}
