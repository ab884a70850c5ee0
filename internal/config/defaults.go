package config

import "github.com/tonimelisma/fitupload/internal/garmin"

// Default values for configuration options: layer 0 of the override chain.
const (
	defaultTimeout  = "2m"
	defaultLogLevel = "info"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset keys keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		GarminConfig: GarminConfig{
			BaseURL:   garmin.DefaultBaseURL,
			TokenURL:  garmin.DefaultTokenURL,
			ClientID:  garmin.DefaultClientID,
			UserAgent: garmin.DefaultUserAgent,
		},
		NetworkConfig: NetworkConfig{Timeout: defaultTimeout},
		LoggingConfig: LoggingConfig{LogLevel: defaultLogLevel},
	}
}
