package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "FITUPLOAD_CONFIG"
	EnvHistory = "FITUPLOAD_HISTORY"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // FITUPLOAD_CONFIG: override config file path
	HistoryDB  string // FITUPLOAD_HISTORY: history database path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		HistoryDB:  os.Getenv(EnvHistory),
	}
}
