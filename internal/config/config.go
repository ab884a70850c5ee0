// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for fitupload. Values resolve through a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags.
package config

// Config is the top-level configuration parsed from a TOML file. All keys
// are flat; the embedded structs only group them in code.
type Config struct {
	GarminConfig
	NetworkConfig
	LoggingConfig
	HistoryConfig
}

// GarminConfig selects the service endpoints and client identity.
type GarminConfig struct {
	BaseURL   string `toml:"base_url" json:"base_url"`
	TokenURL  string `toml:"token_url" json:"token_url"`
	ClientID  string `toml:"client_id" json:"client_id"`
	UserAgent string `toml:"user_agent" json:"user_agent"`
}

// NetworkConfig controls the HTTP client. A timeout of "0" disables it.
type NetworkConfig struct {
	Timeout string `toml:"timeout" json:"timeout"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	LogLevel string `toml:"log_level" json:"log_level"`
}

// HistoryConfig enables the upload ledger. An empty path disables it.
type HistoryConfig struct {
	HistoryDB string `toml:"history_db" json:"history_db"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value": --history="" turns the ledger
// off even when the config file enables it.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	HistoryDB  *string // --history flag
}

// Resolved is the effective configuration after all override layers.
type Resolved struct {
	Config
	// Path is the config file that was consulted (it may not exist).
	Path string `json:"config_path"`
}
