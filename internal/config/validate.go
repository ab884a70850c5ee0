package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateGarmin(&cfg.GarminConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)

	return errors.Join(errs...)
}

func validateGarmin(g *GarminConfig) []error {
	var errs []error

	errs = append(errs, validateURL("base_url", g.BaseURL)...)
	errs = append(errs, validateURL("token_url", g.TokenURL)...)

	if g.ClientID == "" {
		errs = append(errs, errors.New("client_id: must not be empty"))
	}

	if g.UserAgent == "" {
		errs = append(errs, errors.New("user_agent: must not be empty"))
	}

	return errs
}

func validateURL(key, raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", key, err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("%s: must be an http or https URL, got %q", key, raw)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("%s: missing host in %q", key, raw)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return []error{fmt.Errorf("timeout: invalid duration %q: %w", n.Timeout, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("timeout: must not be negative, got %s", n.Timeout)}
	}

	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogging(l *LoggingConfig) []error {
	if !validLogLevels[l.LogLevel] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel)}
	}

	return nil
}
