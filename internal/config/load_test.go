package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/fitupload/internal/garmin"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
base_url = "http://localhost:8080"
token_url = "http://localhost:8080/oauth/token"
client_id = "my-client"
user_agent = "tester/1.0"
timeout = "30s"
log_level = "debug"
history_db = "/var/lib/fitupload/history.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "http://localhost:8080/oauth/token", cfg.TokenURL)
	assert.Equal(t, "my-client", cfg.ClientID)
	assert.Equal(t, "tester/1.0", cfg.UserAgent)
	assert.Equal(t, "30s", cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/lib/fitupload/history.db", cfg.HistoryDB)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `log_level = "warn"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, garmin.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, garmin.DefaultTokenURL, cfg.TokenURL)
	assert.Equal(t, "2m", cfg.Timeout)
	assert.Empty(t, cfg.HistoryDB)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `log_level = `)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_InvalidValue(t *testing.T) {
	path := writeTestConfig(t, `timeout = "soon"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Contains(t, err.Error(), "timeout")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_FileThenEnvThenCLI(t *testing.T) {
	path := writeTestConfig(t, `history_db = "/from/file.db"`)

	r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, path, r.Path)
	assert.Equal(t, "/from/file.db", r.HistoryDB)

	r, err = Resolve(EnvOverrides{ConfigPath: path, HistoryDB: "/from/env.db"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", r.HistoryDB)

	cli := "/from/cli.db"
	r, err = Resolve(EnvOverrides{ConfigPath: path, HistoryDB: "/from/env.db"}, CLIOverrides{HistoryDB: &cli})
	require.NoError(t, err)
	assert.Equal(t, "/from/cli.db", r.HistoryDB)
}

func TestResolve_CLIEmptyHistoryDisables(t *testing.T) {
	path := writeTestConfig(t, `history_db = "/from/file.db"`)
	empty := ""

	r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{HistoryDB: &empty})
	require.NoError(t, err)
	assert.Empty(t, r.HistoryDB)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, `log_level = "warn"`)
	cliPath := writeTestConfig(t, `log_level = "error"`)

	r, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, cliPath, r.Path)
	assert.Equal(t, "error", r.LogLevel)
}

func TestResolve_ExpandsTildeInHistoryDB(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cli := "~/fit/history.db"
	r, err := Resolve(EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")}, CLIOverrides{HistoryDB: &cli})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "fit", "history.db"), r.HistoryDB)
}

func TestResolve_InvalidFile(t *testing.T) {
	path := writeTestConfig(t, `log_level = "loud"`)

	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.Error(t, err)
}

func TestHTTPTimeout(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Minute, cfg.HTTPTimeout())

	cfg.Timeout = "0"
	assert.Zero(t, cfg.HTTPTimeout())
}
