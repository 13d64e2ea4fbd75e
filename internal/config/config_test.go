// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Browser.MinInterval)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.LockTTL)
	assert.Equal(t, 7, cfg.Hazard.WindowDays)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
}

func TestLoadEnvironmentOverridesSettingsFile(t *testing.T) {
	dir := t.TempDir()

	settingsPath := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(settingsPath, []byte(strings.Join([]string{
		"hazard:",
		"  csv_path: from-file.csv",
		"  window_days: 3",
		"gemini:",
		"  api_key: file-key",
	}, "\n")), 0o644))

	t.Setenv("HAZARD_WINDOW_DAYS", "14")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(settingsPath)
	require.NoError(t, err)

	assert.Equal(t, "from-file.csv", cfg.Hazard.CSVPath)
	assert.Equal(t, 14, cfg.Hazard.WindowDays)
	assert.Equal(t, "file-key", cfg.Gemini.APIKey)
	assert.NoError(t, cfg.RequireGemini())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	_, err := Load("")
	assert.Error(t, err)
}

func TestRequireGemini(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.RequireGemini(), ErrMissingGeminiKey)
}

func TestSQLiteDSN(t *testing.T) {
	d := DatabaseConfig{Driver: DriverSQLite, Path: "data/products.db"}

	dsn := d.DSN()
	assert.True(t, strings.HasPrefix(dsn, "data/products.db?"))
	assert.Contains(t, dsn, "foreign_keys%281%29")
	assert.Contains(t, dsn, "_time_format=sqlite")
}

func TestPostgresDSN(t *testing.T) {
	d := DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     "db",
		Port:     "5432",
		User:     "pm",
		Password: "secret",
		Database: "pricematch",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5432 user=pm password=secret dbname=pricematch sslmode=disable", d.DSN())

	d.RawDSN = "postgres://elsewhere"
	assert.Equal(t, "postgres://elsewhere", d.DSN())
}
