// internal/logger/logger_test.go
package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricematch/pricematch/internal/config"
)

func TestConfigureWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pricematch.log")

	l := logrus.New()
	require.NoError(t, Configure(l, config.LogConfig{Level: "debug", Format: "json", File: path, MaxSizeMB: 1}))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("brand", "nowfoods").Info("crawl finished")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"crawl finished"`)
	assert.Contains(t, string(data), `"brand":"nowfoods"`)
}

func TestConfigureFallsBackToInfo(t *testing.T) {
	l := logrus.New()
	require.NoError(t, Configure(l, config.LogConfig{Level: "loud", Format: "text"}))
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Configure(logrus.New(), config.LogConfig{Level: "info", Format: "xml"}))
}
