// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PRESENCIA_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 960, cfg.FrameWidth)
	assert.Equal(t, 540, cfg.FrameHeight)
	assert.Equal(t, 3, cfg.DetectEveryN)
	assert.Equal(t, 0.5, cfg.SimilarityThreshold)
	assert.Equal(t, 10*time.Second, cfg.FlushInterval)
	assert.Equal(t, 600, cfg.DeadlineSeconds)
	assert.Equal(t, "Europe/Madrid", cfg.Timezone)
	assert.True(t, cfg.LateSightingUpdate)
}

func TestLoadMissingSecret(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRESENCIA_JWT_SECRET")
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presencia.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9999\"\nframeWidth: 640\nframeHeight: 480\njwtSecret: from-file\n"), 0o600))

	t.Setenv("PRESENCIA_LISTEN", ":7777")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Listen, "env wins over file")
	assert.Equal(t, 640, cfg.FrameWidth, "file wins over defaults")
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.FrameWidth = 0 }},
		{"negative detect cadence", func(c *Config) { c.DetectEveryN = 0 }},
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"zero flush interval", func(c *Config) { c.FlushInterval = 0 }},
		{"zero deadline", func(c *Config) { c.DeadlineSeconds = 0 }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"empty detector url", func(c *Config) { c.DetectorURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.JWTSecret = "x"
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
