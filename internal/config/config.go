// SPDX-License-Identifier: MIT

// Package config loads daemon configuration with ENV > file > defaults precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime knob of the daemon.
type Config struct {
	Listen    string `yaml:"listen"`
	DBPath    string `yaml:"dbPath"`
	JWTSecret string `yaml:"jwtSecret"`
	LogLevel  string `yaml:"logLevel"`

	// Decoder / ingest
	FFmpegBin   string `yaml:"ffmpegBin"`
	SDPPath     string `yaml:"sdpPath"`
	SDPPort     int    `yaml:"sdpPort"`
	FrameWidth  int    `yaml:"frameWidth"`
	FrameHeight int    `yaml:"frameHeight"`
	// LocalSource switches the worker to a local camera index or video file
	// instead of the network decoder. Empty means network mode.
	LocalSource string `yaml:"localSource"`

	// Recognition policy
	DetectEveryN        int     `yaml:"detectEveryN"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	// DetectorURL points at the external inference service.
	DetectorURL     string        `yaml:"detectorURL"`
	DetectorTimeout time.Duration `yaml:"detectorTimeout"`

	// Attendance policy
	FlushInterval        time.Duration `yaml:"flushInterval"`
	DeadlineSeconds      int           `yaml:"deadlineSeconds"`
	DeadlineAdjustWindow time.Duration `yaml:"deadlineAdjustWindow"`
	LateSightingUpdate   bool          `yaml:"lateSightingUpdate"`

	// Misc
	Timezone          string        `yaml:"timezone"`
	ViewerFPS         int           `yaml:"viewerFPS"`
	StopNotifyTimeout time.Duration `yaml:"stopNotifyTimeout"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:               ":8080",
		DBPath:               "presencia.db",
		LogLevel:             "info",
		FFmpegBin:            "ffmpeg",
		SDPPath:              "stream.sdp",
		SDPPort:              5000,
		FrameWidth:           960,
		FrameHeight:          540,
		DetectEveryN:         3,
		SimilarityThreshold:  0.5,
		DetectorURL:          "http://127.0.0.1:9090/detect",
		DetectorTimeout:      2 * time.Second,
		FlushInterval:        10 * time.Second,
		DeadlineSeconds:      600,
		DeadlineAdjustWindow: 300 * time.Second,
		LateSightingUpdate:   true,
		Timezone:             "Europe/Madrid",
		ViewerFPS:            25,
		StopNotifyTimeout:    5 * time.Second,
	}
}

// Load builds the effective configuration: defaults, overlaid by the optional
// YAML file at path, overlaid by PRESENCIA_* environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Listen = envString("PRESENCIA_LISTEN", cfg.Listen)
	cfg.DBPath = envString("PRESENCIA_DB", cfg.DBPath)
	cfg.JWTSecret = envString("PRESENCIA_JWT_SECRET", cfg.JWTSecret)
	cfg.LogLevel = envString("PRESENCIA_LOG_LEVEL", cfg.LogLevel)
	cfg.FFmpegBin = envString("PRESENCIA_FFMPEG", cfg.FFmpegBin)
	cfg.SDPPath = envString("PRESENCIA_SDP_PATH", cfg.SDPPath)
	cfg.SDPPort = envInt("PRESENCIA_SDP_PORT", cfg.SDPPort)
	cfg.FrameWidth = envInt("PRESENCIA_FRAME_WIDTH", cfg.FrameWidth)
	cfg.FrameHeight = envInt("PRESENCIA_FRAME_HEIGHT", cfg.FrameHeight)
	cfg.LocalSource = envString("PRESENCIA_LOCAL_SOURCE", cfg.LocalSource)
	cfg.DetectEveryN = envInt("PRESENCIA_DETECT_EVERY_N", cfg.DetectEveryN)
	cfg.SimilarityThreshold = envFloat("PRESENCIA_SIM_THRESHOLD", cfg.SimilarityThreshold)
	cfg.DetectorURL = envString("PRESENCIA_DETECTOR_URL", cfg.DetectorURL)
	cfg.DetectorTimeout = envDuration("PRESENCIA_DETECTOR_TIMEOUT", cfg.DetectorTimeout)
	cfg.FlushInterval = envDuration("PRESENCIA_FLUSH_INTERVAL", cfg.FlushInterval)
	cfg.DeadlineSeconds = envInt("PRESENCIA_DEADLINE_SECONDS", cfg.DeadlineSeconds)
	cfg.DeadlineAdjustWindow = envDuration("PRESENCIA_DEADLINE_ADJUST_WINDOW", cfg.DeadlineAdjustWindow)
	cfg.LateSightingUpdate = envBool("PRESENCIA_LATE_SIGHTING_UPDATE", cfg.LateSightingUpdate)
	cfg.Timezone = envString("PRESENCIA_TZ", cfg.Timezone)
	cfg.ViewerFPS = envInt("PRESENCIA_VIEWER_FPS", cfg.ViewerFPS)
	cfg.StopNotifyTimeout = envDuration("PRESENCIA_STOP_NOTIFY_TIMEOUT", cfg.StopNotifyTimeout)
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: PRESENCIA_JWT_SECRET is required")
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("config: invalid frame size %dx%d", c.FrameWidth, c.FrameHeight)
	}
	if c.DetectEveryN < 1 {
		return fmt.Errorf("config: detectEveryN must be >= 1, got %d", c.DetectEveryN)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("config: similarityThreshold must be in (0,1], got %g", c.SimilarityThreshold)
	}
	if c.FlushInterval <= 0 {
		return errors.New("config: flushInterval must be positive")
	}
	if c.DeadlineSeconds <= 0 {
		return errors.New("config: deadlineSeconds must be positive")
	}
	if strings.TrimSpace(c.DetectorURL) == "" {
		return errors.New("config: detectorURL is required")
	}
	if c.ViewerFPS < 1 {
		return fmt.Errorf("config: viewerFPS must be >= 1, got %d", c.ViewerFPS)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
