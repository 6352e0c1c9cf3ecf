// Package config handles qmtool configuration loading and management.
package config

import (
	"fmt"
	"time"

	"github.com/Faultbox/qmesh/pkg/qmesh"
)

// Config holds all qmtool settings.
type Config struct {
	Decoder DecoderConfig `yaml:"decoder"`
	Batch   BatchConfig   `yaml:"batch"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// DecoderConfig holds tile decoding settings.
type DecoderConfig struct {
	HeaderSize   int    `yaml:"header_size"`
	Compression  string `yaml:"compression"` // auto, gzip, zlib, deflate, none
	MaxTileBytes int64  `yaml:"max_tile_bytes"`
}

// BatchConfig holds settings for decoding many tiles at once.
type BatchConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"` // per tile, 0 = none
}

// CacheConfig holds decoded-tile cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"` // number of tiles
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Output string `yaml:"output"` // file to write Prometheus text format to, empty = off
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Decoder: DecoderConfig{
			HeaderSize:   qmesh.HeaderSize,
			Compression:  "auto",
			MaxTileBytes: qmesh.DefaultMaxTileBytes,
		},
		Batch: BatchConfig{
			Workers: 4,
			Timeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    256,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Options converts the decoder settings to qmesh options.
func (c DecoderConfig) Options() (qmesh.Options, error) {
	comp, err := qmesh.ParseCompression(c.Compression)
	if err != nil {
		return qmesh.Options{}, fmt.Errorf("decoder config: %w", err)
	}
	return qmesh.Options{
		HeaderSize:   c.HeaderSize,
		Compression:  comp,
		MaxTileBytes: c.MaxTileBytes,
	}, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := c.Decoder.Options(); err != nil {
		return err
	}
	if c.Decoder.HeaderSize < 0 {
		return fmt.Errorf("decoder config: negative header_size %d", c.Decoder.HeaderSize)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch config: workers must be at least 1, got %d", c.Batch.Workers)
	}
	if c.Cache.Enabled && c.Cache.Size < 1 {
		return fmt.Errorf("cache config: size must be at least 1, got %d", c.Cache.Size)
	}
	return nil
}
