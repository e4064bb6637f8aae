package renderer

import (
	"log/slog"

	"clearcolor/gfx"
)

// FrameCount is the number of swap chain buffers.
const FrameCount = 2

// Config holds the tunables of a Renderer. The zero value is not useful;
// start from DefaultConfig.
type Config struct {
	// SyncInterval is passed to Present. 1 waits for one vertical blank.
	SyncInterval uint32
	ClearColor   gfx.Color
	FeatureLevel gfx.FeatureLevel
	Format       gfx.Format
	// Logger overrides the package logger for this renderer.
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		SyncInterval: 1,
		ClearColor:   gfx.ColorTeal,
		FeatureLevel: gfx.FeatureLevel12_0,
		Format:       gfx.FormatR8G8B8A8UNorm,
	}
}

type Option func(*Config)

func WithSyncInterval(n uint32) Option {
	return func(c *Config) { c.SyncInterval = n }
}

func WithClearColor(col gfx.Color) Option {
	return func(c *Config) { c.ClearColor = col }
}

func WithFeatureLevel(l gfx.FeatureLevel) Option {
	return func(c *Config) { c.FeatureLevel = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
