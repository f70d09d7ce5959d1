package sharedptr

import "log/slog"

// PoolOption configures a Pool.
type PoolOption func(*poolConfig)

type poolConfig struct {
	name          string
	zeroOnRelease bool
	enableDebug   bool
	logger        *slog.Logger
}

func defaultPoolConfig() poolConfig {
	return poolConfig{
		name:          "pool",
		zeroOnRelease: true,
		enableDebug:   false,
		logger:        nil,
	}
}

// WithName sets the name used in errors, logs and stats.
func WithName(name string) PoolOption {
	return func(c *poolConfig) {
		c.name = name
	}
}

// WithLogger sets a structured logger for watermark, capacity and leak events.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(c *poolConfig) {
		c.logger = logger
	}
}

// WithDebug records the allocation stack of every outstanding object so that
// leaks reported by Close can be traced back to their origin.
func WithDebug() PoolOption {
	return func(c *poolConfig) {
		c.enableDebug = true
	}
}

// WithZeroOnRelease controls whether a released slot is reset to the zero
// value of T. It is on by default so that the GC can reclaim anything the
// previous occupant referenced; turn it off only for pointer-free types whose
// initializer overwrites every field.
func WithZeroOnRelease(enabled bool) PoolOption {
	return func(c *poolConfig) {
		c.zeroOnRelease = enabled
	}
}
