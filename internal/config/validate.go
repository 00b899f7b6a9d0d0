package config

import (
	"errors"
	"fmt"

	"alphapack/internal/alphacodec"
	"alphapack/internal/container"
	"alphapack/internal/raster"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCarrier(); err != nil {
		return err
	}
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateContainer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCarrier() error {
	if _, err := alphacodec.ParseChannelMode(c.Carrier.ChannelMode); err != nil {
		return fmt.Errorf("carrier.channel_mode: %w", err)
	}
	if c.Carrier.MatteSide != "auto" {
		if _, err := alphacodec.ParseSide(c.Carrier.MatteSide); err != nil {
			return fmt.Errorf("carrier.matte_side must be auto, left or right: %w", err)
		}
	}
	if c.Carrier.Width < 0 || c.Carrier.Height < 0 {
		return errors.New("carrier.width and carrier.height must be non-negative")
	}
	if c.Carrier.FPS < 0 || c.Carrier.FPS > 240 {
		return errors.New("carrier.fps must be between 0 (source rate) and 240")
	}
	if c.Carrier.Quality < 0 || c.Carrier.Quality > 100 {
		return errors.New("carrier.quality must be between 0 and 100")
	}
	return nil
}

func (c *Config) validatePool() error {
	if c.Pool.MinWorkers > c.Pool.MaxWorkers {
		return fmt.Errorf("pool.min_workers (%d) must not exceed pool.max_workers (%d)", c.Pool.MinWorkers, c.Pool.MaxWorkers)
	}
	if c.Pool.MaxTasksPerWorker > 255 {
		return errors.New("pool.max_tasks_per_worker must be at most 255")
	}
	if c.Pool.TaskTimeoutMS < 0 {
		return errors.New("pool.task_timeout_ms must be non-negative")
	}
	if c.Pool.BlockSize < 8 {
		return errors.New("pool.block_size must be at least 8")
	}
	return nil
}

func (c *Config) validateContainer() error {
	if _, err := container.ParseCompression(c.Container.Compression); err != nil {
		return fmt.Errorf("container.compression: %w", err)
	}
	if _, err := container.NewCompressor(mustCompression(c.Container.Compression), c.Container.CompressionLevel); err != nil {
		return fmt.Errorf("container.compression_level: %w", err)
	}
	if _, err := raster.ParseLevel(c.Container.PNGCompression); err != nil {
		return fmt.Errorf("container.png_compression: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func mustCompression(value string) container.Compression {
	c, _ := container.ParseCompression(value)
	return c
}

// Settings accessors resolve the parsed enumerations; Validate guarantees
// they cannot fail on a loaded config.

// ChannelMode returns the parsed carrier channel mode.
func (c *Config) ChannelMode() alphacodec.ChannelMode {
	mode, _ := alphacodec.ParseChannelMode(c.Carrier.ChannelMode)
	return mode
}

// MatteSide returns the configured side and false when detection is automatic.
func (c *Config) MatteSide() (alphacodec.Side, bool) {
	if c.Carrier.MatteSide == "auto" {
		return alphacodec.Right, false
	}
	side, _ := alphacodec.ParseSide(c.Carrier.MatteSide)
	return side, true
}

// Compression returns the container compressor selection.
func (c *Config) Compression() container.Compression {
	return mustCompression(c.Container.Compression)
}

// PNGLevel returns the frame image compression level.
func (c *Config) PNGLevel() raster.Level {
	level, _ := raster.ParseLevel(c.Container.PNGCompression)
	return level
}
