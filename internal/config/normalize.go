package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCarrier()
	c.normalizePool()
	c.normalizeContainer()
	c.normalizeFFmpeg()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCarrier() {
	c.Carrier.ChannelMode = strings.ToLower(strings.TrimSpace(c.Carrier.ChannelMode))
	if c.Carrier.ChannelMode == "" {
		c.Carrier.ChannelMode = defaultChannelMode
	}
	c.Carrier.MatteSide = strings.ToLower(strings.TrimSpace(c.Carrier.MatteSide))
	if c.Carrier.MatteSide == "" {
		c.Carrier.MatteSide = defaultMatteSide
	}
	c.Carrier.Preset = strings.ToLower(strings.TrimSpace(c.Carrier.Preset))
	if c.Carrier.Preset == "" {
		c.Carrier.Preset = defaultPreset
	}
}

func (c *Config) normalizePool() {
	if c.Pool.MaxWorkers <= 0 {
		c.Pool.MaxWorkers = max(1, runtime.NumCPU())
	}
	if c.Pool.MinWorkers <= 0 {
		c.Pool.MinWorkers = 1
	}
	if c.Pool.MaxTasksPerWorker <= 0 {
		c.Pool.MaxTasksPerWorker = defaultMaxTasksPerWorker
	}
	if c.Pool.IdleTimeoutMS <= 0 {
		c.Pool.IdleTimeoutMS = defaultIdleTimeoutMS
	}
	if c.Pool.SweepIntervalMS <= 0 {
		c.Pool.SweepIntervalMS = defaultSweepIntervalMS
	}
	if c.Pool.BlockSize <= 0 {
		c.Pool.BlockSize = defaultBlockSize
	}
	if c.Pool.FrameWindow <= 0 {
		c.Pool.FrameWindow = defaultFrameWindow
	}
	if c.Pool.MaxPooledMiB <= 0 {
		c.Pool.MaxPooledMiB = defaultMaxPooledMiB
	}
}

func (c *Config) normalizeContainer() {
	c.Container.Compression = strings.ToLower(strings.TrimSpace(c.Container.Compression))
	if c.Container.Compression == "" {
		c.Container.Compression = defaultCompression
	}
	c.Container.PNGCompression = strings.ToLower(strings.TrimSpace(c.Container.PNGCompression))
	if c.Container.PNGCompression == "" {
		c.Container.PNGCompression = defaultPNGCompression
	}
	if c.Container.MaxDecodedMiB <= 0 {
		c.Container.MaxDecodedMiB = defaultMaxDecodedMiB
	}
}

func (c *Config) normalizeFFmpeg() {
	if value, ok := os.LookupEnv("ALPHAPACK_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		c.FFmpeg.FFmpegBinary = value
	}
	if value, ok := os.LookupEnv("ALPHAPACK_FFPROBE"); ok && strings.TrimSpace(value) != "" {
		c.FFmpeg.FFprobeBinary = value
	}
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	if c.FFmpeg.ProbeTimeoutS <= 0 {
		c.FFmpeg.ProbeTimeoutS = defaultProbeTimeoutS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Jobs.RetentionDays < 0 {
		c.Jobs.RetentionDays = 0
	}
}
