package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working directories.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`
}

// Carrier describes the dual-channel MP4 produced or consumed.
type Carrier struct {
	// ChannelMode is "color-left" or "alpha-left" for produced carriers.
	ChannelMode string `toml:"channel_mode"`
	// MatteSide is "auto", "left" or "right" when reading carriers.
	MatteSide string `toml:"matte_side"`
	// Width and Height are the single-half output size; 0 keeps the source.
	Width  int     `toml:"width"`
	Height int     `toml:"height"`
	FPS    float64 `toml:"fps"`
	// Quality is 0-100 and maps onto the encoder CRF.
	Quality int    `toml:"quality"`
	Preset  string `toml:"preset"`
	Muted   bool   `toml:"muted"`
}

// Pool sizes the compositing worker pool.
type Pool struct {
	MinWorkers        int `toml:"min_workers"`
	MaxWorkers        int `toml:"max_workers"`
	MaxTasksPerWorker int `toml:"max_tasks_per_worker"`
	IdleTimeoutMS     int `toml:"idle_timeout_ms"`
	SweepIntervalMS   int `toml:"sweep_interval_ms"`
	// TaskTimeoutMS bounds a single block task; 0 disables the limit.
	TaskTimeoutMS int `toml:"task_timeout_ms"`
	BlockSize     int `toml:"block_size"`
	// FrameWindow is the number of frames composited concurrently.
	FrameWindow int `toml:"frame_window"`
	// MaxPooledMiB caps the size of buffers kept for reuse.
	MaxPooledMiB int `toml:"max_pooled_mib"`
}

// Container controls the animation container output.
type Container struct {
	Compression      string `toml:"compression"`
	CompressionLevel int    `toml:"compression_level"`
	PNGCompression   string `toml:"png_compression"`
	EmbedAudio       bool   `toml:"embed_audio"`
	FrameSprites     bool   `toml:"frame_sprites"`
	MaxDecodedMiB    int    `toml:"max_decoded_mib"`
}

// FFmpeg locates the external video tools.
type FFmpeg struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	ProbeTimeoutS  int    `toml:"probe_timeout_seconds"`
	HardwareDecode bool   `toml:"hardware_decode"`
}

// Jobs controls the run ledger.
type Jobs struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	File          bool   `toml:"file"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for alphapack.
//
// Configuration sections by subsystem:
//   - Paths: scratch, log and state directories
//   - Carrier: dual-channel MP4 layout and encode quality
//   - Pool: worker pool sizing and block compositing
//   - Container: compression and embedded assets
//   - FFmpeg: external tool locations
//   - Jobs: sqlite run ledger
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Carrier   Carrier   `toml:"carrier"`
	Pool      Pool      `toml:"pool"`
	Container Container `toml:"container"`
	FFmpeg    FFmpeg    `toml:"ffmpeg"`
	Jobs      Jobs      `toml:"jobs"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work, log and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for frame IO.
func (c *Config) FFmpegBinary() string {
	return c.FFmpeg.FFmpegBinary
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return c.FFmpeg.FFprobeBinary
}

// ProbeTimeout bounds a single ffprobe call.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.FFmpeg.ProbeTimeoutS) * time.Second
}

// JobsDBPath is the sqlite ledger location.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// LogFilePath is the log file written when logging.file is enabled.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "alphapack.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "alphapack")
	}
	return "~/.local/state/alphapack"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
