package config

import "runtime"

const (
	defaultConfigPath        = "~/.config/alphapack/config.toml"
	projectConfigName        = "alphapack.toml"
	defaultWorkDir           = "~/.cache/alphapack/work"
	defaultLogDir            = "~/.local/share/alphapack/logs"
	defaultChannelMode       = "color-left"
	defaultMatteSide         = "auto"
	defaultQuality           = 80
	defaultPreset            = "medium"
	defaultMaxTasksPerWorker = 1
	defaultIdleTimeoutMS     = 30_000
	defaultSweepIntervalMS   = 5_000
	defaultBlockSize         = 128
	defaultFrameWindow       = 4
	defaultMaxPooledMiB      = 50
	defaultCompression       = "zlib"
	defaultPNGCompression    = "default"
	defaultMaxDecodedMiB     = 1024
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFprobeBinary     = "ffprobe"
	defaultProbeTimeoutS     = 30
	defaultJobsRetentionDays = 30
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir(),
		},
		Carrier: Carrier{
			ChannelMode: defaultChannelMode,
			MatteSide:   defaultMatteSide,
			Quality:     defaultQuality,
			Preset:      defaultPreset,
		},
		Pool: Pool{
			MinWorkers:        1,
			MaxWorkers:        max(1, runtime.NumCPU()),
			MaxTasksPerWorker: defaultMaxTasksPerWorker,
			IdleTimeoutMS:     defaultIdleTimeoutMS,
			SweepIntervalMS:   defaultSweepIntervalMS,
			BlockSize:         defaultBlockSize,
			FrameWindow:       defaultFrameWindow,
			MaxPooledMiB:      defaultMaxPooledMiB,
		},
		Container: Container{
			Compression:    defaultCompression,
			PNGCompression: defaultPNGCompression,
			EmbedAudio:     true,
			FrameSprites:   true,
			MaxDecodedMiB:  defaultMaxDecodedMiB,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			ProbeTimeoutS: defaultProbeTimeoutS,
		},
		Jobs: Jobs{
			Enabled:       true,
			RetentionDays: defaultJobsRetentionDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
