package ffmpeg

import (
	"context"
	"os/exec"

	"alphapack/internal/media/audio"
	"alphapack/internal/services"
)

// AudioOptions configures ExtractAudio.
type AudioOptions struct {
	Binary string
	Input  string
	// Filter is a filter_complex graph writing [aout]; empty copies the
	// first audio stream as is.
	Filter string
	Output string
}

// ExtractAudio renders the input's audio track to an MP3 file.
func ExtractAudio(ctx context.Context, opts AudioOptions) error {
	if opts.Input == "" || opts.Output == "" {
		return services.Wrap(services.ErrValidation, "audio", "extract", "input and output paths are required", nil)
	}
	cmd := exec.CommandContext(ctx, binaryOrDefault(opts.Binary), audioArgs(opts)...) //nolint:gosec
	stderr := &tailBuffer{}
	cmd.Stdout = stderr
	cmd.Stderr = stderr
	return classify(ctx, "audio", "extract", stderr, cmd.Run())
}

func audioArgs(opts AudioOptions) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-nostdin", "-i", opts.Input, "-vn", "-sn", "-dn"}
	if opts.Filter != "" {
		args = append(args, "-filter_complex", opts.Filter, "-map", "["+audio.OutputLabel+"]")
	} else {
		args = append(args, "-map", "0:a:0")
	}
	return append(args, "-c:a", "libmp3lame", "-q:a", "2", opts.Output)
}
