package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"

	"alphapack/internal/services"
)

// WriterOptions configures a carrier encode.
type WriterOptions struct {
	Binary string
	Output string
	// Width and Height are the full carrier frame size (both halves).
	Width  int
	Height int
	// OutputWidth and OutputHeight rescale the encoded stream when set.
	OutputWidth  int
	OutputHeight int
	FPS          float64
	// Quality is 0-100; see CRF.
	Quality int
	Preset  string
	// AudioPath is muxed as AAC when set.
	AudioPath string
}

// CarrierWriter accepts packed RGB frames in order and encodes them.
type CarrierWriter struct {
	ctx       context.Context
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    *tailBuffer
	frameSize int
	frames    int
	closed    bool
}

// CRF maps a 0-100 quality onto the x264 constant rate factor: 100 gives
// 10, 0 gives 40.
func CRF(quality int) int {
	quality = max(0, min(100, quality))
	return 40 - int(math.Round(float64(quality)*0.3))
}

// CreateCarrier starts ffmpeg encoding to opts.Output.
func CreateCarrier(ctx context.Context, opts WriterOptions) (*CarrierWriter, error) {
	if opts.Output == "" {
		return nil, services.Wrap(services.ErrValidation, "encode", "open", "empty output path", nil)
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return nil, services.Wrap(services.ErrValidation, "encode", "open",
			fmt.Sprintf("invalid carrier geometry %dx%d@%v", opts.Width, opts.Height, opts.FPS), nil)
	}

	cmd := exec.CommandContext(ctx, binaryOrDefault(opts.Binary), writerArgs(opts)...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin pipe: %w", err)
	}
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "encode", "start", "launch ffmpeg", err)
	}
	return &CarrierWriter{
		ctx:       ctx,
		cmd:       cmd,
		stdin:     stdin,
		stderr:    stderr,
		frameSize: opts.Width * opts.Height * 3,
	}, nil
}

func writerArgs(opts WriterOptions) []string {
	preset := opts.Preset
	if preset == "" {
		preset = "medium"
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-i", "-",
	}
	if opts.AudioPath != "" {
		args = append(args, "-i", opts.AudioPath, "-map", "0:v:0", "-map", "1:a:0", "-c:a", "aac", "-b:a", "192k", "-shortest")
	} else {
		args = append(args, "-an")
	}
	// yuv420p needs even dimensions.
	filter := "pad=ceil(iw/2)*2:ceil(ih/2)*2"
	if opts.OutputWidth > 0 && opts.OutputHeight > 0 &&
		(opts.OutputWidth != opts.Width || opts.OutputHeight != opts.Height) {
		filter = fmt.Sprintf("scale=%d:%d:flags=bicubic,%s", opts.OutputWidth, opts.OutputHeight, filter)
	}
	args = append(args,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(CRF(opts.Quality)),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		opts.Output,
	)
	return args
}

// WriteFrame encodes one frame. rgb must hold exactly one frame.
func (w *CarrierWriter) WriteFrame(rgb []byte) error {
	if w.closed {
		return services.Wrap(services.ErrValidation, "encode", "write", "writer closed", nil)
	}
	if len(rgb) != w.frameSize {
		return services.Wrap(services.ErrValidation, "encode", "write",
			fmt.Sprintf("frame is %d bytes, want %d", len(rgb), w.frameSize), nil)
	}
	if _, err := w.stdin.Write(rgb); err != nil {
		_ = w.stdin.Close()
		w.closed = true
		return classify(w.ctx, "encode", "write", w.stderr, firstErr(w.cmd.Wait(), err))
	}
	w.frames++
	return nil
}

// Frames reports how many frames were written.
func (w *CarrierWriter) Frames() int { return w.frames }

// Close flushes the encoder and waits for ffmpeg to exit.
func (w *CarrierWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	closeErr := w.stdin.Close()
	return classify(w.ctx, "encode", "finish", w.stderr, firstErr(w.cmd.Wait(), closeErr))
}

// Abort kills the encoder, leaving a partial output behind.
func (w *CarrierWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.stdin.Close()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.cmd.Wait()
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
