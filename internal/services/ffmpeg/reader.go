package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"alphapack/internal/services"
)

// ReaderOptions configures a decode pipe.
type ReaderOptions struct {
	Binary string
	Input  string
	// Width and Height are the decoded frame size. When they differ from the
	// source, ffmpeg scales.
	Width  int
	Height int
	// Scale requests a scale filter to Width×Height.
	Scale bool
	// FPS resamples the stream when positive.
	FPS            float64
	HardwareDecode bool
}

// FrameReader yields consecutive packed RGBA frames.
type FrameReader struct {
	ctx       context.Context
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    *tailBuffer
	frameSize int
	width     int
	height    int
	next      uint32
	closed    bool
}

// OpenFrames starts ffmpeg decoding opts.Input into RGBA frames.
func OpenFrames(ctx context.Context, opts ReaderOptions) (*FrameReader, error) {
	if opts.Input == "" {
		return nil, services.Wrap(services.ErrValidation, "decode", "open", "empty input path", nil)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, services.Wrap(services.ErrValidation, "decode", "open",
			fmt.Sprintf("invalid frame size %dx%d", opts.Width, opts.Height), nil)
	}

	cmd := exec.CommandContext(ctx, binaryOrDefault(opts.Binary), readerArgs(opts)...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "decode", "start", "launch ffmpeg", err)
	}
	return &FrameReader{
		ctx:       ctx,
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		frameSize: opts.Width * opts.Height * 4,
		width:     opts.Width,
		height:    opts.Height,
	}, nil
}

func readerArgs(opts ReaderOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if opts.HardwareDecode {
		args = append(args, "-hwaccel", "auto")
	}
	args = append(args, "-i", opts.Input, "-an", "-sn", "-dn")
	var filters []string
	if opts.FPS > 0 {
		filters = append(filters, "fps="+strconv.FormatFloat(opts.FPS, 'f', -1, 64))
	}
	if opts.Scale {
		filters = append(filters, fmt.Sprintf("scale=%d:%d:flags=bicubic", opts.Width, opts.Height))
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	return append(args, "-f", "rawvideo", "-pix_fmt", "rgba", "-")
}

// FrameSize is the byte length of one frame.
func (r *FrameReader) FrameSize() int { return r.frameSize }

// Width returns the decoded frame width.
func (r *FrameReader) Width() int { return r.width }

// Height returns the decoded frame height.
func (r *FrameReader) Height() int { return r.height }

// Next fills dst with the next frame and returns its index. It returns
// io.EOF once the stream ends on a frame boundary.
func (r *FrameReader) Next(dst []byte) (uint32, error) {
	if r.closed {
		return 0, io.EOF
	}
	if len(dst) < r.frameSize {
		return 0, services.Wrap(services.ErrValidation, "decode", "read",
			fmt.Sprintf("frame buffer %d smaller than %d", len(dst), r.frameSize), nil)
	}
	if _, err := io.ReadFull(r.stdout, dst[:r.frameSize]); err != nil {
		if errors.Is(err, io.EOF) {
			if waitErr := r.wait(); waitErr != nil {
				return 0, waitErr
			}
			return 0, io.EOF
		}
		waitErr := r.wait()
		if errors.Is(err, io.ErrUnexpectedEOF) && waitErr == nil {
			return 0, services.Wrap(services.ErrDecode, "decode", "read",
				fmt.Sprintf("truncated frame %d", r.next), err)
		}
		if waitErr != nil {
			return 0, waitErr
		}
		return 0, fmt.Errorf("read frame %d: %w", r.next, err)
	}
	idx := r.next
	r.next++
	return idx, nil
}

// Skip discards n frames.
func (r *FrameReader) Skip(n int, scratch []byte) error {
	for range n {
		if _, err := r.Next(scratch); err != nil {
			return err
		}
	}
	return nil
}

func (r *FrameReader) wait() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return classify(r.ctx, "decode", "wait", r.stderr, r.cmd.Wait())
}

// Close stops the decoder. Closing before the stream ends is not an error.
func (r *FrameReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	_ = r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.cmd.Wait()
	return nil
}
