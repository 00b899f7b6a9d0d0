package ffmpeg

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"alphapack/internal/services"
	"alphapack/internal/testsupport"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg scripts need /bin/sh")
	}
}

func TestFrameReaderReadsWholeFrames(t *testing.T) {
	skipWithoutShell(t)
	// Two 2x2 RGBA frames.
	bin := testsupport.WriteScript(t, filepath.Join(t.TempDir(), "ffmpeg"), "head -c 32 /dev/zero\n")

	r, err := OpenFrames(context.Background(), ReaderOptions{Binary: bin, Input: "in.mp4", Width: 2, Height: 2})
	if err != nil {
		t.Fatalf("OpenFrames: %v", err)
	}
	defer r.Close()

	buf := make([]byte, r.FrameSize())
	for want := uint32(0); want < 2; want++ {
		idx, err := r.Next(buf)
		if err != nil {
			t.Fatalf("Next %d: %v", want, err)
		}
		if idx != want {
			t.Fatalf("frame index %d, want %d", idx, want)
		}
	}
	if _, err := r.Next(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestFrameReaderTruncatedFrame(t *testing.T) {
	skipWithoutShell(t)
	bin := testsupport.WriteScript(t, filepath.Join(t.TempDir(), "ffmpeg"), "head -c 20 /dev/zero\n")

	r, err := OpenFrames(context.Background(), ReaderOptions{Binary: bin, Input: "in.mp4", Width: 2, Height: 2})
	if err != nil {
		t.Fatalf("OpenFrames: %v", err)
	}
	defer r.Close()

	buf := make([]byte, r.FrameSize())
	if _, err := r.Next(buf); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if _, err := r.Next(buf); !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected ErrDecode for truncated frame, got %v", err)
	}
}

func TestFrameReaderReportsToolFailure(t *testing.T) {
	skipWithoutShell(t)
	bin := testsupport.WriteScript(t, filepath.Join(t.TempDir(), "ffmpeg"), "echo 'no such file' >&2\nexit 1\n")

	r, err := OpenFrames(context.Background(), ReaderOptions{Binary: bin, Input: "missing.mp4", Width: 2, Height: 2})
	if err != nil {
		t.Fatalf("OpenFrames: %v", err)
	}
	defer r.Close()

	_, err = r.Next(make([]byte, r.FrameSize()))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such file") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestOpenFramesValidates(t *testing.T) {
	if _, err := OpenFrames(context.Background(), ReaderOptions{Input: "x", Width: 0, Height: 2}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCarrierWriterStreamsFrames(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "carrier.mp4")
	// The last argument is the output path.
	bin := testsupport.WriteScript(t, filepath.Join(dir, "ffmpeg"), "for last; do :; done\ncat > \"$last\"\n")

	w, err := CreateCarrier(context.Background(), WriterOptions{Binary: bin, Output: out, Width: 4, Height: 2, FPS: 30, Quality: 80})
	if err != nil {
		t.Fatalf("CreateCarrier: %v", err)
	}
	frame := make([]byte, 4*2*3)
	for range 3 {
		if err := w.WriteFrame(frame); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := w.WriteFrame(frame[:5]); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected size validation error, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.Frames() != 3 {
		t.Fatalf("expected 3 frames, got %d", w.Frames())
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() != int64(3*len(frame)) {
		t.Fatalf("expected %d bytes piped, got %d", 3*len(frame), info.Size())
	}
}

func TestWriterArgs(t *testing.T) {
	args := writerArgs(WriterOptions{Output: "o.mp4", Width: 512, Height: 256, FPS: 29.97, Quality: 100, AudioPath: "a.mp3"})
	joined := strings.Join(args, " ")
	for _, want := range []string{"-s 512x256", "-r 29.97", "-crf 10", "-i a.mp3", "-c:a aac", "-pix_fmt yuv420p"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
	if args[len(args)-1] != "o.mp4" {
		t.Fatalf("output must be last, got %q", args[len(args)-1])
	}
	muted := writerArgs(WriterOptions{Output: "o.mp4", Width: 2, Height: 2, FPS: 1})
	if !slices.Contains(muted, "-an") {
		t.Fatalf("expected -an without audio: %v", muted)
	}
	if strings.Contains(strings.Join(muted, " "), "scale=") {
		t.Fatalf("unexpected scale filter: %v", muted)
	}

	scaled := strings.Join(writerArgs(WriterOptions{Output: "o.mp4", Width: 200, Height: 50, OutputWidth: 100, OutputHeight: 26, FPS: 1}), " ")
	if !strings.Contains(scaled, "-vf scale=100:26:flags=bicubic,pad=") {
		t.Fatalf("expected scale before pad in %q", scaled)
	}
}

func TestCRFRange(t *testing.T) {
	if CRF(100) != 10 || CRF(0) != 40 || CRF(150) != 10 || CRF(-5) != 40 {
		t.Fatalf("unexpected CRF mapping: %d %d %d %d", CRF(100), CRF(0), CRF(150), CRF(-5))
	}
	if CRF(80) >= CRF(50) {
		t.Fatal("higher quality must lower CRF")
	}
}

func TestReaderArgs(t *testing.T) {
	args := readerArgs(ReaderOptions{Input: "in.mp4", Width: 640, Height: 360, Scale: true, FPS: 24, HardwareDecode: true})
	joined := strings.Join(args, " ")
	for _, want := range []string{"-hwaccel auto", "-vf fps=24,scale=640:360", "-pix_fmt rgba", "-f rawvideo"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
}

func TestAudioArgs(t *testing.T) {
	plain := strings.Join(audioArgs(AudioOptions{Input: "in.mp4", Output: "a.mp3"}), " ")
	if !strings.Contains(plain, "-map 0:a:0") || strings.Contains(plain, "filter_complex") {
		t.Fatalf("unexpected plain args: %q", plain)
	}
	filtered := strings.Join(audioArgs(AudioOptions{Input: "in.mp4", Output: "a.mp3", Filter: "[0:a]atempo=2[aout]"}), " ")
	if !strings.Contains(filtered, "-filter_complex [0:a]atempo=2[aout] -map [aout]") {
		t.Fatalf("unexpected filtered args: %q", filtered)
	}
}

func TestExtractAudioCancelled(t *testing.T) {
	skipWithoutShell(t)
	bin := testsupport.WriteScript(t, filepath.Join(t.TempDir(), "ffmpeg"), "sleep 5\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ExtractAudio(ctx, AudioOptions{Binary: bin, Input: "in.mp4", Output: filepath.Join(t.TempDir(), "a.mp3")})
	if !errors.Is(err, services.ErrUserCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
