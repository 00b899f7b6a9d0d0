package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"alphapack/internal/container"
	"alphapack/internal/fileutil"
	"alphapack/internal/jobs"
	"alphapack/internal/logging"
	"alphapack/internal/services"
)

// UnpackRequest names a container and the directory to extract it into.
type UnpackRequest struct {
	Input     string
	OutputDir string
}

// UnpackResult lists what Unpack wrote.
type UnpackResult struct {
	JobID  string
	Dir    string
	Frames int
	Images []string
	Audios []string
	Bytes  int64
}

// Unpack writes every embedded image as <key>.png and every audio clip as
// <key>.mp3 under OutputDir.
func (r *Runtime) Unpack(ctx context.Context, req UnpackRequest) (*UnpackResult, error) {
	started := time.Now()
	ctx, rn := r.beginRun(ctx, jobs.KindUnpack, req.Input, req.OutputDir)
	result, err := r.unpack(ctx, rn, req)
	var written int64
	if result != nil {
		result.JobID = rn.id
		written = result.Bytes
	}
	rn.finish(ctx, written, err, started)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runtime) unpack(ctx context.Context, rn *run, req UnpackRequest) (*UnpackResult, error) {
	if req.Input == "" || req.OutputDir == "" {
		return nil, services.Wrap(services.ErrValidation, "unpack", "request", "input and output paths are required", nil)
	}
	rn.enterStage(ctx, "decode", 0)
	doc, err := container.ReadFile(req.Input, container.WithMaxDecodedSize(int64(r.cfg.Container.MaxDecodedMiB)<<20))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	total := doc.Images.Len() + len(doc.Audios)
	writeCtx := rn.enterStage(ctx, "extract", total)
	result := &UnpackResult{Dir: req.OutputDir, Frames: int(doc.FrameCount)}
	done := 0
	write := func(name string, data []byte) (string, error) {
		if err := writeCtx.Err(); err != nil {
			return "", services.Wrap(services.ErrUserCancelled, "unpack", "extract", "stopped", err)
		}
		path := filepath.Join(req.OutputDir, name)
		if err := fileutil.WriteAtomic(path, data, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		result.Bytes += int64(len(data))
		done++
		rn.progress(writeCtx, done, total)
		return path, nil
	}

	for key, data := range doc.Images.All() {
		name, err := safeName(key)
		if err != nil {
			return nil, err
		}
		path, err := write(name+".png", data)
		if err != nil {
			return nil, err
		}
		result.Images = append(result.Images, path)
	}
	for _, clip := range doc.Audios {
		name, err := safeName(clip.Key)
		if err != nil {
			return nil, err
		}
		path, err := write(name+".mp3", clip.Data)
		if err != nil {
			return nil, err
		}
		result.Audios = append(result.Audios, path)
	}
	rn.logger.Info("container extracted",
		logging.Int("images", len(result.Images)),
		logging.Int("audios", len(result.Audios)),
		logging.Int64("bytes", result.Bytes),
	)
	return result, nil
}

// safeName rejects keys that would escape the output directory.
func safeName(key string) (string, error) {
	if key == "" || key == "." || key == ".." || filepath.Base(key) != key {
		return "", services.Wrap(services.ErrDecode, "unpack", "extract", fmt.Sprintf("unsafe entry name %q", key), nil)
	}
	return key, nil
}
