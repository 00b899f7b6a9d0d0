package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"alphapack/internal/alphacodec"
	"alphapack/internal/bufpool"
	"alphapack/internal/compositor"
	"alphapack/internal/container"
	"alphapack/internal/fileutil"
	"alphapack/internal/jobs"
	"alphapack/internal/logging"
	"alphapack/internal/media/audio"
	"alphapack/internal/raster"
	"alphapack/internal/services"
	"alphapack/internal/services/ffmpeg"
	"alphapack/internal/speedremap"
	"alphapack/internal/staging"
)

// CarrierRequest names a container file or PNG directory and the carrier
// video to build from it.
type CarrierRequest struct {
	Input  string
	Output string
	Remap  *speedremap.Table
	// Audio overrides any audio embedded in the input.
	Audio string
}

// CarrierResult summarises a finished BuildCarrier.
type CarrierResult struct {
	JobID  string
	Output string
	// Width and Height are the single-half size of the encoded carrier.
	Width  int
	Height int
	FPS    float64
	Frames int
	Mode   string
	Audio  bool
	Bytes  int64
}

// frameSource yields encoded frame images by index.
type frameSource struct {
	count int
	fps   float64
	load  func(index int) ([]byte, error)
	audio []byte
}

// BuildCarrier composites straight-alpha frames into dual-channel frames,
// flattens them onto black and encodes them as an H.264 carrier video.
func (r *Runtime) BuildCarrier(ctx context.Context, req CarrierRequest) (*CarrierResult, error) {
	started := time.Now()
	ctx, rn := r.beginRun(ctx, jobs.KindCarrier, req.Input, req.Output)
	result, err := r.buildCarrier(ctx, rn, req)
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

func (r *Runtime) buildCarrier(ctx context.Context, rn *run, req CarrierRequest) (*CarrierResult, error) {
	if req.Input == "" || req.Output == "" {
		return nil, services.Wrap(services.ErrValidation, "carrier", "request", "input and output paths are required", nil)
	}
	loadCtx := rn.enterStage(ctx, "load", 0)
	source, err := r.openFrameSource(loadCtx, req.Input)
	if err != nil {
		return nil, err
	}
	first, err := source.load(0)
	if err != nil {
		return nil, err
	}
	_, width, height, err := raster.DecodePNG(first)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "carrier", "load", "frame 0 is not a PNG", err)
	}

	outFPS := r.cfg.Carrier.FPS
	if outFPS <= 0 {
		outFPS = source.fps
	}
	plan, err := planFrames(req.Remap, uint32(source.count), source.fps, outFPS)
	if err != nil {
		return nil, err
	}
	outWidth, outHeight := targetSize(width, height, r.cfg.Carrier.Width, r.cfg.Carrier.Height)
	mode := r.cfg.ChannelMode()
	rn.logger.Info("frames loaded",
		logging.Int("source_frames", source.count),
		logging.Int("width", width),
		logging.Int("height", height),
		logging.Float64("source_fps", source.fps),
		logging.Int("output_frames", len(plan.frameMap)),
		logging.String("channel_mode", mode.String()),
	)

	audioPath, cleanup, err := r.carrierAudio(ctx, rn, req, source, plan)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	encodeCtx := rn.enterStage(ctx, "encode", len(plan.frameMap))
	err = fileutil.WithLock(req.Output, func() error {
		return r.encodeCarrier(encodeCtx, rn, source, plan, ffmpeg.WriterOptions{
			Binary:       r.cfg.FFmpegBinary(),
			Output:       req.Output,
			Width:        width * 2,
			Height:       height,
			OutputWidth:  outWidth * 2,
			OutputHeight: outHeight,
			FPS:          outFPS,
			Quality:      r.cfg.Carrier.Quality,
			Preset:       r.cfg.Carrier.Preset,
			AudioPath:    audioPath,
		}, width, height)
	})
	if err != nil {
		_ = os.Remove(req.Output)
		return nil, err
	}

	info, err := os.Stat(req.Output)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "carrier", "verify", "encoder produced no output", err)
	}
	return &CarrierResult{
		Output: req.Output,
		Width:  outWidth,
		Height: outHeight,
		FPS:    outFPS,
		Frames: len(plan.frameMap),
		Mode:   mode.String(),
		Audio:  audioPath != "",
		Bytes:  info.Size(),
	}, nil
}

// openFrameSource accepts a directory of PNG frames or a container file.
func (r *Runtime) openFrameSource(ctx context.Context, input string) (*frameSource, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "carrier", "load", "input not readable", err)
	}
	if info.IsDir() {
		paths, err := raster.ListPNG(input)
		if err != nil {
			return nil, fmt.Errorf("list frames: %w", err)
		}
		if len(paths) == 0 {
			return nil, services.Wrap(services.ErrValidation, "carrier", "load", "directory holds no PNG frames", nil)
		}
		fps := r.cfg.Carrier.FPS
		if fps <= 0 {
			fps = defaultSequenceFPS
		}
		return &frameSource{
			count: len(paths),
			fps:   fps,
			load: func(index int) ([]byte, error) {
				data, err := os.ReadFile(paths[index])
				if err != nil {
					return nil, fmt.Errorf("read frame %d: %w", index, err)
				}
				return data, nil
			},
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrUserCancelled, "carrier", "load", "stopped before reading container", err)
	}
	doc, err := container.ReadFile(input, container.WithMaxDecodedSize(int64(r.cfg.Container.MaxDecodedMiB)<<20))
	if err != nil {
		return nil, err
	}
	if doc.FrameCount == 0 {
		return nil, services.Wrap(services.ErrValidation, "carrier", "load", "container holds no frames", nil)
	}
	if doc.FPS <= 0 {
		return nil, services.Wrap(services.ErrValidation, "carrier", "load", "container frame rate is zero", nil)
	}
	source := &frameSource{
		count: int(doc.FrameCount),
		fps:   float64(doc.FPS),
		load: func(index int) ([]byte, error) {
			data, ok := doc.Images.Get(container.FrameKey(index))
			if !ok {
				return nil, services.Wrap(services.ErrDecode, "carrier", "load",
					fmt.Sprintf("container has no image %q", container.FrameKey(index)), nil)
			}
			return data, nil
		},
	}
	if len(doc.Audios) > 0 {
		source.audio = doc.Audios[0].Data
	}
	return source, nil
}

// carrierAudio prepares the audio file to mux, remapped when the plan is.
// The returned cleanup removes scratch files.
func (r *Runtime) carrierAudio(ctx context.Context, rn *run, req CarrierRequest, source *frameSource, plan *framePlan) (string, func(), error) {
	noop := func() {}
	if r.cfg.Carrier.Muted {
		return "", noop, nil
	}
	input := req.Audio
	var scratch []string
	cleanup := func() {
		for _, path := range scratch {
			_ = os.Remove(path)
		}
	}
	jobID, _ := services.JobIDFromContext(ctx)
	if input == "" {
		if len(source.audio) == 0 {
			return "", noop, nil
		}
		var err error
		input, err = staging.ScratchPath(r.cfg.Paths.WorkDir, staging.KindEmbedded, jobID, ".mp3")
		if err != nil {
			return "", noop, err
		}
		if err := os.WriteFile(input, source.audio, 0o644); err != nil {
			return "", noop, fmt.Errorf("write embedded audio: %w", err)
		}
		scratch = append(scratch, input)
	}
	if plan.identity || req.Remap == nil {
		return input, cleanup, nil
	}

	audioCtx := rn.enterStage(ctx, "audio", 0)
	table, err := req.Remap.Rebase(uint32(source.count), source.fps)
	if err != nil {
		cleanup()
		return "", noop, err
	}
	filter, err := audio.TempoFilter(table.Segments(), source.fps, uint32(source.count))
	if err != nil {
		cleanup()
		return "", noop, err
	}
	if filter == "" {
		return input, cleanup, nil
	}
	remapped, err := staging.ScratchPath(r.cfg.Paths.WorkDir, staging.KindRemapped, jobID, ".mp3")
	if err != nil {
		cleanup()
		return "", noop, err
	}
	scratch = append(scratch, remapped)
	if err := ffmpeg.ExtractAudio(audioCtx, ffmpeg.AudioOptions{
		Binary: r.cfg.FFmpegBinary(),
		Input:  input,
		Filter: filter,
		Output: remapped,
	}); err != nil {
		if services.IsCancellation(err) {
			cleanup()
			return "", noop, err
		}
		logging.WarnWithContext(rn.logger, "audio remap failed", "audio_remap_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "carrier is encoded without audio"),
		)
		cleanup()
		return "", noop, nil
	}
	return remapped, cleanup, nil
}

// encodeCarrier composites every output frame and streams the black-backed
// result into the encoder in order.
func (r *Runtime) encodeCarrier(ctx context.Context, rn *run, source *frameSource, plan *framePlan, opts ffmpeg.WriterOptions, width, height int) error {
	writer, err := ffmpeg.CreateCarrier(ctx, opts)
	if err != nil {
		return err
	}
	total := len(plan.frameMap)
	frameBytes := width * 2 * height * 3
	mode := r.cfg.ChannelMode()

	seq := compositor.NewSequence(ctx, r.cfg.Pool.FrameWindow,
		func(index uint32, black *bufpool.Buffer) error {
			defer r.buffers.Release(black)
			if err := writer.WriteFrame(black.Bytes()[:frameBytes]); err != nil {
				return err
			}
			rn.progress(ctx, int(index)+1, total)
			return nil
		},
		func(black *bufpool.Buffer) { r.buffers.Release(black) },
	)
	for i, src := range plan.frameMap {
		job := r.composeJob(source, uint32(i), int(src), width, height, mode)
		if err := seq.Go(uint32(i), job); err != nil {
			break
		}
	}
	if err := seq.Wait(); err != nil {
		writer.Abort()
		if ctx.Err() != nil && !services.IsCancellation(err) {
			err = services.Wrap(services.ErrUserCancelled, "carrier", "encode", "stopped", err)
		}
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	rn.logger.Info("carrier encoded", logging.Int("frames", writer.Frames()), logging.Int("crf", ffmpeg.CRF(opts.Quality)))
	return nil
}

// composeJob loads and composites one output frame. The returned buffer is
// the black-backed RGB frame.
func (r *Runtime) composeJob(source *frameSource, index uint32, sourceFrame, width, height int, mode alphacodec.ChannelMode) compositor.FrameJob[*bufpool.Buffer] {
	return func(ctx context.Context) (*bufpool.Buffer, error) {
		data, err := source.load(sourceFrame)
		if err != nil {
			return nil, err
		}
		pix, w, h, err := raster.DecodePNG(data)
		if err != nil {
			return nil, services.Wrap(services.ErrDecode, "carrier", "decode frame", fmt.Sprintf("source frame %d", sourceFrame), err)
		}
		if w != width || h != height {
			return nil, services.Wrap(services.ErrValidation, "carrier", "decode frame",
				fmt.Sprintf("source frame %d is %dx%d, expected %dx%d", sourceFrame, w, h, width, height), nil)
		}
		buf, err := r.buffers.Acquire(w * h * 4)
		if err != nil {
			return nil, err
		}
		defer r.buffers.Release(buf)
		copy(buf.Bytes(), pix)

		res, err := r.compositor.Composite(ctx, compositor.FrameTask{
			FrameIndex: index,
			Source:     buf,
			Width:      w,
			Height:     h,
			Mode:       mode,
		}, nil)
		if err != nil {
			return nil, err
		}
		r.buffers.Release(res.DualChannel)
		return res.BlackBacked, nil
	}
}
