package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"alphapack/internal/alphacodec"
	"alphapack/internal/bufpool"
	"alphapack/internal/compositor"
	"alphapack/internal/container"
	"alphapack/internal/jobs"
	"alphapack/internal/logging"
	"alphapack/internal/media/audio"
	"alphapack/internal/media/ffprobe"
	"alphapack/internal/services"
	"alphapack/internal/services/ffmpeg"
	"alphapack/internal/speedremap"
	"alphapack/internal/staging"
)

// PackRequest names a carrier video and the container to produce from it.
type PackRequest struct {
	Input  string
	Output string
	// Remap is applied to the source timeline when set.
	Remap *speedremap.Table
}

// PackResult summarises a finished Pack.
type PackResult struct {
	JobID         string
	Output        string
	Width         int
	Height        int
	FPS           float64
	Frames        int
	UniqueFrames  int
	Matte         alphacodec.Side
	MatteDetected bool
	AudioBytes    int
	Bytes         int
}

// carrierSource is the probed geometry of a carrier video.
type carrierSource struct {
	fullWidth int
	height    int
	fps       float64
	frames    uint32
	hasAudio  bool
}

// Pack decodes a dual-channel carrier, recovers straight-alpha frames and
// writes them as PNG images into an animation container.
func (r *Runtime) Pack(ctx context.Context, req PackRequest) (*PackResult, error) {
	started := time.Now()
	ctx, rn := r.beginRun(ctx, jobs.KindPack, req.Input, req.Output)
	result, err := r.pack(ctx, rn, req)
	var written int64
	if result != nil {
		result.JobID = rn.id
		written = int64(result.Bytes)
	}
	rn.finish(ctx, written, err, started)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runtime) pack(ctx context.Context, rn *run, req PackRequest) (*PackResult, error) {
	if req.Input == "" || req.Output == "" {
		return nil, services.Wrap(services.ErrValidation, "pack", "request", "input and output paths are required", nil)
	}

	probeCtx := rn.enterStage(ctx, "probe", 0)
	src, err := r.probeCarrier(probeCtx, req.Input)
	if err != nil {
		return nil, err
	}
	halfWidth := src.fullWidth / 2
	width, height := targetSize(halfWidth, src.height, r.cfg.Carrier.Width, r.cfg.Carrier.Height)
	outFPS := r.cfg.Carrier.FPS
	if outFPS <= 0 {
		outFPS = src.fps
	}
	plan, err := planFrames(req.Remap, src.frames, src.fps, outFPS)
	if err != nil {
		return nil, err
	}
	rn.logger.Info("carrier probed",
		logging.Int("source_width", halfWidth),
		logging.Int("source_height", src.height),
		logging.Float64("source_fps", src.fps),
		logging.Int64("source_frames", int64(src.frames)),
		logging.Int("output_width", width),
		logging.Int("output_height", height),
		logging.Float64("output_fps", outFPS),
		logging.Int("output_frames", len(plan.frameMap)),
		logging.Bool("remapped", !plan.identity),
	)

	decodeCtx := rn.enterStage(ctx, "decompose", len(plan.needed))
	images, matte, detected, err := r.decomposeCarrier(decodeCtx, rn, req.Input, src, width, height, plan)
	if err != nil {
		return nil, err
	}

	doc := container.NewDocument(uint32(width), uint32(height), float32(outFPS))
	assembleCtx := rn.enterStage(ctx, "assemble", len(plan.frameMap))
	if err := assemble(doc, plan, images); err != nil {
		return nil, err
	}
	if r.cfg.Container.FrameSprites {
		doc.BuildFrameSprites()
	}
	rn.progress(assembleCtx, len(plan.frameMap), len(plan.frameMap))

	audioBytes := 0
	if r.cfg.Container.EmbedAudio && !r.cfg.Carrier.Muted && src.hasAudio {
		audioCtx := rn.enterStage(ctx, "audio", 0)
		clip, err := r.packAudio(audioCtx, rn, req.Input, req.Remap, src, doc)
		switch {
		case err != nil && services.IsCancellation(err):
			return nil, err
		case err != nil:
			logging.WarnWithContext(rn.logger, "audio track skipped", "audio_extract_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that ffmpeg has the libmp3lame encoder"),
				logging.String(logging.FieldImpact, "container has no audio"),
			)
		default:
			doc.Audios = append(doc.Audios, clip)
			audioBytes = len(clip.Data)
		}
	}

	writeCtx := rn.enterStage(ctx, "write", 0)
	if err := writeCtx.Err(); err != nil {
		return nil, services.Wrap(services.ErrUserCancelled, "pack", "write", "container not written", err)
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	n, err := container.WriteFile(req.Output, doc, container.WithCompression(r.cfg.Compression(), r.cfg.Container.CompressionLevel))
	if err != nil {
		return nil, err
	}

	return &PackResult{
		Output:        req.Output,
		Width:         width,
		Height:        height,
		FPS:           outFPS,
		Frames:        int(doc.FrameCount),
		UniqueFrames:  len(images),
		Matte:         matte,
		MatteDetected: detected,
		AudioBytes:    audioBytes,
		Bytes:         n,
	}, nil
}

func (r *Runtime) probeCarrier(ctx context.Context, path string) (carrierSource, error) {
	if _, err := os.Stat(path); err != nil {
		return carrierSource{}, services.Wrap(services.ErrValidation, "pack", "probe", "carrier not readable", err)
	}
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout())
	defer cancel()
	probe, err := ffprobe.Inspect(probeCtx, r.cfg.FFprobeBinary(), path)
	if err != nil {
		if ctx.Err() != nil {
			return carrierSource{}, services.Wrap(services.ErrUserCancelled, "pack", "probe", "probe interrupted", err)
		}
		if probeCtx.Err() != nil {
			return carrierSource{}, services.Wrap(services.ErrTimeout, "pack", "probe", "ffprobe did not finish", err)
		}
		return carrierSource{}, services.Wrap(services.ErrExternalTool, "pack", "probe", "ffprobe failed", err)
	}
	stream, ok := probe.VideoStream()
	if !ok {
		return carrierSource{}, services.Wrap(services.ErrUnsupportedCarrier, "pack", "probe", "no video stream", nil)
	}
	if stream.Width <= 0 || stream.Height <= 0 || stream.Width%2 != 0 {
		return carrierSource{}, services.Wrap(services.ErrUnsupportedCarrier, "pack", "probe",
			fmt.Sprintf("frame size %dx%d cannot be split into halves", stream.Width, stream.Height), nil)
	}
	fps := probe.FrameRate()
	if fps <= 0 {
		return carrierSource{}, services.Wrap(services.ErrUnsupportedCarrier, "pack", "probe", "frame rate unknown", nil)
	}
	frames := probe.FrameCount()
	if frames == 0 {
		return carrierSource{}, services.Wrap(services.ErrUnsupportedCarrier, "pack", "probe", "frame count unknown", nil)
	}
	return carrierSource{
		fullWidth: stream.Width,
		height:    stream.Height,
		fps:       fps,
		frames:    frames,
		hasAudio:  probe.HasAudio(),
	}, nil
}

// decomposeCarrier streams the carrier through ffmpeg and renders every
// source frame the plan needs. The returned map is keyed by source frame.
func (r *Runtime) decomposeCarrier(ctx context.Context, rn *run, input string, src carrierSource, width, height int, plan *framePlan) (map[uint32][]byte, alphacodec.Side, bool, error) {
	fullWidth := width * 2
	reader, err := ffmpeg.OpenFrames(ctx, ffmpeg.ReaderOptions{
		Binary:         r.cfg.FFmpegBinary(),
		Input:          input,
		Width:          fullWidth,
		Height:         height,
		Scale:          fullWidth != src.fullWidth || height != src.height,
		HardwareDecode: r.cfg.FFmpeg.HardwareDecode,
	})
	if err != nil {
		return nil, 0, false, err
	}
	defer reader.Close()

	matte, forced := r.cfg.MatteSide()
	detected := false
	images := make(map[uint32][]byte, len(plan.needed))
	total := len(plan.needed)

	seq := compositor.NewSequence(ctx, r.cfg.Pool.FrameWindow,
		func(index uint32, data []byte) error {
			images[plan.needed[index]] = data
			rn.progress(ctx, int(index)+1, total)
			return nil
		}, nil)

	var readErr error
	last := plan.lastNeeded()
	for source := uint32(0); source <= last; source++ {
		buf, err := r.buffers.Acquire(reader.FrameSize())
		if err != nil {
			readErr = err
			break
		}
		if _, err := reader.Next(buf.Bytes()); err != nil {
			r.buffers.Release(buf)
			if errors.Is(err, io.EOF) {
				logging.WarnWithContext(rn.logger, "carrier ended early", "carrier_short",
					logging.Int64("expected_frames", int64(src.frames)),
					logging.Int64("decoded_frames", int64(source)),
					logging.String(logging.FieldImpact, "trailing frames repeat the last decoded frame"),
				)
			} else {
				readErr = err
			}
			break
		}

		if source == 0 && !forced {
			side, detectErr := alphacodec.DetectMatteSide(buf.Bytes(), fullWidth, height)
			matte, detected = side, detectErr == nil
			if detectErr != nil {
				logging.WarnWithContext(rn.logger, "matte side detection inconclusive", "matte_detect_fallback",
					logging.Error(detectErr),
					logging.String("matte_side", side.String()),
					logging.String(logging.FieldErrorHint, "set carrier.matte_side or pass --matte"),
					logging.String(logging.FieldImpact, "frames may decode with swapped halves"),
				)
			} else {
				rn.logger.Info("matte side detected", logging.String("matte_side", side.String()))
			}
		}

		ordinal, ok := plan.ordinal[source]
		if !ok {
			r.buffers.Release(buf)
			continue
		}
		if err := seq.Go(uint32(ordinal), r.decomposeJob(buf, source, uint32(ordinal), fullWidth, height, matte)); err != nil {
			r.buffers.Release(buf)
			break
		}
	}

	seqErr := seq.Wait()
	if err := errors.Join(seqErr, readErr); err != nil {
		if ctx.Err() != nil && !services.IsCancellation(err) {
			err = services.Wrap(services.ErrUserCancelled, "pack", "decompose", "stopped", err)
		}
		return nil, matte, detected, err
	}
	if len(images) == 0 {
		return nil, matte, detected, services.Wrap(services.ErrDecode, "pack", "decompose", "carrier produced no frames", nil)
	}
	return images, matte, detected, nil
}

// decomposeJob returns the frame job for one carrier frame. It owns buf.
func (r *Runtime) decomposeJob(buf *bufpool.Buffer, source, ordinal uint32, fullWidth, height int, matte alphacodec.Side) compositor.FrameJob[[]byte] {
	return func(ctx context.Context) ([]byte, error) {
		defer r.buffers.Release(buf)
		decoded, err := r.compositor.Decompose(ctx, compositor.DecomposeTask{
			FrameIndex: ordinal,
			Source:     buf,
			FullWidth:  fullWidth,
			Height:     height,
			Matte:      matte,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("source frame %d: %w", source, err)
		}
		defer r.buffers.Release(decoded.RGBA)
		pix := decoded.RGBA.Bytes()[:decoded.Width*decoded.Height*4]
		return r.encodePNG(ctx, ordinal, pix, decoded.Width, decoded.Height)
	}
}

// assemble adds one image per output frame in order. Source frames the
// decoder never reached reuse the last rendered frame before them.
func assemble(doc *container.Document, plan *framePlan, images map[uint32][]byte) error {
	var fallback []byte
	for _, source := range plan.needed {
		if data, ok := images[source]; ok {
			fallback = data
			break
		}
	}
	for i, source := range plan.frameMap {
		data, ok := images[source]
		if !ok {
			data = nearestBelow(images, source)
		}
		if data == nil {
			data = fallback
		}
		if data == nil {
			return services.Wrap(services.ErrDecode, "pack", "assemble", fmt.Sprintf("output frame %d has no image", i), nil)
		}
		doc.AddFrame(data)
	}
	return nil
}

func nearestBelow(images map[uint32][]byte, source uint32) []byte {
	var best []byte
	bestFrame := int64(-1)
	for frame, data := range images {
		if frame <= source && int64(frame) > bestFrame {
			best, bestFrame = data, int64(frame)
		}
	}
	return best
}

// packAudio renders the carrier's audio, remapped to the output timeline,
// into one clip spanning the whole animation.
func (r *Runtime) packAudio(ctx context.Context, rn *run, input string, table *speedremap.Table, src carrierSource, doc *container.Document) (container.AudioClip, error) {
	var filter string
	if table != nil {
		rebased, err := table.Rebase(src.frames, src.fps)
		if err != nil {
			return container.AudioClip{}, err
		}
		filter, err = audio.TempoFilter(rebased.Segments(), src.fps, src.frames)
		if err != nil {
			return container.AudioClip{}, err
		}
	}
	data, err := r.renderAudio(ctx, input, filter)
	if err != nil {
		return container.AudioClip{}, err
	}
	rn.logger.Info("audio rendered", logging.Int("audio_bytes", len(data)), logging.Bool("remapped", filter != ""))
	end := uint32(0)
	if doc.FrameCount > 0 {
		end = doc.FrameCount - 1
	}
	return container.AudioClip{
		Key:         "audio_0",
		StartFrame:  0,
		EndFrame:    end,
		StartTimeMs: 0,
		TotalTimeMs: doc.DurationMs(),
		Data:        data,
	}, nil
}

// renderAudio runs ffmpeg into a scratch MP3 under the work directory and
// returns its bytes.
func (r *Runtime) renderAudio(ctx context.Context, input, filter string) ([]byte, error) {
	jobID, _ := services.JobIDFromContext(ctx)
	scratch, err := staging.ScratchPath(r.cfg.Paths.WorkDir, staging.KindAudio, jobID, ".mp3")
	if err != nil {
		return nil, err
	}
	defer os.Remove(scratch)

	if err := ffmpeg.ExtractAudio(ctx, ffmpeg.AudioOptions{
		Binary: r.cfg.FFmpegBinary(),
		Input:  input,
		Filter: filter,
		Output: scratch,
	}); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(scratch)
	if err != nil {
		return nil, fmt.Errorf("read rendered audio: %w", err)
	}
	return data, nil
}
