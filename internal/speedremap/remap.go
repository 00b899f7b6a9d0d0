package speedremap

import "math"

// Segment is the span between two consecutive keyframes.
type Segment struct {
	StartSource   uint32
	EndSource     uint32
	StartPosition float64
	EndPosition   float64
	// Speed is the local source-frames-per-output-frame slope. Negative
	// values play the segment in reverse.
	Speed float64
}

// FrameAt returns the interpolated source frame for an output position.
// Positions outside the endpoints clamp to the nearest endpoint.
func (t *Table) FrameAt(position float64) uint32 {
	first, last := t.keys[0], t.keys[len(t.keys)-1]
	if position <= first.Position || math.IsNaN(position) {
		return first.SourceFrame
	}
	if position >= last.Position {
		return last.SourceFrame
	}
	for i := 0; i < len(t.keys)-1; i++ {
		k1, k2 := t.keys[i], t.keys[i+1]
		if position < k1.Position || position > k2.Position {
			continue
		}
		span := k2.Position - k1.Position
		if span <= 0 {
			return k1.SourceFrame
		}
		ratio := (position - k1.Position) / span
		frame := float64(k1.SourceFrame) + (float64(k2.SourceFrame)-float64(k1.SourceFrame))*ratio
		return uint32(math.Round(frame))
	}
	return last.SourceFrame
}

// OutputFrameCount reports how many frames BuildFrameMap produces.
func (t *Table) OutputFrameCount(outputFPS float64) int {
	start, end := t.keys[0].Position, t.keys[len(t.keys)-1].Position
	frames := (end - start) * float64(t.totalFrames)
	if outputFPS > 0 && t.sourceFPS > 0 && outputFPS != t.sourceFPS {
		frames *= outputFPS / t.sourceFPS
	}
	// Guard against 0.3*10 = 3.0000000000000004 style overshoot.
	return int(math.Ceil(frames - 1e-9))
}

// BuildFrameMap returns the source frame for every output frame. Entries are
// clamped to the last decodable source frame.
func (t *Table) BuildFrameMap(outputFPS float64) []uint32 {
	total := t.OutputFrameCount(outputFPS)
	if total <= 0 {
		return nil
	}
	out := make([]uint32, total)
	maxFrame := uint32(0)
	if t.totalFrames > 0 {
		maxFrame = t.totalFrames - 1
	}
	if t.IsIdentity() && total == int(t.totalFrames) {
		for i := range out {
			out[i] = uint32(i)
		}
		return out
	}
	start, end := t.keys[0].Position, t.keys[len(t.keys)-1].Position
	for i := range out {
		pos := start + float64(i)/float64(total)*(end-start)
		frame := t.FrameAt(pos)
		if frame > maxFrame {
			frame = maxFrame
		}
		out[i] = frame
	}
	return out
}

// SpeedAt returns the local playback speed of the segment containing
// sourceFrame. It is 1.0 when the table is degenerate or no segment matches.
func (t *Table) SpeedAt(sourceFrame uint32) float64 {
	if len(t.keys) < 2 || t.totalFrames == 0 {
		return 1.0
	}
	for i := 0; i < len(t.keys)-1; i++ {
		k1, k2 := t.keys[i], t.keys[i+1]
		lo, hi := k1.SourceFrame, k2.SourceFrame
		if lo > hi {
			lo, hi = hi, lo
		}
		if sourceFrame < lo || sourceFrame > hi {
			continue
		}
		return segmentSpeed(k1, k2, t.totalFrames)
	}
	return 1.0
}

// Segments lists every keyframe span with its local speed.
func (t *Table) Segments() []Segment {
	if len(t.keys) < 2 {
		return nil
	}
	out := make([]Segment, 0, len(t.keys)-1)
	for i := 0; i < len(t.keys)-1; i++ {
		k1, k2 := t.keys[i], t.keys[i+1]
		out = append(out, Segment{
			StartSource:   k1.SourceFrame,
			EndSource:     k2.SourceFrame,
			StartPosition: k1.Position,
			EndPosition:   k2.Position,
			Speed:         segmentSpeed(k1, k2, t.totalFrames),
		})
	}
	return out
}

func segmentSpeed(k1, k2 Keyframe, totalFrames uint32) float64 {
	dPos := k2.Position - k1.Position
	dSrc := float64(k2.SourceFrame) - float64(k1.SourceFrame)
	if dPos == 0 || dSrc == 0 || totalFrames == 0 {
		return 1.0
	}
	return dSrc / (dPos * float64(totalFrames))
}
