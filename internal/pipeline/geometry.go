package pipeline

import (
	"fmt"
	"math"
	"slices"

	"alphapack/internal/services"
	"alphapack/internal/speedremap"
)

// defaultSequenceFPS applies to PNG sequences when no frame rate is configured.
const defaultSequenceFPS = 30.0

// targetSize resolves the single-half output size. Zero keeps the source
// dimension; a single zero is derived from the other side's aspect ratio.
func targetSize(srcWidth, srcHeight, width, height int) (int, int) {
	switch {
	case width <= 0 && height <= 0:
		return srcWidth, srcHeight
	case width <= 0:
		width = max(1, int(math.Round(float64(srcWidth)*float64(height)/float64(srcHeight))))
	case height <= 0:
		height = max(1, int(math.Round(float64(srcHeight)*float64(width)/float64(srcWidth))))
	}
	return width, height
}

// framePlan maps every output frame to a source frame and lists the unique
// source frames that have to be rendered, in ascending order.
type framePlan struct {
	frameMap []uint32
	needed   []uint32
	ordinal  map[uint32]int
	identity bool
}

// planFrames applies table (or identity when nil) to a source of
// totalFrames frames at sourceFPS, producing output at outputFPS.
func planFrames(table *speedremap.Table, totalFrames uint32, sourceFPS, outputFPS float64) (*framePlan, error) {
	if totalFrames == 0 {
		return nil, services.Wrap(services.ErrValidation, "remap", "plan", "source has no frames", nil)
	}
	if table == nil {
		table = speedremap.New(totalFrames, sourceFPS)
	} else {
		rebased, err := table.Rebase(totalFrames, sourceFPS)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "remap", "plan", "rebase table onto source", err)
		}
		table = rebased
	}
	if outputFPS <= 0 {
		outputFPS = sourceFPS
	}
	frameMap := table.BuildFrameMap(outputFPS)
	if len(frameMap) == 0 {
		return nil, services.Wrap(services.ErrValidation, "remap", "plan",
			fmt.Sprintf("remap produces no output frames from %d source frames", totalFrames), nil)
	}

	needed := slices.Clone(frameMap)
	slices.Sort(needed)
	needed = slices.Compact(needed)
	ordinal := make(map[uint32]int, len(needed))
	for i, src := range needed {
		ordinal[src] = i
	}
	return &framePlan{
		frameMap: frameMap,
		needed:   needed,
		ordinal:  ordinal,
		identity: table.IsIdentity() && len(frameMap) == int(totalFrames),
	}, nil
}

// lastNeeded is the highest source frame the plan reads.
func (p *framePlan) lastNeeded() uint32 {
	return p.needed[len(p.needed)-1]
}
