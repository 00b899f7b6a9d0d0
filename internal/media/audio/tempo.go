package audio

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"alphapack/internal/speedremap"
)

// OutputLabel names the filtergraph pad carrying the remapped audio.
const OutputLabel = "aout"

const (
	minAtempo = 0.5
	maxAtempo = 2.0
)

// TempoFilter returns a filter_complex graph reading [0:a] and writing
// [aout]. It returns an empty string when the segments describe identity
// playback, in which case the source audio can be copied unchanged.
func TempoFilter(segments []speedremap.Segment, sourceFPS float64, totalFrames uint32) (string, error) {
	if len(segments) == 0 {
		return "", errors.New("tempo filter: no segments")
	}
	if sourceFPS <= 0 || totalFrames == 0 {
		return "", fmt.Errorf("tempo filter: invalid source timing fps=%v frames=%d", sourceFPS, totalFrames)
	}
	if isIdentity(segments) {
		return "", nil
	}

	var chains []string
	var labels []string
	for i, seg := range segments {
		outDur := (seg.EndPosition - seg.StartPosition) * float64(totalFrames) / sourceFPS
		if outDur <= 0 {
			continue
		}
		label := "a" + strconv.Itoa(i)
		labels = append(labels, "["+label+"]")

		if seg.StartSource == seg.EndSource {
			chains = append(chains, fmt.Sprintf("aevalsrc=0:c=stereo:s=48000:d=%s[%s]", seconds(outDur), label))
			continue
		}

		lo, hi := seg.StartSource, seg.EndSource
		reverse := lo > hi
		if reverse {
			lo, hi = hi, lo
		}
		filters := []string{
			fmt.Sprintf("atrim=start=%s:end=%s", seconds(float64(lo)/sourceFPS), seconds(float64(hi)/sourceFPS)),
			"asetpts=PTS-STARTPTS",
		}
		if reverse {
			filters = append(filters, "areverse")
		}
		for _, factor := range AtempoChain(math.Abs(seg.Speed)) {
			filters = append(filters, "atempo="+strconv.FormatFloat(factor, 'f', 6, 64))
		}
		chains = append(chains, "[0:a]"+strings.Join(filters, ",")+"["+label+"]")
	}

	if len(labels) == 0 {
		return "", errors.New("tempo filter: remap has zero duration")
	}
	chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[%s]", strings.Join(labels, ""), len(labels), OutputLabel))
	return strings.Join(chains, ";"), nil
}

// AtempoChain splits factor into atempo stages within the filter's
// supported 0.5 to 2.0 range. A factor of 1 yields no stages.
func AtempoChain(factor float64) []float64 {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil
	}
	var chain []float64
	for factor > maxAtempo {
		chain = append(chain, maxAtempo)
		factor /= maxAtempo
	}
	for factor < minAtempo {
		chain = append(chain, minAtempo)
		factor /= minAtempo
	}
	if math.Abs(factor-1) > 1e-9 {
		chain = append(chain, factor)
	}
	return chain
}

func isIdentity(segments []speedremap.Segment) bool {
	for _, seg := range segments {
		if seg.StartSource > seg.EndSource || math.Abs(seg.Speed-1) > 1e-9 {
			return false
		}
	}
	return true
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
