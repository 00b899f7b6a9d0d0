package alphacodec

import (
	"fmt"

	"alphapack/internal/services"
)

const (
	sampleWindow = 16
	// greyscaleLimit is the highest mean channel spread still accepted as a
	// matte. Lossy carriers add a little chroma noise to the grey half.
	greyscaleLimit = 48.0
)

// DetectMatteSide guesses which half of a dual-channel frame is the matte by
// comparing the mean channel spread (|r-g|+|g-b|+|r-b|) of a window at the
// centre of each half. The flatter half wins.
//
// When neither half looks greyscale the returned error wraps
// ErrUnsupportedCarrier; the returned side is still the better guess so
// callers can fall back to it or to a configured default.
func DetectMatteSide(frame []byte, fullWidth, height int) (Side, error) {
	if fullWidth <= 0 || height <= 0 || fullWidth%2 != 0 {
		return Right, services.Wrap(services.ErrUnsupportedCarrier, "alphacodec", "detect matte",
			fmt.Sprintf("frame size %dx%d cannot be split into halves", fullWidth, height), nil)
	}
	if len(frame) < fullWidth*height*4 {
		return Right, services.Wrap(services.ErrUnsupportedCarrier, "alphacodec", "detect matte",
			fmt.Sprintf("frame holds %d bytes, need %d", len(frame), fullWidth*height*4), nil)
	}
	half := fullWidth / 2
	left := meanSpread(frame, fullWidth, height, 0, half)
	right := meanSpread(frame, fullWidth, height, half, half)

	side := Right
	lowest := right
	if left < right {
		side, lowest = Left, left
	}
	if lowest > greyscaleLimit {
		return side, services.Wrap(services.ErrUnsupportedCarrier, "alphacodec", "detect matte",
			fmt.Sprintf("no greyscale half found (left spread %.1f, right spread %.1f)", left, right), nil)
	}
	return side, nil
}

// ChannelSpread returns |r-g|+|g-b|+|r-b| for one pixel.
func ChannelSpread(r, g, b uint8) int {
	return absDiff(r, g) + absDiff(g, b) + absDiff(r, b)
}

func meanSpread(frame []byte, fullWidth, height, x0, halfWidth int) float64 {
	w := min(sampleWindow, halfWidth)
	h := min(sampleWindow, height)
	startX := x0 + (halfWidth-w)/2
	startY := (height - h) / 2

	total := 0
	for y := startY; y < startY+h; y++ {
		row := y * fullWidth * 4
		for x := startX; x < startX+w; x++ {
			i := row + x*4
			total += ChannelSpread(frame[i], frame[i+1], frame[i+2])
		}
	}
	return float64(total) / float64(w*h)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
