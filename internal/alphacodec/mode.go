package alphacodec

import (
	"fmt"
	"strings"
)

// ChannelMode selects which half of a dual-channel frame carries color.
type ChannelMode int

const (
	// ColorLeftAlphaRight places color on the left and the matte on the right.
	ColorLeftAlphaRight ChannelMode = iota
	// AlphaLeftColorRight places the matte on the left and color on the right.
	AlphaLeftColorRight
)

// Side identifies one half of a dual-channel frame.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Opposite returns the other half.
func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

// ParseSide accepts "left" or "right".
func ParseSide(value string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	default:
		return Right, fmt.Errorf("matte side: unsupported value %q", value)
	}
}

func (m ChannelMode) String() string {
	if m == AlphaLeftColorRight {
		return "alpha-left"
	}
	return "color-left"
}

// MatteSide reports where the matte lives under this mode.
func (m ChannelMode) MatteSide() Side {
	if m == AlphaLeftColorRight {
		return Left
	}
	return Right
}

// ModeForMatte returns the channel mode whose matte sits on side.
func ModeForMatte(side Side) ChannelMode {
	if side == Left {
		return AlphaLeftColorRight
	}
	return ColorLeftAlphaRight
}

// ParseChannelMode accepts the config spellings of both modes.
func ParseChannelMode(value string) (ChannelMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "color-left", "color_left_alpha_right", "colorleftalpharight", "":
		return ColorLeftAlphaRight, nil
	case "alpha-left", "alpha_left_color_right", "alphaleftcolorright":
		return AlphaLeftColorRight, nil
	default:
		return ColorLeftAlphaRight, fmt.Errorf("channel mode: unsupported value %q", value)
	}
}

// offsets returns the x offsets (in pixels) of the color and matte halves
// when the matte sits on matte.
func offsets(matte Side, halfWidth int) (colorX, matteX int) {
	x := func(s Side) int {
		if s == Left {
			return 0
		}
		return halfWidth
	}
	return x(matte.Opposite()), x(matte)
}
