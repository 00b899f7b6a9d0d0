package alphacodec

import (
	"errors"
	"image"
	"testing"

	"alphapack/internal/services"
)

func TestComposeRedHalfAlpha(t *testing.T) {
	src := []byte{255, 0, 0, 128}
	dual, err := ComposeDualChannel(src, 1, 1, ColorLeftAlphaRight)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	want := []byte{128, 0, 0, 128, 128, 128, 128, 255}
	for i := range want {
		if dual[i] != want[i] {
			t.Fatalf("dual = %v, want %v", dual, want)
		}
	}

	rgba, err := DecomposeDualChannel(dual, 2, 1, Right)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if rgba[0] != 255 || rgba[1] != 0 || rgba[2] != 0 || rgba[3] != 128 {
		t.Fatalf("decomposed = %v, want [255 0 0 128]", rgba)
	}
}

func TestComposeAlphaLeftPlacement(t *testing.T) {
	src := []byte{10, 20, 30, 255}
	dual, err := ComposeDualChannel(src, 1, 1, AlphaLeftColorRight)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	want := []byte{255, 255, 255, 255, 10, 20, 30, 255}
	for i := range want {
		if dual[i] != want[i] {
			t.Fatalf("dual = %v, want %v", dual, want)
		}
	}
}

func TestRoundTripOpaqueAndTransparentExact(t *testing.T) {
	var src []byte
	for r := 0; r < 256; r += 5 {
		for g := 0; g < 256; g += 51 {
			src = append(src, uint8(r), uint8(g), uint8(255-r), 255)
			src = append(src, 0, 0, 0, 0)
		}
	}
	width := len(src) / 4

	for _, mode := range []ChannelMode{ColorLeftAlphaRight, AlphaLeftColorRight} {
		dual, err := ComposeDualChannel(src, width, 1, mode)
		if err != nil {
			t.Fatalf("compose: %v", err)
		}
		got, err := DecomposeDualChannel(dual, width*2, 1, mode.MatteSide())
		if err != nil {
			t.Fatalf("decompose: %v", err)
		}
		for i := range src {
			if got[i] != src[i] {
				t.Fatalf("mode %s byte %d = %d, want %d", mode, i, got[i], src[i])
			}
		}
	}
}

func TestRoundTripPartialAlphaWithinTolerance(t *testing.T) {
	// Below this alpha an 8-bit premultiplied value no longer resolves every
	// straight channel value to within one step.
	const minExactAlpha = 86

	var src []byte
	for a := minExactAlpha; a < 255; a++ {
		for c := 0; c < 256; c += 3 {
			src = append(src, uint8(c), uint8(255-c), uint8(c/2), uint8(a))
		}
	}
	width := len(src) / 4
	dual, err := ComposeDualChannel(src, width, 1, ColorLeftAlphaRight)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	got, err := DecomposeDualChannel(dual, width*2, 1, Right)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	for px := 0; px < width; px++ {
		i := px * 4
		if got[i+3] != src[i+3] {
			t.Fatalf("pixel %d alpha = %d, want %d", px, got[i+3], src[i+3])
		}
		for c := 0; c < 3; c++ {
			diff := int(got[i+c]) - int(src[i+c])
			if diff < -1 || diff > 1 {
				t.Fatalf("pixel %d channel %d = %d, want %d±1 (a=%d)", px, c, got[i+c], src[i+c], src[i+3])
			}
		}
	}
}

func TestLowAlphaRoundTripIsMonotonic(t *testing.T) {
	for a := 1; a < 256; a++ {
		prev := -1
		for c := 0; c < 256; c++ {
			p := Premultiply(uint8(c), uint8(a))
			got := int(Unpremultiply(p, uint8(a)))
			if got < prev {
				t.Fatalf("a=%d c=%d recovered %d after %d", a, c, got, prev)
			}
			prev = got
		}
	}
}

func TestDecomposeZeroAlphaIsBlack(t *testing.T) {
	dual := []byte{200, 100, 50, 255, 0, 0, 0, 255}
	got, err := DecomposeDualChannel(dual, 2, 1, Right)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	for i, v := range got {
		if v != 0 {
			t.Fatalf("byte %d = %d, want 0", i, v)
		}
	}
}

func TestDecomposeClampsOverflow(t *testing.T) {
	dual := []byte{200, 10, 0, 255, 100, 100, 100, 255}
	got, err := DecomposeDualChannel(dual, 2, 1, Right)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if got[0] != 255 || got[1] != 26 || got[3] != 100 {
		t.Fatalf("decomposed = %v, want [255 26 0 100]", got)
	}
}

func TestDecomposeRejectsOddWidth(t *testing.T) {
	_, err := DecomposeDualChannel(make([]byte, 12), 3, 1, Right)
	if !errors.Is(err, services.ErrUnsupportedCarrier) {
		t.Fatalf("expected ErrUnsupportedCarrier, got %v", err)
	}
}

func TestComposeRejectsShortSource(t *testing.T) {
	_, err := ComposeDualChannel(make([]byte, 7), 2, 1, ColorLeftAlphaRight)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestFlattenLeavesMatteUntouched(t *testing.T) {
	src := []byte{200, 100, 50, 0, 200, 100, 50, 255, 255, 255, 255, 51}
	dual, err := ComposeDualChannel(src, 3, 1, ColorLeftAlphaRight)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	rgb, err := FlattenToBlackBackground(dual, 6, 1)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	want := []byte{
		0, 0, 0,
		200, 100, 50,
		Premultiply(51, 51), Premultiply(51, 51), Premultiply(51, 51),
		0, 0, 0,
		255, 255, 255,
		51, 51, 51,
	}
	for i := range want {
		if rgb[i] != want[i] {
			t.Fatalf("rgb = %v, want %v", rgb, want)
		}
	}
}

func TestComposeRectWritesBlackBackedFrame(t *testing.T) {
	width, height := 5, 3
	src := make([]byte, width*height*4)
	for i := range src {
		src[i] = uint8(i * 7)
	}
	dual := make([]byte, width*height*8)
	black := make([]byte, width*height*6)
	ComposeRect(src, width, dual, black, image.Rect(0, 0, 2, 3), ColorLeftAlphaRight)
	ComposeRect(src, width, dual, black, image.Rect(2, 0, 5, 3), ColorLeftAlphaRight)

	wantDual, _ := ComposeDualChannel(src, width, height, ColorLeftAlphaRight)
	wantBlack, _ := FlattenToBlackBackground(wantDual, width*2, height)
	for i := range wantDual {
		if dual[i] != wantDual[i] {
			t.Fatalf("dual byte %d = %d, want %d", i, dual[i], wantDual[i])
		}
	}
	for i := range wantBlack {
		if black[i] != wantBlack[i] {
			t.Fatalf("black byte %d = %d, want %d", i, black[i], wantBlack[i])
		}
	}
}

func TestParseChannelModeAndSide(t *testing.T) {
	tests := []struct {
		in   string
		want ChannelMode
	}{
		{"color-left", ColorLeftAlphaRight},
		{"", ColorLeftAlphaRight},
		{"Alpha-Left", AlphaLeftColorRight},
		{"alpha_left_color_right", AlphaLeftColorRight},
	}
	for _, tc := range tests {
		got, err := ParseChannelMode(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("ParseChannelMode(%q) = %v, %v", tc.in, got, err)
		}
	}
	if _, err := ParseChannelMode("diagonal"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if side, err := ParseSide(" LEFT "); err != nil || side != Left {
		t.Fatalf("ParseSide = %v, %v", side, err)
	}
	if _, err := ParseSide("up"); err == nil {
		t.Fatal("expected error for unknown side")
	}
	if ModeForMatte(Left) != AlphaLeftColorRight || ModeForMatte(Right).MatteSide() != Right {
		t.Fatal("ModeForMatte mismatch")
	}
}
