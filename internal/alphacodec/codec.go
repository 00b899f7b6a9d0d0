package alphacodec

import (
	"fmt"
	"image"

	"alphapack/internal/services"
)

// Premultiply returns round(c*a/255).
func Premultiply(c, a uint8) uint8 {
	return uint8((uint32(c)*uint32(a) + 127) / 255)
}

// Unpremultiply returns min(255, round(c*255/a)); a must be non-zero.
func Unpremultiply(c, a uint8) uint8 {
	v := (uint32(c)*255 + uint32(a)/2) / uint32(a)
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ComposeRect writes the dual-channel pixels for rect of a straight-alpha
// source. src is width×h RGBA, dual is (2*width)×h RGBA. When black is
// non-nil, the flattened RGB pixels of both halves are written to it as well.
func ComposeRect(src []byte, width int, dual, black []byte, rect image.Rectangle, mode ChannelMode) {
	colorX, matteX := offsets(mode.MatteSide(), width)
	srcStride := width * 4
	dualStride := width * 8
	blackStride := width * 6

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		srcRow := src[y*srcStride : (y+1)*srcStride]
		dualRow := dual[y*dualStride : (y+1)*dualStride]
		var blackRow []byte
		if black != nil {
			blackRow = black[y*blackStride : (y+1)*blackStride]
		}
		for x := rect.Min.X; x < rect.Max.X; x++ {
			s := srcRow[x*4 : x*4+4 : x*4+4]
			r, g, b, a := s[0], s[1], s[2], s[3]
			switch {
			case a == 0:
				r, g, b = 0, 0, 0
			case a < 255:
				r, g, b = Premultiply(r, a), Premultiply(g, a), Premultiply(b, a)
			}

			c := dualRow[(colorX+x)*4 : (colorX+x)*4+4 : (colorX+x)*4+4]
			c[0], c[1], c[2], c[3] = r, g, b, a
			m := dualRow[(matteX+x)*4 : (matteX+x)*4+4 : (matteX+x)*4+4]
			m[0], m[1], m[2], m[3] = a, a, a, 255

			if blackRow != nil {
				flattenPixel(blackRow[(colorX+x)*3:(colorX+x)*3+3], r, g, b, a)
				flattenPixel(blackRow[(matteX+x)*3:(matteX+x)*3+3], a, a, a, 255)
			}
		}
	}
}

// ComposeDualChannel converts a straight-alpha RGBA frame into a
// dual-channel frame of twice the width.
func ComposeDualChannel(src []byte, width, height int, mode ChannelMode) ([]byte, error) {
	if err := checkSize(len(src), width*height*4, "rgba source"); err != nil {
		return nil, err
	}
	dual := make([]byte, width*height*8)
	ComposeRect(src, width, dual, nil, image.Rect(0, 0, width, height), mode)
	return dual, nil
}

// DecomposeRect recovers straight-alpha pixels for rect of a dual-channel
// frame. dual is (2*width)×h RGBA, dst is width×h RGBA.
func DecomposeRect(dual []byte, width int, dst []byte, rect image.Rectangle, matte Side) {
	colorX, matteX := offsets(matte, width)
	dualStride := width * 8
	dstStride := width * 4

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		dualRow := dual[y*dualStride : (y+1)*dualStride]
		dstRow := dst[y*dstStride : (y+1)*dstStride]
		for x := rect.Min.X; x < rect.Max.X; x++ {
			c := dualRow[(colorX+x)*4 : (colorX+x)*4+4 : (colorX+x)*4+4]
			a := dualRow[(matteX+x)*4]
			d := dstRow[x*4 : x*4+4 : x*4+4]
			if a == 0 {
				d[0], d[1], d[2], d[3] = 0, 0, 0, 0
				continue
			}
			d[0] = Unpremultiply(c[0], a)
			d[1] = Unpremultiply(c[1], a)
			d[2] = Unpremultiply(c[2], a)
			d[3] = a
		}
	}
}

// DecomposeDualChannel converts a dual-channel frame of fullWidth×height
// into a straight-alpha RGBA frame of half the width.
func DecomposeDualChannel(dual []byte, fullWidth, height int, matte Side) ([]byte, error) {
	if fullWidth <= 0 || fullWidth%2 != 0 {
		return nil, services.Wrap(services.ErrUnsupportedCarrier, "alphacodec", "decompose",
			fmt.Sprintf("frame width %d is not an even number of pixels", fullWidth), nil)
	}
	if err := checkSize(len(dual), fullWidth*height*4, "dual-channel frame"); err != nil {
		return nil, err
	}
	width := fullWidth / 2
	dst := make([]byte, width*height*4)
	DecomposeRect(dual, width, dst, image.Rect(0, 0, width, height), matte)
	return dst, nil
}

// FlattenRect composites rect of an RGBA image onto black. rect is in the
// coordinate space of the image being flattened; stride is its width.
func FlattenRect(rgba []byte, width int, rgb []byte, rect image.Rectangle) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			i := (y*width + x) * 4
			o := (y*width + x) * 3
			flattenPixel(rgb[o:o+3], rgba[i], rgba[i+1], rgba[i+2], rgba[i+3])
		}
	}
}

// FlattenToBlackBackground composites a full dual-channel RGBA frame onto
// black and returns packed RGB. The matte half is opaque and passes through.
func FlattenToBlackBackground(dual []byte, fullWidth, height int) ([]byte, error) {
	if err := checkSize(len(dual), fullWidth*height*4, "dual-channel frame"); err != nil {
		return nil, err
	}
	rgb := make([]byte, fullWidth*height*3)
	FlattenRect(dual, fullWidth, rgb, image.Rect(0, 0, fullWidth, height))
	return rgb, nil
}

func flattenPixel(dst []byte, r, g, b, a uint8) {
	switch a {
	case 255:
		dst[0], dst[1], dst[2] = r, g, b
	case 0:
		dst[0], dst[1], dst[2] = 0, 0, 0
	default:
		dst[0], dst[1], dst[2] = Premultiply(r, a), Premultiply(g, a), Premultiply(b, a)
	}
}

func checkSize(got, want int, label string) error {
	if want <= 0 || got < want {
		return services.Wrap(services.ErrValidation, "alphacodec", label,
			fmt.Sprintf("have %d bytes, need %d", got, want), nil)
	}
	return nil
}
