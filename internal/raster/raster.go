// Package raster converts straight-alpha RGBA byte slices to and from PNG.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Level maps to png.CompressionLevel.
type Level int

const (
	LevelDefault Level = iota
	LevelFast
	LevelBest
	LevelNone
)

// ParseLevel accepts default, fast, best or none.
func ParseLevel(value string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "default":
		return LevelDefault, nil
	case "fast", "speed":
		return LevelFast, nil
	case "best", "size":
		return LevelBest, nil
	case "none":
		return LevelNone, nil
	default:
		return LevelDefault, fmt.Errorf("unsupported png compression %q", value)
	}
}

func (l Level) png() png.CompressionLevel {
	switch l {
	case LevelFast:
		return png.BestSpeed
	case LevelBest:
		return png.BestCompression
	case LevelNone:
		return png.NoCompression
	default:
		return png.DefaultCompression
	}
}

type encoderPool struct {
	pool sync.Pool
}

func (p *encoderPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *encoderPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}

var sharedBuffers = &encoderPool{}

// EncodePNG encodes a width×height straight-alpha RGBA raster.
func EncodePNG(pix []byte, width, height int, level Level) ([]byte, error) {
	if width <= 0 || height <= 0 || len(pix) < width*height*4 {
		return nil, fmt.Errorf("encode png: %d bytes cannot hold %dx%d rgba", len(pix), width, height)
	}
	img := &image.NRGBA{Pix: pix[:width*height*4], Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level.png(), BufferPool: sharedBuffers}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG returns the straight-alpha RGBA pixels of a PNG image.
func DecodePNG(data []byte) ([]byte, int, int, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode png: %w", err)
	}
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && n.Stride == b.Dx()*4 && b.Min == (image.Point{}) {
		return n.Pix, b.Dx(), b.Dy(), nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst.Pix, b.Dx(), b.Dy(), nil
}

// ListPNG returns the PNG files in dir in natural order, so frame_2.png
// sorts before frame_10.png.
func ListPNG(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		names = append(names, e.Name())
	}
	slices.SortFunc(names, naturalCompare)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

func naturalCompare(a, b string) int {
	for a != "" && b != "" {
		ra, rb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ra) && unicode.IsDigit(rb) {
			na, restA := leadingNumber(a)
			nb, restB := leadingNumber(b)
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			a, b = restA, restB
			continue
		}
		if ra != rb {
			if ra < rb {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func leadingNumber(s string) (uint64, string) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		n = ^uint64(0)
	}
	return n, s[end:]
}
