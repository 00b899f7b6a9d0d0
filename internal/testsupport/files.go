package testsupport

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Gradient returns packed straight RGBA pixels whose color and alpha vary
// across the frame, seeded so consecutive frames differ.
func Gradient(width, height, seed int) []byte {
	pix := make([]byte, width*height*4)
	for y := range height {
		for x := range width {
			i := (y*width + x) * 4
			pix[i] = byte((x*7 + seed) % 256)
			pix[i+1] = byte((y*5 + seed*3) % 256)
			pix[i+2] = byte((x + y + seed) % 256)
			pix[i+3] = byte((x*255/max(1, width-1) + seed) % 256)
		}
	}
	return pix
}

// WritePNG stores straight RGBA pixels as a PNG file.
func WritePNG(t testing.TB, path string, pix []byte, width, height int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, pix)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// Solid returns a frame filled with one straight RGBA color.
func Solid(width, height int, c color.NRGBA) []byte {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
	return pix
}
