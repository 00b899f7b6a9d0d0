package compositor

import "image"

// DefaultBlockSize is the edge length of a compositing block in pixels.
const DefaultBlockSize = 128

// Partition splits a width×height frame into row-major blocks of blockSize,
// truncating the last row and column to the remainder.
func Partition(width, height, blockSize int) []image.Rectangle {
	if width <= 0 || height <= 0 {
		return nil
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	cols := (width + blockSize - 1) / blockSize
	rows := (height + blockSize - 1) / blockSize
	blocks := make([]image.Rectangle, 0, cols*rows)
	for y := 0; y < height; y += blockSize {
		for x := 0; x < width; x += blockSize {
			blocks = append(blocks, image.Rect(x, y, min(x+blockSize, width), min(y+blockSize, height)))
		}
	}
	return blocks
}
