package container

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the algorithm wrapping the serialized message.
type Compression int

const (
	CompressionZlib Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	default:
		return "zlib"
	}
}

// ParseCompression accepts "zlib" (also "deflate") or "zstd".
func ParseCompression(value string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "zlib", "deflate":
		return CompressionZlib, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionZlib, fmt.Errorf("unsupported compression %q", value)
	}
}

// Compressor wraps one compression algorithm.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	// Decompress inflates data, failing once the output would exceed limit
	// bytes.
	Decompress(data []byte, limit int64) ([]byte, error)
	Type() Compression
}

// NewCompressor returns the compressor for c. Level 0 selects the
// algorithm default.
func NewCompressor(c Compression, level int) (Compressor, error) {
	switch c {
	case CompressionZlib:
		if level == 0 {
			level = zlib.DefaultCompression
		}
		if level < zlib.HuffmanOnly || level > zlib.BestCompression {
			return nil, fmt.Errorf("zlib level %d out of range", level)
		}
		return zlibCompressor{level: level}, nil
	case CompressionZstd:
		enc := zstd.SpeedDefault
		if level != 0 {
			enc = zstd.EncoderLevelFromZstd(level)
		}
		return zstdCompressor{level: enc}, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}

// zstdMagic is the little-endian zstd frame magic number.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// detectCompression inspects the frame header of data.
func detectCompression(data []byte) (Compression, bool) {
	if bytes.HasPrefix(data, zstdMagic) {
		return CompressionZstd, true
	}
	if len(data) >= 2 && data[0]&0x0f == 8 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0 {
		return CompressionZlib, true
	}
	return 0, false
}

type zlibCompressor struct {
	level int
}

func (z zlibCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, z.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (z zlibCompressor) Decompress(data []byte, limit int64) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("inflated size exceeds %d bytes", limit)
	}
	return out, nil
}

func (zlibCompressor) Type() Compression { return CompressionZlib }

type zstdCompressor struct {
	level zstd.EncoderLevel
}

func (z zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(z.level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (zstdCompressor) Decompress(data []byte, limit int64) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(uint64(limit)))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

func (zstdCompressor) Type() Compression { return CompressionZstd }
