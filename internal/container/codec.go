package container

import (
	"fmt"

	"alphapack/internal/services"
)

// DefaultMaxDecodedSize caps the inflated message size accepted by Decode.
const DefaultMaxDecodedSize int64 = 1 << 30

type encodeOptions struct {
	compression Compression
	level       int
}

// EncodeOption customizes Encode.
type EncodeOption func(*encodeOptions)

// WithCompression selects the compressor and level (0 for default).
func WithCompression(c Compression, level int) EncodeOption {
	return func(o *encodeOptions) {
		o.compression = c
		o.level = level
	}
}

// Encode serializes and compresses doc. A document without images is valid.
func Encode(doc *Document, opts ...EncodeOption) ([]byte, error) {
	if doc == nil {
		return nil, services.Wrap(services.ErrValidation, "container", "encode", "nil document", nil)
	}
	options := encodeOptions{compression: CompressionZlib}
	for _, opt := range opts {
		opt(&options)
	}
	// Encode a shallow copy so the caller's document keeps its blank version.
	stamped := *doc
	if stamped.Version == "" {
		stamped.Version = FormatVersion
	}
	doc = &stamped
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	comp, err := NewCompressor(options.compression, options.level)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "container", "encode", "select compressor", err)
	}
	out, err := comp.Compress(marshalDocument(doc))
	if err != nil {
		return nil, fmt.Errorf("compress container: %w", err)
	}
	return out, nil
}

type decodeOptions struct {
	maxSize int64
}

// DecodeOption customizes Decode.
type DecodeOption func(*decodeOptions)

// WithMaxDecodedSize overrides DefaultMaxDecodedSize.
func WithMaxDecodedSize(n int64) DecodeOption {
	return func(o *decodeOptions) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// Decode inflates and parses a container. Any malformed input yields an
// error wrapping services.ErrDecode and no document.
func Decode(data []byte, opts ...DecodeOption) (*Document, error) {
	options := decodeOptions{maxSize: DefaultMaxDecodedSize}
	for _, opt := range opts {
		opt(&options)
	}
	kind, ok := detectCompression(data)
	if !ok {
		return nil, services.Wrap(services.ErrDecode, "container", "decode", "unrecognized compression header", nil)
	}
	comp, err := NewCompressor(kind, 0)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "container", "decode", "select decompressor", err)
	}
	raw, err := comp.Decompress(data, options.maxSize)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "container", "decode", "inflate "+kind.String(), err)
	}
	doc, err := unmarshalDocument(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "container", "decode", "parse message", err)
	}
	return doc, nil
}

// Info summarizes a decoded document for listings.
type Info struct {
	Version     string
	Width       uint32
	Height      uint32
	FPS         float32
	FrameCount  uint32
	DurationMs  uint32
	ImageCount  int
	ImageBytes  int
	AudioCount  int
	SpriteCount int
	Compression Compression
}

// Inspect decodes data and returns its summary.
func Inspect(data []byte) (Info, error) {
	doc, err := Decode(data)
	if err != nil {
		return Info{}, err
	}
	kind, _ := detectCompression(data)
	return Info{
		Version:     doc.Version,
		Width:       doc.Width,
		Height:      doc.Height,
		FPS:         doc.FPS,
		FrameCount:  doc.FrameCount,
		DurationMs:  doc.DurationMs(),
		ImageCount:  doc.Images.Len(),
		ImageBytes:  doc.Images.TotalBytes(),
		AudioCount:  len(doc.Audios),
		SpriteCount: len(doc.Sprites),
		Compression: kind,
	}, nil
}
