package container

import (
	"fmt"
	"iter"
	"slices"

	"alphapack/internal/services"
)

// FormatVersion is written into every container produced by this package.
const FormatVersion = "2.0.0"

// Document is the in-memory form of a container file.
type Document struct {
	Version    string
	Width      uint32
	Height     uint32
	FPS        float32
	FrameCount uint32
	Images     *Images
	Audios     []AudioClip
	Sprites    []Sprite
}

// AudioClip is an embedded audio segment aligned to the frame timeline.
type AudioClip struct {
	Key         string
	StartFrame  uint32
	EndFrame    uint32
	StartTimeMs uint32
	TotalTimeMs uint32
	Data        []byte
}

// Sprite places one image on the timeline.
type Sprite struct {
	ImageKey string
	Frames   []SpriteFrame
}

// SpriteFrame is the sprite state on one frame. Alpha 0 hides it.
type SpriteFrame struct {
	Alpha float32
	X     float32
	Y     float32
	W     float32
	H     float32
}

// NewDocument returns an empty document for the given canvas.
func NewDocument(width, height uint32, fps float32) *Document {
	return &Document{
		Version: FormatVersion,
		Width:   width,
		Height:  height,
		FPS:     fps,
		Images:  NewImages(),
	}
}

// FrameKey is the image key used for the frame at index.
func FrameKey(index int) string {
	return fmt.Sprintf("frame_%05d", index)
}

// AddFrame appends an encoded frame image and bumps FrameCount.
func (d *Document) AddFrame(data []byte) string {
	if d.Images == nil {
		d.Images = NewImages()
	}
	key := FrameKey(int(d.FrameCount))
	d.Images.Set(key, data)
	d.FrameCount++
	return key
}

// BuildFrameSprites replaces Sprites with one full-canvas sprite per frame
// image, each visible only on its own frame. Playback libraries that only
// understand sprite timelines use this to show frame-by-frame animation.
func (d *Document) BuildFrameSprites() {
	d.Sprites = d.Sprites[:0]
	for i := 0; i < int(d.FrameCount); i++ {
		key := FrameKey(i)
		if _, ok := d.Images.Get(key); !ok {
			continue
		}
		frames := make([]SpriteFrame, d.FrameCount)
		frames[i] = SpriteFrame{Alpha: 1, W: float32(d.Width), H: float32(d.Height)}
		d.Sprites = append(d.Sprites, Sprite{ImageKey: key, Frames: frames})
	}
}

// DurationMs returns the playback length in milliseconds.
func (d *Document) DurationMs() uint32 {
	if d.FPS <= 0 {
		return 0
	}
	return uint32(float64(d.FrameCount) * 1000 / float64(d.FPS))
}

// Validate checks references between sections.
func (d *Document) Validate() error {
	if d.FPS < 0 {
		return services.Wrap(services.ErrValidation, "container", "validate", fmt.Sprintf("negative fps %v", d.FPS), nil)
	}
	for _, clip := range d.Audios {
		if clip.EndFrame < clip.StartFrame {
			return services.Wrap(services.ErrValidation, "container", "validate",
				fmt.Sprintf("audio %q ends (%d) before it starts (%d)", clip.Key, clip.EndFrame, clip.StartFrame), nil)
		}
	}
	for _, sprite := range d.Sprites {
		if _, ok := d.Images.Get(sprite.ImageKey); !ok {
			return services.Wrap(services.ErrValidation, "container", "validate",
				fmt.Sprintf("sprite references missing image %q", sprite.ImageKey), nil)
		}
	}
	return nil
}

// Images is an insertion-ordered map of named image blobs.
type Images struct {
	keys   []string
	values map[string][]byte
}

// NewImages returns an empty map.
func NewImages() *Images {
	return &Images{values: make(map[string][]byte)}
}

// Set stores value under key. Replacing a key keeps its original position.
func (m *Images) Set(key string, value []byte) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *Images) Get(key string) ([]byte, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *Images) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
}

func (m *Images) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *Images) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// All iterates entries in insertion order.
func (m *Images) All() iter.Seq2[string, []byte] {
	return func(yield func(string, []byte) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// TotalBytes sums the sizes of all blobs.
func (m *Images) TotalBytes() int {
	total := 0
	for _, v := range m.All() {
		total += len(v)
	}
	return total
}
