package container

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldVersion    protowire.Number = 1
	fieldWidth      protowire.Number = 2
	fieldHeight     protowire.Number = 3
	fieldFPS        protowire.Number = 4
	fieldFrameCount protowire.Number = 5
	fieldImages     protowire.Number = 6
	fieldAudios     protowire.Number = 7
	fieldSprites    protowire.Number = 8
)

var errWireType = errors.New("unexpected wire type")

func marshalDocument(d *Document) []byte {
	var b []byte
	b = appendString(b, fieldVersion, d.Version)
	b = appendVarint(b, fieldWidth, uint64(d.Width))
	b = appendVarint(b, fieldHeight, uint64(d.Height))
	b = appendFloat(b, fieldFPS, d.FPS)
	b = appendVarint(b, fieldFrameCount, uint64(d.FrameCount))

	for key, value := range d.Images.All() {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, key)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, value)
		b = appendMessage(b, fieldImages, entry)
	}
	for _, clip := range d.Audios {
		b = appendMessage(b, fieldAudios, marshalAudio(clip))
	}
	for _, sprite := range d.Sprites {
		b = appendMessage(b, fieldSprites, marshalSprite(sprite))
	}
	return b
}

func marshalAudio(clip AudioClip) []byte {
	var b []byte
	b = appendString(b, 1, clip.Key)
	b = appendVarint(b, 2, uint64(clip.StartFrame))
	b = appendVarint(b, 3, uint64(clip.EndFrame))
	b = appendVarint(b, 4, uint64(clip.StartTimeMs))
	b = appendVarint(b, 5, uint64(clip.TotalTimeMs))
	if len(clip.Data) > 0 {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, clip.Data)
	}
	return b
}

func marshalSprite(sprite Sprite) []byte {
	var b []byte
	b = appendString(b, 1, sprite.ImageKey)
	for _, f := range sprite.Frames {
		var fb []byte
		fb = appendFloat(fb, 1, f.Alpha)
		fb = appendFloat(fb, 2, f.X)
		fb = appendFloat(fb, 3, f.Y)
		fb = appendFloat(fb, 4, f.W)
		fb = appendFloat(fb, 5, f.H)
		b = appendMessage(b, 2, fb)
	}
	return b
}

// Zero scalars are omitted, matching proto3 encoding.

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// fieldFunc handles one decoded field; it returns the bytes consumed or an
// error.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk iterates the fields of a message, skipping any field handle reports
// as unhandled by returning -1.
func walk(b []byte, handle fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := handle(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeUint32(typ protowire.Type, b []byte, dst *uint32) (int, error) {
	if typ != protowire.VarintType {
		return 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("value %d overflows uint32", v)
	}
	*dst = uint32(v)
	return n, nil
}

func consumeFloat(typ protowire.Type, b []byte, dst *float32) (int, error) {
	if typ != protowire.Fixed32Type {
		return 0, errWireType
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = math.Float32frombits(v)
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func unmarshalDocument(b []byte) (*Document, error) {
	d := &Document{Images: NewImages()}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldVersion:
			v, n, err := consumeBytes(typ, b)
			d.Version = string(v)
			return n, err
		case fieldWidth:
			return consumeUint32(typ, b, &d.Width)
		case fieldHeight:
			return consumeUint32(typ, b, &d.Height)
		case fieldFPS:
			return consumeFloat(typ, b, &d.FPS)
		case fieldFrameCount:
			return consumeUint32(typ, b, &d.FrameCount)
		case fieldImages:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			key, value, err := unmarshalImage(v)
			if err != nil {
				return 0, err
			}
			d.Images.Set(key, value)
			return n, nil
		case fieldAudios:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			clip, err := unmarshalAudio(v)
			if err != nil {
				return 0, err
			}
			d.Audios = append(d.Audios, clip)
			return n, nil
		case fieldSprites:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			sprite, err := unmarshalSprite(v)
			if err != nil {
				return 0, err
			}
			d.Sprites = append(d.Sprites, sprite)
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func unmarshalImage(b []byte) (string, []byte, error) {
	var key string
	value := []byte{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			key = string(v)
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			value = clone(v)
			return n, err
		}
		return -1, nil
	})
	return key, value, err
}

func unmarshalAudio(b []byte) (AudioClip, error) {
	var clip AudioClip
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			clip.Key = string(v)
			return n, err
		case 2:
			return consumeUint32(typ, b, &clip.StartFrame)
		case 3:
			return consumeUint32(typ, b, &clip.EndFrame)
		case 4:
			return consumeUint32(typ, b, &clip.StartTimeMs)
		case 5:
			return consumeUint32(typ, b, &clip.TotalTimeMs)
		case 6:
			v, n, err := consumeBytes(typ, b)
			clip.Data = clone(v)
			return n, err
		}
		return -1, nil
	})
	return clip, err
}

func unmarshalSprite(b []byte) (Sprite, error) {
	var sprite Sprite
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			sprite.ImageKey = string(v)
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var f SpriteFrame
			err = walk(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case 1:
					return consumeFloat(typ, b, &f.Alpha)
				case 2:
					return consumeFloat(typ, b, &f.X)
				case 3:
					return consumeFloat(typ, b, &f.Y)
				case 4:
					return consumeFloat(typ, b, &f.W)
				case 5:
					return consumeFloat(typ, b, &f.H)
				}
				return -1, nil
			})
			if err != nil {
				return 0, err
			}
			sprite.Frames = append(sprite.Frames, f)
			return n, nil
		}
		return -1, nil
	})
	return sprite, err
}

// clone detaches decoded blobs from the inflated message buffer.
func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
