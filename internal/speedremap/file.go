package speedremap

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

type tableFile struct {
	TotalFrames uint32     `toml:"total_frames"`
	SourceFPS   float64    `toml:"source_fps"`
	Keyframes   []Keyframe `toml:"keyframe"`
}

// Load reads a table saved by Save.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read remap table: %w", err)
	}
	var file tableFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse remap table %s: %w", path, err)
	}
	table, err := FromKeyframes(file.TotalFrames, file.SourceFPS, file.Keyframes)
	if err != nil {
		return nil, fmt.Errorf("remap table %s: %w", path, err)
	}
	return table, nil
}

// Save writes the table as TOML.
func (t *Table) Save(path string) error {
	data, err := toml.Marshal(tableFile{
		TotalFrames: t.totalFrames,
		SourceFPS:   t.sourceFPS,
		Keyframes:   t.keys,
	})
	if err != nil {
		return fmt.Errorf("encode remap table: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create remap directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write remap table: %w", err)
	}
	return nil
}

// Rebase returns a copy of the table scaled to a clip of totalFrames frames.
// Source frames are scaled proportionally so a table authored against one
// rendition of a clip can be applied to another.
func (t *Table) Rebase(totalFrames uint32, sourceFPS float64) (*Table, error) {
	if totalFrames == t.totalFrames {
		out := &Table{keys: t.Keyframes(), totalFrames: totalFrames, sourceFPS: sourceFPS}
		return out, nil
	}
	keys := t.Keyframes()
	if t.totalFrames > 0 {
		if err := rescaleSourceFrames(keys, float64(totalFrames)/float64(t.totalFrames), totalFrames); err != nil {
			return nil, err
		}
	}
	return FromKeyframes(totalFrames, sourceFPS, keys)
}

// rescaleSourceFrames scales every keyframe's source frame. Keyframes that
// round onto a frame already taken move to the nearest free frame, away from
// the keyframe they collided with. Endpoints are placed first so they keep
// their scaled frames.
func rescaleSourceFrames(keys []Keyframe, scale float64, totalFrames uint32) error {
	if len(keys) > int(totalFrames)+1 {
		return fmt.Errorf("%w: %d keyframes do not fit %d source frames", ErrDuplicateSourceFrame, len(keys), totalFrames+1)
	}
	original := make([]uint32, len(keys))
	order := make([]int, 0, len(keys))
	for i, k := range keys {
		original[i] = k.SourceFrame
		if k.Endpoint {
			order = append(order, i)
		}
	}
	for i, k := range keys {
		if !k.Endpoint {
			order = append(order, i)
		}
	}

	owner := make(map[uint32]int, len(keys))
	for _, i := range order {
		want := min(uint32(math.Round(float64(original[i])*scale)), totalFrames)
		upFirst := true
		if j, taken := owner[want]; taken {
			upFirst = original[i] >= original[j]
		}
		frame, ok := nearestFreeFrame(want, totalFrames, owner, upFirst)
		if !ok {
			return fmt.Errorf("%w: keyframe at %v has no free source frame", ErrDuplicateSourceFrame, keys[i].Position)
		}
		keys[i].SourceFrame = frame
		owner[frame] = i
	}
	return nil
}

func nearestFreeFrame(want, totalFrames uint32, owner map[uint32]int, upFirst bool) (uint32, bool) {
	free := func(f int64) bool {
		if f < 0 || f > int64(totalFrames) {
			return false
		}
		_, taken := owner[uint32(f)]
		return !taken
	}
	step := int64(1)
	if !upFirst {
		step = -1
	}
	for d := int64(0); d <= int64(totalFrames); d++ {
		if f := int64(want) + step*d; free(f) {
			return uint32(f), true
		}
		if f := int64(want) - step*d; free(f) {
			return uint32(f), true
		}
	}
	return 0, false
}
