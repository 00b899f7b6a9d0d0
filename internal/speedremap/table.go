package speedremap

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrPositionTaken        = errors.New("speedremap: a keyframe already exists at that position")
	ErrDuplicateSourceFrame = errors.New("speedremap: source frame already used by another keyframe")
	ErrEndpoint             = errors.New("speedremap: endpoints cannot be deleted")
	ErrOutOfBounds          = errors.New("speedremap: value outside the allowed range")
	ErrIndex                = errors.New("speedremap: keyframe index out of range")
)

// Keyframe maps a normalized output position to a source frame.
type Keyframe struct {
	SourceFrame uint32  `toml:"source_frame"`
	Position    float64 `toml:"position"`
	Endpoint    bool    `toml:"endpoint"`
}

// Table is an ordered keyframe set for one source clip.
type Table struct {
	keys        []Keyframe
	totalFrames uint32
	sourceFPS   float64
}

// New returns the identity table for a clip of totalFrames frames.
func New(totalFrames uint32, sourceFPS float64) *Table {
	t := &Table{totalFrames: totalFrames, sourceFPS: sourceFPS}
	t.Reset()
	return t
}

// FromKeyframes validates and adopts an explicit keyframe list. The list is
// sorted by position; the outermost entries become the endpoints.
func FromKeyframes(totalFrames uint32, sourceFPS float64, keys []Keyframe) (*Table, error) {
	if len(keys) < 2 {
		return nil, fmt.Errorf("%w: need at least two keyframes, got %d", ErrOutOfBounds, len(keys))
	}
	sorted := append([]Keyframe(nil), keys...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	seen := make(map[uint32]struct{}, len(sorted))
	for i, k := range sorted {
		if k.Position < 0 || k.Position > 1 || math.IsNaN(k.Position) {
			return nil, fmt.Errorf("%w: position %v", ErrOutOfBounds, k.Position)
		}
		if k.SourceFrame > totalFrames {
			return nil, fmt.Errorf("%w: source frame %d exceeds %d", ErrOutOfBounds, k.SourceFrame, totalFrames)
		}
		if i > 0 && k.Position == sorted[i-1].Position {
			return nil, fmt.Errorf("%w: %v", ErrPositionTaken, k.Position)
		}
		if _, dup := seen[k.SourceFrame]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateSourceFrame, k.SourceFrame)
		}
		seen[k.SourceFrame] = struct{}{}
		sorted[i].Endpoint = i == 0 || i == len(sorted)-1
	}
	return &Table{keys: sorted, totalFrames: totalFrames, sourceFPS: sourceFPS}, nil
}

// Reset restores the two default endpoints spanning the whole clip.
func (t *Table) Reset() {
	t.keys = []Keyframe{
		{SourceFrame: 0, Position: 0, Endpoint: true},
		{SourceFrame: t.totalFrames, Position: 1, Endpoint: true},
	}
}

// TotalFrames reports the source clip length the table was built for.
func (t *Table) TotalFrames() uint32 { return t.totalFrames }

// SourceFPS reports the source clip frame rate (0 when unknown).
func (t *Table) SourceFPS() float64 { return t.sourceFPS }

// Len reports the number of keyframes.
func (t *Table) Len() int { return len(t.keys) }

// Keyframes returns a copy of the keyframes in position order.
func (t *Table) Keyframes() []Keyframe {
	return append([]Keyframe(nil), t.keys...)
}

// IsIdentity reports whether the table is exactly the default two-endpoint
// mapping, in which case output frame i is source frame i.
func (t *Table) IsIdentity() bool {
	if len(t.keys) != 2 {
		return false
	}
	first, last := t.keys[0], t.keys[1]
	return first.Position == 0 && first.SourceFrame == 0 &&
		last.Position == 1 && last.SourceFrame == t.totalFrames
}

// Add inserts an interior keyframe. The position must lie strictly between
// the endpoints and not collide with an existing keyframe.
func (t *Table) Add(position float64, sourceFrame uint32) (int, error) {
	first, last := t.keys[0], t.keys[len(t.keys)-1]
	if !(position > first.Position && position < last.Position) {
		return -1, fmt.Errorf("%w: position %v must lie in (%v, %v)", ErrOutOfBounds, position, first.Position, last.Position)
	}
	if sourceFrame > t.totalFrames {
		return -1, fmt.Errorf("%w: source frame %d exceeds %d", ErrOutOfBounds, sourceFrame, t.totalFrames)
	}
	idx := sort.Search(len(t.keys), func(i int) bool { return t.keys[i].Position >= position })
	if idx < len(t.keys) && t.keys[idx].Position == position {
		return -1, fmt.Errorf("%w: %v", ErrPositionTaken, position)
	}
	if t.indexOfSource(sourceFrame) >= 0 {
		return -1, fmt.Errorf("%w: %d", ErrDuplicateSourceFrame, sourceFrame)
	}
	t.keys = append(t.keys, Keyframe{})
	copy(t.keys[idx+1:], t.keys[idx:])
	t.keys[idx] = Keyframe{SourceFrame: sourceFrame, Position: position}
	return idx, nil
}

// AddAt inserts a keyframe at position whose source frame is the current
// interpolated value, so the mapping is unchanged until the keyframe is edited.
func (t *Table) AddAt(position float64) (int, error) {
	return t.Add(position, t.FrameAt(position))
}

// Move relocates keyframe index to a new position bounded by its neighbours.
// Endpoints may move but stay within [0, 1].
func (t *Table) Move(index int, position float64) error {
	if index < 0 || index >= len(t.keys) {
		return fmt.Errorf("%w: %d", ErrIndex, index)
	}
	lower, upper := 0.0, 1.0
	if index > 0 {
		lower = t.keys[index-1].Position
	}
	if index < len(t.keys)-1 {
		upper = t.keys[index+1].Position
	}
	if position < 0 || position > 1 || math.IsNaN(position) {
		return fmt.Errorf("%w: position %v", ErrOutOfBounds, position)
	}
	if (index > 0 && position <= lower) || (index < len(t.keys)-1 && position >= upper) {
		return fmt.Errorf("%w: position %v must stay between neighbours %v and %v", ErrOutOfBounds, position, lower, upper)
	}
	t.keys[index].Position = position
	return nil
}

// Delete removes an interior keyframe.
func (t *Table) Delete(index int) error {
	if index < 0 || index >= len(t.keys) {
		return fmt.Errorf("%w: %d", ErrIndex, index)
	}
	if t.keys[index].Endpoint {
		return ErrEndpoint
	}
	t.keys = append(t.keys[:index], t.keys[index+1:]...)
	return nil
}

// SetSourceFrame edits the source frame of keyframe index directly.
func (t *Table) SetSourceFrame(index int, sourceFrame uint32) error {
	if index < 0 || index >= len(t.keys) {
		return fmt.Errorf("%w: %d", ErrIndex, index)
	}
	if sourceFrame > t.totalFrames {
		return fmt.Errorf("%w: source frame %d exceeds %d", ErrOutOfBounds, sourceFrame, t.totalFrames)
	}
	if other := t.indexOfSource(sourceFrame); other >= 0 && other != index {
		return fmt.Errorf("%w: %d", ErrDuplicateSourceFrame, sourceFrame)
	}
	t.keys[index].SourceFrame = sourceFrame
	return nil
}

func (t *Table) indexOfSource(sourceFrame uint32) int {
	for i, k := range t.keys {
		if k.SourceFrame == sourceFrame {
			return i
		}
	}
	return -1
}
