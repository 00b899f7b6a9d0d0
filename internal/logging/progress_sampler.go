package logging

import (
	"strings"
	"sync"
)

// ProgressSampler thins per-frame progress to one line per percentage
// bucket. A stage change always emits and restarts the buckets. It is safe
// for concurrent use by frame workers.
type ProgressSampler struct {
	bucketSize float64

	mu         sync.Mutex
	lastStage  string
	lastBucket int
}

// NewProgressSampler returns a sampler with bucketSize percent buckets
// (10 when bucketSize is not positive).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// FramePercent converts frame counts to a percentage. An unknown total
// yields -1.
func FramePercent(done, total int) float64 {
	if total <= 0 {
		return -1
	}
	return float64(min(done, total)) * 100 / float64(total)
}

// ShouldLog reports whether a progress event should be logged. A negative
// percent means unknown and only stage changes emit.
func (s *ProgressSampler) ShouldLog(percent float64, stage string) bool {
	if s == nil {
		return true
	}
	stage = strings.TrimSpace(stage)
	s.mu.Lock()
	defer s.mu.Unlock()

	emit := false
	if stage != "" && stage != s.lastStage {
		s.lastStage = stage
		s.lastBucket = -1
		emit = true
	}
	if percent < 0 {
		return emit
	}
	if bucket := int(min(percent, 100) / s.bucketSize); bucket > s.lastBucket {
		s.lastBucket = bucket
		emit = true
	}
	return emit
}

// Reset forgets the current stage and bucket.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.lastStage = ""
	s.lastBucket = -1
	s.mu.Unlock()
}
