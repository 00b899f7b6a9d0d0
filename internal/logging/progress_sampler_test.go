package logging

import (
	"sync"
	"testing"
)

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "compose") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSamplerStageChange(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(0, "compose") {
		t.Error("first stage should log")
	}
	if s.ShouldLog(0, "compose") {
		t.Error("same stage and percent should not log again")
	}
	if !s.ShouldLog(0, "encode") {
		t.Error("different stage should log")
	}
	if s.lastStage != "encode" {
		t.Errorf("lastStage = %q, want encode", s.lastStage)
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	var emitted []float64
	for _, pct := range []float64{1, 5, 9.9, 10, 15, 19, 20, 55, 56, 99, 100, 120} {
		if s.ShouldLog(pct, "") {
			emitted = append(emitted, pct)
		}
	}
	want := []float64{1, 10, 20, 55, 99, 100}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %v, want %v", emitted, want)
		}
	}
}

func TestProgressSamplerUnknownPercent(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(-1, "probe") {
		t.Error("stage change should log with unknown percent")
	}
	if s.ShouldLog(-1, "probe") {
		t.Error("unknown percent without stage change should not log")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(50, "compose")
	s.Reset()
	if !s.ShouldLog(50, "compose") {
		t.Error("expected log after reset")
	}
}

func TestFramePercent(t *testing.T) {
	tests := []struct {
		done, total int
		want        float64
	}{
		{0, 0, -1},
		{0, 4, 0},
		{1, 4, 25},
		{9, 4, 100},
	}
	for _, tc := range tests {
		if got := FramePercent(tc.done, tc.total); got != tc.want {
			t.Fatalf("FramePercent(%d, %d) = %v, want %v", tc.done, tc.total, got, tc.want)
		}
	}
}

func TestProgressSamplerConcurrentWorkers(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(0, "decompose")
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		emitted int
	)
	for frame := 1; frame <= 100; frame++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ShouldLog(FramePercent(frame, 100), "decompose") {
				mu.Lock()
				emitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	// Buckets 1..10 are each crossed at most once.
	if emitted > 10 {
		t.Fatalf("emitted %d lines for 10 buckets", emitted)
	}
}
