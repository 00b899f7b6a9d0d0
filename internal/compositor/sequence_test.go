package compositor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"alphapack/internal/services"
)

func TestSequenceDeliversInOrder(t *testing.T) {
	var got []uint32
	seq := NewSequence(context.Background(), 4, func(index uint32, value int) error {
		if int(index)*10 != value {
			t.Errorf("index %d carried %d", index, value)
		}
		got = append(got, index)
		return nil
	}, nil)

	for i := uint32(0); i < 20; i++ {
		delay := time.Duration(20-i) * time.Millisecond / 4
		err := seq.Go(i, func(context.Context) (int, error) {
			time.Sleep(delay)
			return int(i) * 10, nil
		})
		if err != nil {
			t.Fatalf("go %d: %v", i, err)
		}
	}
	if err := seq.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("delivered %d, want 20", len(got))
	}
	for i, idx := range got {
		if idx != uint32(i) {
			t.Fatalf("delivery order = %v", got)
		}
	}
	if seq.Delivered() != 20 {
		t.Fatalf("Delivered = %d", seq.Delivered())
	}
}

func TestSequenceBoundsInFlight(t *testing.T) {
	var running, peak atomic.Int32
	seq := NewSequence(context.Background(), 3, func(uint32, struct{}) error { return nil }, nil)
	for i := uint32(0); i < 12; i++ {
		if err := seq.Go(i, func(context.Context) (struct{}, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		}); err != nil {
			t.Fatalf("go: %v", err)
		}
	}
	if err := seq.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if peak.Load() > 3 {
		t.Fatalf("peak in flight = %d, want <= 3", peak.Load())
	}
}

func TestSequenceFailureReleasesUndelivered(t *testing.T) {
	boom := errors.New("frame failed")
	var released atomic.Int32
	var delivered []uint32
	seq := NewSequence(context.Background(), 8, func(index uint32, _ int) error {
		delivered = append(delivered, index)
		return nil
	}, func(int) { released.Add(1) })

	gate := make(chan struct{})
	for i := uint32(0); i < 4; i++ {
		err := seq.Go(i, func(context.Context) (int, error) {
			switch i {
			case 0:
				<-gate
				return 0, boom
			default:
				return int(i), nil
			}
		})
		if err != nil {
			t.Fatalf("go %d: %v", i, err)
		}
	}
	time.Sleep(10 * time.Millisecond)
	close(gate)
	if err := seq.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if len(delivered) != 0 {
		t.Fatalf("delivered %v after failure of frame 0", delivered)
	}
	if released.Load() != 3 {
		t.Fatalf("released = %d, want 3", released.Load())
	}
	if err := seq.Go(4, func(context.Context) (int, error) { return 4, nil }); !errors.Is(err, boom) {
		t.Fatalf("Go after failure = %v", err)
	}
}

func TestSequenceCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	seq := NewSequence(ctx, 2, func(uint32, int) error { return nil }, nil)
	if err := seq.Go(0, func(context.Context) (int, error) { return 0, nil }); err != nil {
		t.Fatalf("go: %v", err)
	}
	cancel()
	err := seq.Go(1, func(context.Context) (int, error) { return 1, nil })
	if !services.IsCancellation(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if err := seq.Wait(); !errors.Is(err, services.ErrUserCancelled) {
		t.Fatalf("wait = %v", err)
	}
}

func TestSequenceSinkError(t *testing.T) {
	sinkErr := errors.New("disk full")
	seq := NewSequence(context.Background(), 1, func(index uint32, _ int) error {
		if index == 1 {
			return sinkErr
		}
		return nil
	}, nil)
	for i := uint32(0); i < 3; i++ {
		if err := seq.Go(i, func(context.Context) (int, error) { return int(i), nil }); err != nil {
			if !errors.Is(err, sinkErr) {
				t.Fatalf("go %d: %v", i, err)
			}
			break
		}
	}
	if err := seq.Wait(); !errors.Is(err, sinkErr) {
		t.Fatalf("wait = %v", err)
	}
	if seq.Delivered() != 1 {
		t.Fatalf("Delivered = %d, want 1", seq.Delivered())
	}
}
