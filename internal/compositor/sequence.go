package compositor

import (
	"context"
	"fmt"
	"sync"

	"alphapack/internal/services"
)

// FrameJob produces the result for one frame.
type FrameJob[T any] func(ctx context.Context) (T, error)

// Sequence runs frame jobs with bounded concurrency and hands results to a
// sink strictly in increasing index order. Indices passed to Go must be
// contiguous starting at zero.
//
// The first failure (job error, sink error or cancellation) stops further
// dispatch; jobs already running drain and their results are passed to the
// release function instead of the sink. The sink owns every value it is
// given, including one it rejects with an error.
type Sequence[T any] struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sink    func(index uint32, value T) error
	release func(T)
	slots   chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	next    uint32
	pending map[uint32]T
	err     error
}

// NewSequence creates a driver that allows window frames in flight. release
// may be nil when results hold no resources.
func NewSequence[T any](ctx context.Context, window int, sink func(index uint32, value T) error, release func(T)) *Sequence[T] {
	if window <= 0 {
		window = 1
	}
	if release == nil {
		release = func(T) {}
	}
	inner, cancel := context.WithCancel(ctx)
	return &Sequence[T]{
		ctx:     inner,
		cancel:  cancel,
		sink:    sink,
		release: release,
		slots:   make(chan struct{}, window),
		pending: make(map[uint32]T),
	}
}

// Go dispatches the job for frame index, blocking while the window is full.
// It returns the sequence error once one has occurred.
func (s *Sequence[T]) Go(index uint32, job FrameJob[T]) error {
	if err := s.Err(); err != nil {
		return err
	}
	select {
	case s.slots <- struct{}{}:
	case <-s.ctx.Done():
		return s.fail(services.Wrap(services.ErrUserCancelled, "compositor", "sequence",
			fmt.Sprintf("frame %d not dispatched", index), s.ctx.Err()))
	}
	if err := s.ctx.Err(); err != nil {
		<-s.slots
		return s.fail(services.Wrap(services.ErrUserCancelled, "compositor", "sequence",
			fmt.Sprintf("frame %d not dispatched", index), err))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slots }()
		value, err := job(s.ctx)
		if err != nil {
			s.fail(err)
			return
		}
		s.deliver(index, value)
	}()
	return nil
}

// Wait blocks until every dispatched job has finished and returns the first
// error. Results that could not be delivered in order are released.
func (s *Sequence[T]) Wait() error {
	s.wg.Wait()
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil && len(s.pending) > 0 {
		s.err = fmt.Errorf("frame sequence has a gap at index %d", s.next)
	}
	for idx, value := range s.pending {
		s.release(value)
		delete(s.pending, idx)
	}
	return s.err
}

// Delivered reports how many results have reached the sink.
func (s *Sequence[T]) Delivered() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Err returns the first failure recorded so far.
func (s *Sequence[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Sequence[T]) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
		s.cancel()
	}
	return s.err
}

func (s *Sequence[T]) deliver(index uint32, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		s.release(value)
		return
	}
	s.pending[index] = value
	for {
		v, ok := s.pending[s.next]
		if !ok {
			return
		}
		delete(s.pending, s.next)
		if err := s.sink(s.next, v); err != nil {
			s.err = fmt.Errorf("frame %d: %w", s.next, err)
			s.cancel()
			for idx, rest := range s.pending {
				s.release(rest)
				delete(s.pending, idx)
			}
			return
		}
		s.next++
	}
}
