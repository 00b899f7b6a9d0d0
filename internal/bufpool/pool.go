package bufpool

import (
	"fmt"
	"math/bits"
	"sync"

	"alphapack/internal/services"
)

const (
	// MinCapacity is the smallest capacity handed out.
	MinCapacity = 1024
	// DefaultMaxPooled is the largest capacity kept on a free list.
	DefaultMaxPooled = 50 << 20
	// DefaultClassCap bounds the free list of each size class.
	DefaultClassCap = 50
	// DefaultAllocLimit rejects requests that can only end in an OOM kill.
	DefaultAllocLimit = 2 << 30
)

// Buffer is an owned byte buffer with a fixed capacity and a logical length.
type Buffer struct {
	data   []byte
	n      int
	pooled bool
	owner  *Pool
}

// Bytes returns the logical contents.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data[:b.n]
}

// Len reports the logical length.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.n
}

// Cap reports the fixed capacity.
func (b *Buffer) Cap() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Stats summarizes pool activity.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Drops     uint64
	Oversized uint64
	Pooled    map[int]int
}

// Option customizes a Pool.
type Option func(*Pool)

// WithMaxPooled overrides the pooling ceiling.
func WithMaxPooled(size int) Option {
	return func(p *Pool) {
		if size >= MinCapacity {
			p.maxPooled = size
		}
	}
}

// WithClassCap overrides the per-class free list bound.
func WithClassCap(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.classCap = n
		}
	}
}

// WithAllocLimit overrides the hard allocation limit.
func WithAllocLimit(size int) Option {
	return func(p *Pool) {
		if size > 0 {
			p.allocLimit = size
		}
	}
}

// Pool hands out and recycles Buffers. The zero value is not usable; call New.
type Pool struct {
	mu         sync.Mutex
	free       map[int][]*Buffer
	maxPooled  int
	classCap   int
	allocLimit int

	hits, misses, drops, oversized uint64
}

// New constructs an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		free:       make(map[int][]*Buffer),
		maxPooled:  DefaultMaxPooled,
		classCap:   DefaultClassCap,
		allocLimit: DefaultAllocLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SizeClass returns the capacity Acquire would hand out for minSize, and
// whether that capacity is eligible for pooling.
func (p *Pool) SizeClass(minSize int) (int, bool) {
	if minSize < MinCapacity {
		minSize = MinCapacity
	}
	class := nextPowerOfTwo(minSize)
	if class > p.maxPooled || class <= 0 {
		return minSize, false
	}
	return class, true
}

// Acquire returns a buffer with at least minSize bytes of capacity and a
// logical length of minSize. Recycled buffers are always zero-filled.
func (p *Pool) Acquire(minSize int) (*Buffer, error) {
	if minSize < 0 || minSize > p.allocLimit {
		return nil, services.Wrap(services.ErrOutOfMemory, "bufpool", "acquire",
			fmt.Sprintf("request of %d bytes exceeds limit of %d", minSize, p.allocLimit), nil)
	}
	capacity, poolable := p.SizeClass(minSize)
	if !poolable {
		p.mu.Lock()
		p.oversized++
		p.mu.Unlock()
		return &Buffer{data: make([]byte, capacity), n: minSize, owner: p}, nil
	}

	p.mu.Lock()
	list := p.free[capacity]
	if n := len(list); n > 0 {
		buf := list[n-1]
		list[n-1] = nil
		p.free[capacity] = list[:n-1]
		p.hits++
		p.mu.Unlock()
		buf.pooled = false
		buf.n = minSize
		return buf, nil
	}
	p.misses++
	p.mu.Unlock()

	return &Buffer{data: make([]byte, capacity), n: minSize, owner: p}, nil
}

// Release zero-fills buf and returns it to its size class. Buffers from other
// pools, oversized buffers, repeated releases, and full classes are dropped.
func (p *Pool) Release(buf *Buffer) {
	if buf == nil || buf.owner != p || buf.pooled {
		return
	}
	clear(buf.data)
	buf.n = 0

	capacity := len(buf.data)
	if capacity > p.maxPooled || capacity&(capacity-1) != 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[capacity]) >= p.classCap {
		p.drops++
		return
	}
	buf.pooled = true
	p.free[capacity] = append(p.free[capacity], buf)
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	pooled := make(map[int]int, len(p.free))
	for class, list := range p.free {
		if len(list) > 0 {
			pooled[class] = len(list)
		}
	}
	return Stats{Hits: p.hits, Misses: p.misses, Drops: p.drops, Oversized: p.oversized, Pooled: pooled}
}

func nextPowerOfTwo(v int) int {
	if v <= 1 {
		return 1
	}
	shift := bits.Len(uint(v - 1))
	if shift >= bits.UintSize-1 {
		return -1
	}
	return 1 << shift
}
