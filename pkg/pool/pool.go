package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a type-safe wrapper around sync.Pool that resets objects on Put
// and keeps allocation statistics. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated atomic.Int64
		gets      atomic.Int64
		inUse     atomic.Int64
	}
}

// Stats is a point-in-time view of a pool's counters
type Stats struct {
	// Allocated counts objects created because the pool was empty
	Allocated int64
	// Gets counts every Get
	Gets int64
	// InUse is Gets minus Puts
	InUse int64
}

// Hits returns how many Gets were served by a recycled object
func (s Stats) Hits() int64 {
	return s.Gets - s.Allocated
}

// New creates a pool. newFn builds an object when the pool is empty; reset,
// if not nil, is applied to every object passed to Put.
//
// Example:
//
//	buffers := pool.New(
//	    func() *bytes.Buffer { return new(bytes.Buffer) },
//	    func(b *bytes.Buffer) { b.Reset() },
//	)
//	buf := buffers.Get()
//	defer buffers.Put(buf)
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any {
		p.stats.allocated.Add(1)
		return newFn()
	}
	return p
}

// Get returns a recycled object or a new one
func (p *Pool[T]) Get() T {
	p.stats.gets.Add(1)
	p.stats.inUse.Add(1)
	return p.pool.Get().(T)
}

// Put resets obj and makes it available to Get. obj must not be used
// afterwards.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.stats.inUse.Add(-1)
	p.pool.Put(obj)
}

// Stats returns the pool's counters
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Allocated: p.stats.allocated.Load(),
		Gets:      p.stats.gets.Load(),
		InUse:     p.stats.inUse.Load(),
	}
}

// Buffers is the process-wide byte buffer pool used for read chunks and
// staging regions
var Buffers = NewBufferPool()

// BufferPool recycles byte slices in power-of-4 size buckets from 4KB to
// 64MB. Requests above the largest bucket are allocated directly and
// dropped on Put.
type BufferPool struct {
	pools []*Pool[*[]byte]
	sizes []int
}

// NewBufferPool creates a buffer pool with the standard size buckets
func NewBufferPool() *BufferPool {
	sizes := []int{
		4 << 10,  // 4KB
		16 << 10, // 16KB
		64 << 10, // 64KB
		256 << 10,
		1 << 20, // 1MB
		4 << 20,
		16 << 20,
		64 << 20,
	}

	pools := make([]*Pool[*[]byte], len(sizes))
	for i, size := range sizes {
		pools[i] = New(func() *[]byte {
			b := make([]byte, size)
			return &b
		}, nil)
	}
	return &BufferPool{pools: pools, sizes: sizes}
}

// Get returns a slice of length size backed by the smallest bucket that
// fits. Contents are not zeroed.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			return (*p.pools[i].Get())[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to the bucket matching its capacity. Slices that did not
// come from Get are ignored.
func (p *BufferPool) Put(buf []byte) {
	c := cap(buf)
	for i, s := range p.sizes {
		if s == c {
			buf = buf[:c]
			p.pools[i].Put(&buf)
			return
		}
	}
}

// Stats returns the counters of every bucket keyed by bucket size
func (p *BufferPool) Stats() map[int]Stats {
	out := make(map[int]Stats, len(p.sizes))
	for i, s := range p.sizes {
		out[s] = p.pools[i].Stats()
	}
	return out
}
