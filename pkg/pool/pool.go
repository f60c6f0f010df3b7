// Package pool provides typed object pooling to keep the ingestion hot path
// allocation-free.
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a typed wrapper around sync.Pool with allocation statistics.
// Pointer types are recommended for T.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
	}
}

// New creates a typed pool. The reset function, when non-nil, is called
// before an object is returned to the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   newFn,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, allocating when empty. Safe for
// concurrent use.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool after resetting it.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the total objects allocated and the number currently
// checked out.
func (p *Pool[T]) Stats() (allocated, inUse int64) {
	return atomic.LoadInt64(&p.stats.allocated), atomic.LoadInt64(&p.stats.inUse)
}

// Shared pools for the structures that cycle through every ingested message.
var (
	// MapPool recycles row value maps.
	MapPool = New(
		func() map[string]interface{} {
			return make(map[string]interface{}, 16)
		},
		func(m map[string]interface{}) {
			for k := range m {
				delete(m, k)
			}
		},
	)

	// StringSlicePool recycles the scratch slices used to sort multi-valued
	// columns before dictionary lookup.
	StringSlicePool = New(
		func() []string {
			return make([]string, 0, 32)
		},
		func(s []string) {
			for i := range s {
				s[i] = ""
			}
		},
	)

	// IDSlicePool recycles surrogate-ID buffers produced by the row codec.
	IDSlicePool = New(
		func() []int32 {
			return make([]int32, 0, 64)
		},
		func(s []int32) {},
	)

	// ByteSlicePool recycles small scratch byte slices.
	ByteSlicePool = New(
		func() []byte {
			return make([]byte, 0, 1024)
		},
		func(b []byte) {},
	)
)

// GetStringSlice returns a zero-length pooled string slice.
func GetStringSlice() []string {
	return StringSlicePool.Get()[:0]
}

// PutStringSlice returns a string slice to the pool.
func PutStringSlice(s []string) {
	StringSlicePool.Put(s)
}

// GetIDSlice returns a zero-length pooled ID slice.
func GetIDSlice() []int32 {
	return IDSlicePool.Get()[:0]
}

// PutIDSlice returns an ID slice to the pool.
func PutIDSlice(s []int32) {
	IDSlicePool.Put(s)
}

// BufferPool manages byte buffers in power-of-2 size buckets, from 512B to
// 16MB. Larger requests fall through to plain allocation.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a buffer pool with the standard bucket ladder.
func NewBufferPool() *BufferPool {
	sizes := []int{
		512,
		1 << 10,
		4 << 10,
		16 << 10,
		64 << 10,
		256 << 10,
		1 << 20,
		4 << 20,
		16 << 20,
	}

	pools := make([]*Pool[[]byte], len(sizes))
	for i, size := range sizes {
		size := size
		pools[i] = New(
			func() []byte {
				return make([]byte, size)
			},
			func(b []byte) {},
		)
	}

	return &BufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a buffer with length size from the smallest bucket that fits.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			buf := p.pools[i].Get()
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer to its bucket. Buffers whose capacity matches no
// bucket are left for the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)
	for i, s := range p.sizes {
		if s == size {
			p.pools[i].Put(buf[:s])
			return
		}
	}
}
