// Package buffers provides reusable byte buffers for part transfers.
// Reusing one buffer per in-flight part keeps allocation churn flat no
// matter how many parts a batch uploads.
package buffers

import (
	"sync"
	"sync/atomic"
)

// Pool hands out buffers of a fixed size. Unlike a global pool, each batch
// owns its own Pool sized to its configured chunk size, so batches with
// different chunk sizes never cross-pollute.
type Pool struct {
	size        int64
	pool        sync.Pool
	allocations int64
}

// NewPool creates a pool of size-byte buffers.
func NewPool(size int64) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() any {
		atomic.AddInt64(&p.allocations, 1)
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// BufferSize returns the size of buffers handed out by this pool.
func (p *Pool) BufferSize() int64 {
	return p.size
}

// Get retrieves a buffer. Return it with Put when the transfer is done.
//
// Usage:
//
//	buf := pool.Get()
//	defer pool.Put(buf)
//	n, err := src.ReadAt((*buf)[:partSize], offset)
func (p *Pool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers of the wrong size are dropped
// rather than pooled.
func (p *Pool) Put(buf *[]byte) {
	if buf != nil && int64(len(*buf)) == p.size {
		p.pool.Put(buf)
	}
}

// Allocations returns how many buffers were newly allocated (not reused).
func (p *Pool) Allocations() int64 {
	return atomic.LoadInt64(&p.allocations)
}
