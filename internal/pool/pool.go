// Package pool provides typed object pools that reset items on return.
package pool

import (
	"bytes"
	"sync"
)

// Pool is a typed wrapper around sync.Pool.
type Pool[T any] struct {
	internal sync.Pool
	reset    func(T)
}

// New creates a new Pool with the given constructor. reset, if non-nil, is
// applied to every item handed back through Put.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	return &Pool[T]{
		internal: sync.Pool{
			New: func() any {
				return newFn()
			},
		},
		reset: reset,
	}
}

// Get retrieves an item from the pool.
func (p *Pool[T]) Get() T {
	return p.internal.Get().(T)
}

// Put resets item and returns it to the pool.
func (p *Pool[T]) Put(item T) {
	if p.reset != nil {
		p.reset(item)
	}
	p.internal.Put(item)
}

// maxPooledBuffer keeps oversized buffers from pinning memory.
const maxPooledBuffer = 1 << 20

// NewBufferPool returns a pool of empty *bytes.Buffer. Buffers that grew past
// 1 MiB are reset to a fresh backing array before reuse.
func NewBufferPool() *Pool[*bytes.Buffer] {
	return New(
		func() *bytes.Buffer { return new(bytes.Buffer) },
		func(b *bytes.Buffer) {
			if b.Cap() > maxPooledBuffer {
				*b = bytes.Buffer{}
				return
			}
			b.Reset()
		},
	)
}
