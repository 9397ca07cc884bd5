package pool_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jroosing/hydrablock/internal/pool"
)

// =============================================================================
// Pool Basic Operations Tests
// =============================================================================

func TestPool_GetAndPut(t *testing.T) {
	bufPool := pool.New(func() []byte {
		return make([]byte, 1024)
	}, nil)

	buf := bufPool.Get()
	assert.Len(t, buf, 1024)
	bufPool.Put(buf)

	buf2 := bufPool.Get()
	assert.Len(t, buf2, 1024)
}

func TestPool_ConstructorCalled(t *testing.T) {
	callCount := 0
	p := pool.New(func() int {
		callCount++
		return callCount
	}, nil)

	assert.Equal(t, 1, p.Get())
	assert.Equal(t, 2, p.Get())
	assert.Equal(t, 2, callCount)
}

func TestPool_ResetOnPut(t *testing.T) {
	var resets int
	p := pool.New(func() *[]int { s := make([]int, 0, 4); return &s }, func(s *[]int) {
		resets++
		*s = (*s)[:0]
	})

	s := p.Get()
	*s = append(*s, 1, 2, 3)
	p.Put(s)
	assert.Equal(t, 1, resets)
	assert.Empty(t, *s)
}

// =============================================================================
// Buffer Pool Tests
// =============================================================================

func TestBufferPool_ReturnsEmptyBuffers(t *testing.T) {
	p := pool.NewBufferPool()

	b := p.Get()
	b.WriteString("hello")
	p.Put(b)
	assert.Equal(t, 0, b.Len())

	big := p.Get()
	big.WriteString(strings.Repeat("x", 2<<20))
	p.Put(big)
	assert.Equal(t, 0, big.Cap(), "oversized buffers drop their backing array")
}

func TestBufferPool_Concurrent(t *testing.T) {
	p := pool.NewBufferPool()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 100 {
				b := p.Get()
				b.WriteByte(byte('a' + i))
				assert.Equal(t, 1, b.Len())
				assert.True(t, bytes.Equal(b.Bytes(), []byte{byte('a' + i)}))
				p.Put(b)
			}
		}(i)
	}
	wg.Wait()
}
