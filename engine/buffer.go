package engine

import (
	"sync"
)

// DefaultChunkSize is the size of the chunks an upload body is streamed in.
// It is kept small on purpose: the target devices have tens of kilobytes of
// heap, not megabytes.
const DefaultChunkSize = 512

// BufferPool manages reusable chunk buffers so consecutive uploads do not
// allocate a fresh buffer each.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a new BufferPool that allocates buffers of the specified size.
// If size is <= 0, DefaultChunkSize is used.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultChunkSize
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the length of the buffers handed out by Get.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get retrieves a reusable byte buffer from the pool.
// The caller should defer calling Put on this buffer once finished.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns the byte buffer to the pool so it can be reused.
// Buffers of the wrong size are dropped.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil && len(*b) == bp.size {
		bp.pool.Put(b)
	}
}
