package record

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrPoolExhausted is returned by BufferPool.Get when every buffer is out.
var ErrPoolExhausted = errors.New("record: buffer pool exhausted")

// Buffer is a BGRA destination buffer, typically memory shared with an
// encoder. Buffers are reference counted: a consumer that keeps a buffer
// past its OnBuffer call must Retain it and Release it when done. The last
// Release returns it to its pool.
type Buffer struct {
	Width  int
	Height int
	Stride int
	Pix    []byte

	pool BufferPool
	refs atomic.Int32
}

// NewBuffer allocates a tightly packed buffer that returns to pool on its
// last Release. pool may be nil for a standalone buffer.
func NewBuffer(pool BufferPool, width, height int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Stride: width * 4,
		Pix:    make([]byte, width*height*4),
		pool:   pool,
	}
}

// Retain adds a reference.
func (b *Buffer) Retain() { b.refs.Add(1) }

// Release drops a reference.
func (b *Buffer) Release() {
	n := b.refs.Add(-1)
	if n < 0 {
		b.refs.Add(1)
		return
	}
	if n == 0 && b.pool != nil {
		b.pool.Put(b)
	}
}

// RefCount returns the number of references.
func (b *Buffer) RefCount() int32 { return b.refs.Load() }

// At returns the BGRA bytes of pixel (x, y).
func (b *Buffer) At(x, y int) [4]byte {
	i := y*b.Stride + x*4
	return [4]byte(b.Pix[i : i+4])
}

// take hands the buffer out with a single reference.
func (b *Buffer) take() { b.refs.Store(1) }

// BufferPool supplies destination buffers. Implementations must be safe for
// concurrent use; Put is called from whichever goroutine drops the last
// reference.
type BufferPool interface {
	// Get returns an unreferenced buffer or ErrPoolExhausted.
	Get() (*Buffer, error)

	// Put takes back a buffer whose references reached zero.
	Put(b *Buffer)
}

// MemoryPool is a BufferPool of heap buffers with a fixed capacity.
type MemoryPool struct {
	width    int
	height   int
	capacity int

	mu          sync.Mutex
	idle        []*Buffer
	outstanding int
	allocated   int
}

// NewBufferPool returns a pool of at most capacity width x height buffers.
func NewBufferPool(width, height, capacity int) *MemoryPool {
	return &MemoryPool{width: width, height: height, capacity: max(capacity, 1)}
}

// Get returns an idle buffer, allocates one below capacity, or fails.
func (p *MemoryPool) Get() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.idle); n > 0 {
		b := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.outstanding++
		return b, nil
	}
	if p.allocated >= p.capacity {
		return nil, fmt.Errorf("%w: %d of %d out", ErrPoolExhausted, p.outstanding, p.capacity)
	}
	p.allocated++
	p.outstanding++
	return NewBuffer(p, p.width, p.height), nil
}

// Put returns b to the idle list.
func (p *MemoryPool) Put(b *Buffer) {
	p.mu.Lock()
	p.idle = append(p.idle, b)
	p.outstanding--
	p.mu.Unlock()
}

// Outstanding returns the number of buffers handed out and not yet returned.
func (p *MemoryPool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Allocated returns the number of buffers created so far.
func (p *MemoryPool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

var _ BufferPool = (*MemoryPool)(nil)
