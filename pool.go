package incr

import (
	"sync"
	"time"
)

// Buffer is a fixed-capacity byte buffer owned by exactly one of the
// producer, the in-flight queue, or the pool at any moment. Ownership
// transfers at enqueue/dequeue; nothing writes a buffer it does not own.
type Buffer struct {
	data []byte
	n    int
}

func newBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Write copies bytes into the buffer up to its remaining capacity and
// returns how many were consumed.
func (b *Buffer) Write(p []byte) int {
	n := copy(b.data[b.n:], p)
	b.n += n
	return n
}

// Len returns the number of bytes written and not yet drained.
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Remaining returns how many more bytes the buffer can take.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.n
}

// Bytes returns the written bytes. The slice aliases the buffer; it is only
// valid until Reset.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Reset drains the buffer so it can go back to the pool.
func (b *Buffer) Reset() {
	b.n = 0
}

// BufferPool is a bounded pool of fixed-capacity buffers. It allocates
// lazily up to a maximum count; once every buffer is out, Take blocks until
// one is returned or the timeout elapses. A failure recorded via Fail is
// rethrown on every subsequent Take, so a producer observes background
// writer failures instead of silently stalling.
type BufferPool struct {
	capacity int
	maxCount int
	timeout  time.Duration

	free   chan *Buffer
	failed chan struct{}

	mu        sync.Mutex
	allocated int
	failure   error
}

// NewBufferPool creates a pool with the given per-buffer capacity, maximum
// buffer count and Take timeout. Defaults come from DefaultConfig.
func NewBufferPool(opts ...PoolOption) *BufferPool {
	cfg := DefaultConfig()
	p := &BufferPool{
		capacity: cfg.BufferCapacityBytes,
		maxCount: cfg.MaxBufferCount,
		timeout:  cfg.Timeout(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.free = make(chan *Buffer, p.maxCount)
	p.failed = make(chan struct{})
	return p
}

// Take returns a ready-to-fill buffer. It allocates while the pool is below
// its maximum count, then blocks until a buffer is returned. An elapsed
// timeout yields a *TimeoutError; a recorded failure is returned instead of
// a buffer.
func (p *BufferPool) Take() (*Buffer, error) {
	if err := p.Failure(); err != nil {
		return nil, err
	}

	select {
	case b := <-p.free:
		return b, nil
	default:
	}

	p.mu.Lock()
	if p.allocated < p.maxCount {
		p.allocated++
		p.mu.Unlock()
		return newBuffer(p.capacity), nil
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case b := <-p.free:
		return b, nil
	case <-p.failed:
		return nil, p.Failure()
	case <-timer.C:
		return nil, &TimeoutError{Op: "waiting for a free buffer", Wait: p.timeout}
	}
}

// Put returns a drained buffer to the pool. Handing back a buffer that
// still holds bytes is a contract violation by the caller and panics.
func (p *BufferPool) Put(b *Buffer) {
	if b.Len() != 0 {
		panic("buffer returned to pool before being drained")
	}
	select {
	case p.free <- b:
	default:
		panic("buffer returned to pool that did not come from it")
	}
}

// Fail records an asynchronous failure, typically from the background
// writer. The first failure wins; it is rethrown on every subsequent Take
// and wakes any producer currently blocked on one.
func (p *BufferPool) Fail(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure != nil {
		return
	}
	p.failure = err
	close(p.failed)
}

// Failure returns the recorded failure, wrapped as a *WriterError, or nil.
func (p *BufferPool) Failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure == nil {
		return nil
	}
	return &WriterError{Cause: p.failure}
}

// Capacity returns the fixed per-buffer capacity.
func (p *BufferPool) Capacity() int {
	return p.capacity
}
