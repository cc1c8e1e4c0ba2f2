package incr

import (
	"io"
	"runtime"
	"sync/atomic"
	"time"
)

// SinkFactory creates the underlying sink. The channel invokes it lazily on
// the background writer goroutine, so a failing sink constructor surfaces
// through the same failure-propagation path as a failing write, never from
// NewAsyncChannel itself.
type SinkFactory func() (io.WriteCloser, error)

// AsyncChannel is a byte sink that decouples producer pace from I/O pace.
// Writes fill fixed-capacity buffers from a BufferPool; full buffers are
// handed over a FIFO ready queue to a single background writer goroutine,
// which is the only code that ever touches the sink. Byte order is
// preserved exactly: bytes are chunked in call order and written in the
// same order.
//
// The producer side is not safe for concurrent use; callers that share a
// channel across goroutines must serialize access, as ReportSink does.
type AsyncChannel struct {
	pool    *BufferPool
	ready   chan *Buffer
	done    chan struct{}
	log     Logger
	stop    atomic.Bool
	current *Buffer
	closed  bool
}

// NewAsyncChannel creates a channel over the given sink factory and buffer
// pool and starts its background writer.
func NewAsyncChannel(factory SinkFactory, pool *BufferPool, opts ...ChannelOption) *AsyncChannel {
	c := &AsyncChannel{
		pool: pool,
		// One slot beyond the pool bound so the end-of-stream sentinel
		// never blocks behind a full queue.
		ready: make(chan *Buffer, pool.maxCount+1),
		done:  make(chan struct{}),
		log:   NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.writeLoop(factory)
	return c
}

// Write buffers p into the current buffer, handing full buffers to the
// writer and taking fresh ones from the pool. It blocks only when the pool
// is exhausted, and then at most for the pool's timeout.
func (c *AsyncChannel) Write(p []byte) (int, error) {
	if c.closed {
		return 0, &IllegalStateError{State: "the channel is closed", Op: "write"}
	}
	written := 0
	for len(p) > 0 {
		if c.current == nil {
			b, err := c.pool.Take()
			if err != nil {
				return written, err
			}
			c.current = b
		}
		n := c.current.Write(p)
		p = p[n:]
		written += n
		if c.current.Remaining() == 0 {
			c.ready <- c.current
			c.current = nil
		}
	}
	return written, nil
}

// Close flushes the partially-filled buffer, enqueues a zero-length buffer
// as the end-of-stream sentinel, waits for the writer to terminate and
// rethrows any recorded failure.
func (c *AsyncChannel) Close() error {
	c.closeAsync()
	<-c.done
	return c.pool.Failure()
}

// CloseWithin is Close with a bounded wait for writer termination. If the
// writer does not finish in time it is told to stop, a *TimeoutError is
// returned, and whatever was already written stays written.
func (c *AsyncChannel) CloseWithin(wait time.Duration) error {
	c.closeAsync()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-c.done:
		return c.pool.Failure()
	case <-timer.C:
		c.stop.Store(true)
		return &TimeoutError{Op: "waiting for the background writer to finish", Wait: wait}
	}
}

// closeAsync flushes and enqueues the sentinel without waiting.
func (c *AsyncChannel) closeAsync() {
	if c.closed {
		return
	}
	c.closed = true

	if c.current != nil {
		if c.current.Len() > 0 {
			c.ready <- c.current
		} else {
			c.pool.Put(c.current)
		}
		c.current = nil
	}

	sentinel, err := c.pool.Take()
	if err != nil {
		// No buffer for the sentinel means the writer already failed or
		// stalled; tell it to stop instead and surface the failure from
		// the pool on the Close path.
		c.stop.Store(true)
		return
	}
	c.ready <- sentinel
}

// writeLoop runs on the background writer goroutine. It polls the ready
// queue without blocking, yielding between polls; the empty sentinel buffer
// terminates the loop. Buffers go back to the pool unconditionally, even
// when a write fails, so the pool never starves. Failures are recorded on
// the pool and the queue is drained afterwards to bound memory.
func (c *AsyncChannel) writeLoop(factory SinkFactory) {
	defer close(c.done)

	sink, err := factory()
	failed := false
	if err != nil {
		c.pool.Fail(err)
		c.log.Error("failed to create sink", Err(err))
		failed = true
	}

	for {
		if c.stop.Load() {
			break
		}
		select {
		case b := <-c.ready:
			if b.Len() == 0 {
				c.pool.Put(b)
				c.closeSink(sink, failed)
				return
			}
			var werr error
			if !failed {
				_, werr = sink.Write(b.Bytes())
			}
			b.Reset()
			c.pool.Put(b)
			if werr != nil {
				failed = true
				c.pool.Fail(werr)
				c.log.Error("failed to write buffer to sink", Err(werr))
				if c.drainReady() {
					// The sentinel was already queued behind the failing
					// buffer; honor it.
					c.closeSink(sink, failed)
					return
				}
			}
		default:
			runtime.Gosched()
		}
	}
	c.closeSink(sink, failed)
}

func (c *AsyncChannel) closeSink(sink io.WriteCloser, failed bool) {
	if sink == nil {
		return
	}
	if err := sink.Close(); err != nil && !failed {
		c.pool.Fail(err)
	}
}

// drainReady empties the ready queue, recycling every buffer, and reports
// whether the end-of-stream sentinel was among them.
func (c *AsyncChannel) drainReady() bool {
	sawSentinel := false
	for {
		select {
		case b := <-c.ready:
			if b.Len() == 0 {
				sawSentinel = true
			}
			b.Reset()
			c.pool.Put(b)
		default:
			return sawSentinel
		}
	}
}
