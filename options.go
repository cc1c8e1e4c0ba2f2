package incr

import (
	"time"

	"github.com/spf13/afero"
)

// PoolOption configures a BufferPool.
type PoolOption func(*BufferPool)

// WithBufferCapacity sets the per-buffer capacity in bytes.
func WithBufferCapacity(capacity int) PoolOption {
	return func(p *BufferPool) {
		p.capacity = capacity
	}
}

// WithMaxBufferCount bounds how many buffers the pool may allocate.
// Worst-case memory is capacity times count.
func WithMaxBufferCount(count int) PoolOption {
	return func(p *BufferPool) {
		p.maxCount = count
	}
}

// WithTakeTimeout bounds how long Take blocks on an exhausted pool before
// failing with a TimeoutError.
func WithTakeTimeout(timeout time.Duration) PoolOption {
	return func(p *BufferPool) {
		p.timeout = timeout
	}
}

// ChannelOption configures an AsyncChannel.
type ChannelOption func(*AsyncChannel)

// WithChannelLogger sets the logger the background writer reports failures
// through.
func WithChannelLogger(log Logger) ChannelOption {
	return func(c *AsyncChannel) {
		c.log = log
	}
}

// StoreOption configures an EntryStore.
type StoreOption func(*EntryStore)

// WithStoreFs sets a custom filesystem for the store.
// This is primarily useful for testing with in-memory filesystems.
func WithStoreFs(fs afero.Fs) StoreOption {
	return func(s *EntryStore) {
		s.fs = fs
	}
}

// WithStoreLogger sets the logger corrupt-entry warnings go to.
func WithStoreLogger(log Logger) StoreOption {
	return func(s *EntryStore) {
		s.log = log
	}
}

// WithStoreNowFunc sets a custom time function for the store.
// This is primarily useful for testing with deterministic timestamps.
func WithStoreNowFunc(now func() time.Time) StoreOption {
	return func(s *EntryStore) {
		s.now = now
	}
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckParallelism bounds how many projects are compared concurrently.
func WithCheckParallelism(n int) CheckerOption {
	return func(c *Checker) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// ReportOption configures a ReportSink.
type ReportOption func(*ReportSink)

// WithReportFs sets a custom filesystem for spooling and committing the
// report.
func WithReportFs(fs afero.Fs) ReportOption {
	return func(r *ReportSink) {
		r.fs = fs
	}
}

// WithReportLogger sets the logger the sink and its background writer use.
func WithReportLogger(log Logger) ReportOption {
	return func(r *ReportSink) {
		r.log = log
	}
}

// WithSpoolDir sets the directory diagnostics are spooled to before commit.
func WithSpoolDir(dir string) ReportOption {
	return func(r *ReportSink) {
		r.spoolDir = dir
	}
}

// WithReportConfig applies the pipeline tunables to the sink's buffer pool
// and close wait.
func WithReportConfig(cfg Config) ReportOption {
	return func(r *ReportSink) {
		r.cfg = cfg
	}
}
