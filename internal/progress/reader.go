// Package progress counts bytes flowing through a stream and reports them.
package progress

import (
	"errors"
	"io"
	"sync/atomic"
)

// DefaultStep is the minimum number of bytes between two reports.
const DefaultStep = 256 * 1024

// Callback receives the cumulative byte count and the expected total
// (-1 when unknown).
type Callback func(bytesTransferred, totalBytes int64)

// Reader counts the bytes read from an underlying reader. The callback runs
// at most once per step bytes, and once more when the stream ends so the
// final count is always reported.
type Reader struct {
	reader   io.Reader
	callback Callback
	total    int64
	step     int64

	read     atomic.Int64
	reported int64
	any      bool
	done     bool
}

// NewReader wraps r. total is the expected size or -1; callback may be nil.
func NewReader(r io.Reader, total int64, callback Callback) *Reader {
	return &Reader{
		reader:   r,
		callback: callback,
		total:    total,
		step:     DefaultStep,
	}
}

// SetStep changes the reporting granularity. A step of 1 or less reports
// after every read.
func (r *Reader) SetStep(step int64) {
	r.step = max(step, 1)
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	read := r.read.Add(int64(n))
	if r.callback == nil || r.done {
		return n, err
	}

	eof := errors.Is(err, io.EOF)
	if eof || (r.total >= 0 && read >= r.total) {
		if !r.any || read != r.reported {
			r.report(read)
		}
		r.done = eof
		return n, err
	}
	if n > 0 && read-r.reported >= r.step {
		r.report(read)
	}
	return n, err
}

func (r *Reader) report(read int64) {
	r.callback(read, r.total)
	r.reported = read
	r.any = true
}

// Count returns the number of bytes read so far. It is safe to call from
// another goroutine while reads are in flight.
func (r *Reader) Count() int64 {
	return r.read.Load()
}

// Close closes the underlying reader if it implements io.Closer.
func (r *Reader) Close() error {
	if closer, ok := r.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
