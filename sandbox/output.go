package sandbox

import (
	"bytes"
	"io"
	"sync"

	"github.com/docker/docker/pkg/stdcopy"
)

// limitBuffer is a concurrency-safe writer that buffers at most max bytes.
// Bytes past the cap are counted as written but discarded, so a runaway
// program can keep producing output without growing host memory. Crossing
// the cap sets the truncated flag.
type limitBuffer struct {
	mu        sync.Mutex
	max       int
	buf       bytes.Buffer
	truncated bool
}

func newLimitBuffer(max int) *limitBuffer {
	return &limitBuffer{max: max}
}

func (b *limitBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.max - b.buf.Len()
	switch {
	case remaining <= 0:
		b.truncated = true
	case len(p) > remaining:
		b.buf.Write(p[:remaining])
		b.truncated = true
	default:
		b.buf.Write(p)
	}
	// Report the full length so the stream keeps draining.
	return len(p), nil
}

func (b *limitBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *limitBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// outputCollector demultiplexes the engine's combined exec stream into
// bounded stdout and stderr buffers.
type outputCollector struct {
	stdout *limitBuffer
	stderr *limitBuffer
}

func newOutputCollector(limitPerStream int) *outputCollector {
	return &outputCollector{
		stdout: newLimitBuffer(limitPerStream),
		stderr: newLimitBuffer(limitPerStream),
	}
}

// collect demultiplexes the multiplexed stream from r in the background and
// reports completion on the returned channel. The buffers may be read while
// collection is still in flight; partial output stays available if the
// stream is torn down mid-copy.
func (c *outputCollector) collect(r io.Reader) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(c.stdout, c.stderr, r)
		done <- err
	}()
	return done
}

func (c *outputCollector) truncated() bool {
	return c.stdout.Truncated() || c.stderr.Truncated()
}
