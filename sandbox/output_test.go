package sandbox

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitBufferUnderCap(t *testing.T) {
	b := newLimitBuffer(64)
	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", b.String())
	assert.False(t, b.Truncated())
}

func TestLimitBufferExactCap(t *testing.T) {
	b := newLimitBuffer(5)
	_, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", b.String())
	// Filling the buffer exactly is not truncation; discarding is.
	assert.False(t, b.Truncated())

	_, err = b.Write([]byte("!"))
	require.NoError(t, err)
	assert.Equal(t, "hello", b.String())
	assert.True(t, b.Truncated())
}

func TestLimitBufferPartialWrite(t *testing.T) {
	b := newLimitBuffer(8)
	n, err := b.Write([]byte("hello world"))
	require.NoError(t, err)
	// The full length is reported so the source keeps draining.
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello wo", b.String())
	assert.True(t, b.Truncated())
}

func TestLimitBufferDiscardsAfterCap(t *testing.T) {
	b := newLimitBuffer(4)
	for i := 0; i < 1000; i++ {
		_, err := b.Write([]byte("xxxxxxxx"))
		require.NoError(t, err)
	}
	assert.Equal(t, "xxxx", b.String())
	assert.True(t, b.Truncated())
}

func TestLimitBufferConcurrentWrites(t *testing.T) {
	b := newLimitBuffer(128)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = b.Write([]byte("data"))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, b.String(), 128)
	assert.True(t, b.Truncated())
}

func TestCollectorDemultiplexes(t *testing.T) {
	var stream bytes.Buffer
	_, err := stdcopy.NewStdWriter(&stream, stdcopy.Stdout).Write([]byte("to stdout\n"))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&stream, stdcopy.Stderr).Write([]byte("to stderr\n"))
	require.NoError(t, err)

	c := newOutputCollector(1024)
	require.NoError(t, <-c.collect(&stream))
	assert.Equal(t, "to stdout\n", c.stdout.String())
	assert.Equal(t, "to stderr\n", c.stderr.String())
	assert.False(t, c.truncated())
}

func TestCollectorAppliesCapPerStream(t *testing.T) {
	var stream bytes.Buffer
	_, err := stdcopy.NewStdWriter(&stream, stdcopy.Stdout).Write([]byte(strings.Repeat("o", 100)))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&stream, stdcopy.Stderr).Write([]byte("short"))
	require.NoError(t, err)

	c := newOutputCollector(10)
	require.NoError(t, <-c.collect(&stream))
	assert.Len(t, c.stdout.String(), 10)
	assert.Equal(t, "short", c.stderr.String())
	assert.True(t, c.truncated())
	assert.False(t, c.stderr.Truncated())
}
