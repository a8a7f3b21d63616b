package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a threadsafe bytes.Buffer for worker writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAsyncWriter_DeliversRecords(t *testing.T) {
	buf := &syncBuffer{}
	w := NewAsyncWriter(buf, AsyncWriterConfig{FlushInterval: 10 * time.Millisecond})

	_, err := w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	out := buf.String()
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
}

func TestAsyncWriter_FlushesOnBatchSize(t *testing.T) {
	buf := &syncBuffer{}
	// Large interval so only the batch-size trigger can flush.
	w := NewAsyncWriter(buf, AsyncWriterConfig{
		FlushBatch:    3,
		FlushInterval: time.Hour,
	})
	defer w.Close()

	for i := 0; i < 3; i++ {
		w.Write([]byte("x\n"))
	}

	assert.Eventually(t, func() bool {
		return strings.Count(buf.String(), "x") == 3
	}, time.Second, 5*time.Millisecond)
}

func TestAsyncWriter_DropsWhenQueueFull(t *testing.T) {
	// A sink that blocks forever forces the queue to fill.
	blocked := make(chan struct{})
	w := NewAsyncWriter(blockingWriter{blocked}, AsyncWriterConfig{
		QueueCapacity: 2,
		FlushBatch:    100,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 10; i++ {
		w.Write([]byte("overflow\n"))
	}

	assert.Greater(t, w.Dropped(), int64(0))
	close(blocked)
	w.Close()
}

type blockingWriter struct{ unblock chan struct{} }

func (b blockingWriter) Write(p []byte) (int, error) {
	<-b.unblock
	return len(p), nil
}

func TestAsyncWriter_SanitizesInvalidUTF8(t *testing.T) {
	buf := &syncBuffer{}
	w := NewAsyncWriter(buf, AsyncWriterConfig{FlushInterval: 10 * time.Millisecond})

	w.Write([]byte{'b', 'a', 'd', 0xff, 0xfe, '\n'})
	require.NoError(t, w.Close())

	out := buf.String()
	assert.Contains(t, out, "bad")
	assert.True(t, strings.Contains(out, "�"), "invalid bytes should be replaced")
}

func TestAsyncWriter_CloseIsIdempotent(t *testing.T) {
	buf := &syncBuffer{}
	w := NewAsyncWriter(buf, AsyncWriterConfig{})
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
