package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Async sink policy. Producers never block: a full queue drops the record to
// stderr. The worker flushes by batch size or elapsed time, whichever first.
const (
	DefaultQueueCapacity = 1000
	DefaultFlushBatch    = 50
	DefaultFlushInterval = 100 * time.Millisecond
	DefaultDrainTimeout  = 5 * time.Second
)

// AsyncWriterConfig tunes the async sink. Zero values take the defaults above.
type AsyncWriterConfig struct {
	QueueCapacity int
	FlushBatch    int
	FlushInterval time.Duration
	DrainTimeout  time.Duration
}

// AsyncWriter decouples log producers from file I/O. Records are copied into
// a bounded FIFO queue and written by a single background worker. Write never
// blocks and never returns an error to the producer; failures degrade to
// stderr.
type AsyncWriter struct {
	out     io.Writer
	cfg     AsyncWriterConfig
	queue   chan []byte
	stop    chan struct{}
	stopped chan struct{}

	dropped   atomic.Int64
	closeOnce sync.Once
}

// NewAsyncWriter starts the worker and returns the sink.
func NewAsyncWriter(out io.Writer, cfg AsyncWriterConfig) *AsyncWriter {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.FlushBatch <= 0 {
		cfg.FlushBatch = DefaultFlushBatch
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	w := &AsyncWriter{
		out:     out,
		cfg:     cfg,
		queue:   make(chan []byte, cfg.QueueCapacity),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// Write enqueues one record without blocking. The record is copied because
// zerolog reuses its buffers. A full queue falls back to stderr.
func (w *AsyncWriter) Write(p []byte) (int, error) {
	record := make([]byte, len(p))
	copy(record, p)

	select {
	case w.queue <- record:
	default:
		w.dropped.Add(1)
		os.Stderr.Write(record)
	}
	return len(p), nil
}

// Dropped returns the number of records that bypassed the queue to stderr.
func (w *AsyncWriter) Dropped() int64 {
	return w.dropped.Load()
}

// run drains the queue: flush when the batch reaches FlushBatch, or when
// FlushInterval has elapsed with a non-empty batch.
func (w *AsyncWriter) run() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([][]byte, 0, w.cfg.FlushBatch)

	for {
		select {
		case record := <-w.queue:
			batch = append(batch, record)
			if len(batch) >= w.cfg.FlushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.stop:
			w.drain(batch)
			return
		}
	}
}

// drain writes the remaining batch and queue contents, bounded by
// DrainTimeout. Anything left past the deadline spills to stderr.
func (w *AsyncWriter) drain(batch [][]byte) {
	deadline := time.Now().Add(w.cfg.DrainTimeout)
	w.flush(batch)
	for {
		select {
		case record := <-w.queue:
			if time.Now().After(deadline) {
				os.Stderr.Write(record)
				continue
			}
			w.flush([][]byte{record})
		default:
			return
		}
	}
}

// flush writes records to the sink. Records that are not valid UTF-8 are
// rewritten with replacement runes before the write; records the sink still
// rejects produce a truncated notice on stderr instead of being retried.
func (w *AsyncWriter) flush(batch [][]byte) {
	for _, record := range batch {
		if !utf8.Valid(record) {
			record = bytes.ToValidUTF8(record, []byte("�"))
		}
		if _, err := w.out.Write(record); err != nil {
			notice := record
			if len(notice) > 128 {
				notice = notice[:128]
			}
			fmt.Fprintf(os.Stderr, "log sink write failed (%v): %s\n", err, notice)
		}
	}
}

// Close stops the worker, draining queued records within the drain timeout.
// Safe to call more than once.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
		<-w.stopped
	})
	return nil
}
