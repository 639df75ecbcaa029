package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes buffered log records on shutdown.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from serialization: Handle enqueues
// the record and a worker pool drains the queue into the wrapped handler.
// When the queue is full the record is dropped rather than blocking the
// orchestration path.
type AsyncHandler struct {
	sink  slog.Handler
	queue chan slog.Record
	wg    *sync.WaitGroup
	drops *atomic.Int64
}

// NewAsyncHandler wraps sink with a queue of queueSize records drained by
// the given number of workers.
func NewAsyncHandler(sink slog.Handler, queueSize, workers int) *AsyncHandler {
	h := &AsyncHandler{
		sink:  sink,
		queue: make(chan slog.Record, queueSize),
		wg:    &sync.WaitGroup{},
		drops: &atomic.Int64{},
	}
	h.wg.Add(workers)
	for range workers {
		go h.worker()
	}
	return h
}

func (h *AsyncHandler) worker() {
	defer h.wg.Done()
	for rec := range h.queue {
		_ = h.sink.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.sink.Enabled(ctx, level)
}

// Handle enqueues rec, dropping it if the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.drops.Add(1)
	}
	return nil
}

// WithAttrs wraps the derived sink handler; the queue and workers are shared.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{sink: h.sink.WithAttrs(attrs), queue: h.queue, wg: h.wg, drops: h.drops}
}

// WithGroup wraps the derived sink handler; the queue and workers are shared.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{sink: h.sink.WithGroup(name), queue: h.queue, wg: h.wg, drops: h.drops}
}

// DroppedCount reports how many records were discarded on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.drops.Load()
}

// Close stops accepting records and waits for the workers to drain the queue.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.wg.Wait()
}
