package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// asyncQueueSize bounds the number of records buffered before the
// handler starts dropping instead of blocking the caller.
const asyncQueueSize = 1024

// asyncCore owns the queue and the drain goroutine shared by every
// handler derived via WithAttrs or WithGroup.
type asyncCore struct {
	queue   chan queuedRecord
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

type queuedRecord struct {
	ctx     context.Context
	handler slog.Handler
	record  slog.Record
}

// asyncHandler queues records to a single drain goroutine so slow
// sinks never stall the hot path. A full queue drops the record and
// counts it. After Close the handler degrades to synchronous writes.
type asyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

var _ slog.Handler = (*asyncHandler)(nil)

func newAsyncHandler(inner slog.Handler, queueSize int) *asyncHandler {
	core := &asyncCore{
		queue: make(chan queuedRecord, queueSize),
		done:  make(chan struct{}),
	}
	go core.drain()
	return &asyncHandler{inner: inner, core: core}
}

func (c *asyncCore) drain() {
	defer close(c.done)
	for qr := range c.queue {
		_ = qr.handler.Handle(qr.ctx, qr.record)
	}
}

func (h *asyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *asyncHandler) Handle(ctx context.Context, r slog.Record) error {
	h.core.mu.RLock()
	defer h.core.mu.RUnlock()
	if h.core.closed {
		return h.inner.Handle(ctx, r)
	}
	select {
	case h.core.queue <- queuedRecord{ctx: ctx, handler: h.inner, record: r.Clone()}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

func (h *asyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &asyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

func (h *asyncHandler) WithGroup(name string) slog.Handler {
	return &asyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// Dropped reports how many records were discarded because the queue
// was full.
func (h *asyncHandler) Dropped() uint64 {
	return h.core.dropped.Load()
}

// Close stops the queue, waits for buffered records to reach the sink
// and reports any drops through the inner handler. Records handled
// after Close are written synchronously.
func (h *asyncHandler) Close() error {
	h.core.mu.Lock()
	if h.core.closed {
		h.core.mu.Unlock()
		return nil
	}
	h.core.closed = true
	close(h.core.queue)
	h.core.mu.Unlock()

	<-h.core.done
	if n := h.core.dropped.Load(); n > 0 {
		r := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
		r.AddAttrs(slog.Uint64("count", n))
		_ = h.inner.Handle(context.Background(), r)
	}
	return nil
}
