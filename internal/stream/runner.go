package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/qrharvest/internal/source"
)

// Handler processes one frame. Errors are logged and counted; they do not
// stop the run.
type Handler func(ctx context.Context, f source.Frame) error

// Stats counts what happened during a run.
type Stats struct {
	Acquired  int64 `json:"acquired"`
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
	Empty     int64 `json:"empty"`
	Failed    int64 `json:"failed"`
}

// Runner pulls frames from a source on one goroutine and hands them to a
// handler on another.
type Runner struct {
	queueSize int
	logger    *slog.Logger

	acquired  atomic.Int64
	processed atomic.Int64
	empty     atomic.Int64
	failed    atomic.Int64
	handoff   atomic.Pointer[Handoff[source.Frame]]
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithQueueSize sets the hand-off capacity.
func WithQueueSize(n int) RunnerOption {
	return func(r *Runner) { r.queueSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner with a latest-frame hand-off by default.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{queueSize: 1, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Stats returns a snapshot of the counters; safe to call during Run.
func (r *Runner) Stats() Stats {
	st := Stats{
		Acquired:  r.acquired.Load(),
		Processed: r.processed.Load(),
		Empty:     r.empty.Load(),
		Failed:    r.failed.Load(),
	}
	if h := r.handoff.Load(); h != nil {
		st.Dropped = h.Dropped()
	}
	return st
}

// Run acquires frames from src until it reports source.ErrEndOfStream, fails,
// or ctx is canceled. Frames are processed in arrival order; a frame being
// handled when ctx is canceled runs to completion with a context that is not
// canceled, and frames still queued at that point are discarded. After end of
// stream the queue is drained. Cancellation is a normal stop; only a source
// failure is returned.
func (r *Runner) Run(ctx context.Context, src source.Source, handle Handler) (Stats, error) {
	h := NewHandoff[source.Frame](r.queueSize)
	r.handoff.Store(h)

	var (
		wg     sync.WaitGroup
		srcErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer h.Close()
		srcErr = r.acquire(ctx, src, h)
	}()

	procCtx := context.WithoutCancel(ctx)
	for ctx.Err() == nil {
		f, ok := h.Take(ctx)
		if !ok {
			break
		}
		if err := handle(procCtx, f); err != nil {
			r.failed.Add(1)
			r.logger.Warn("frame processing failed", "frame", f.Name, "seq", f.Seq, "error", err)
		}
		r.processed.Add(1)
	}
	wg.Wait()

	// Anything left behind after cancellation counts as dropped.
	for range h.Len() {
		if _, ok := h.Take(context.Background()); ok {
			h.dropped.Add(1)
		}
	}

	st := r.Stats()
	r.logger.Debug("stream stopped",
		"acquired", st.Acquired, "processed", st.Processed,
		"dropped", st.Dropped, "empty", st.Empty, "failed", st.Failed)
	return st, srcErr
}

func (r *Runner) acquire(ctx context.Context, src source.Source, h *Handoff[source.Frame]) error {
	for {
		f, err := src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, source.ErrEndOfStream):
			return nil
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, source.ErrEmptyFrame):
			r.empty.Add(1)
			r.logger.Debug("empty frame", "error", err)
			continue
		default:
			return err
		}
		r.acquired.Add(1)
		if h.Put(f) {
			r.logger.Debug("processing behind, dropped oldest frame")
		}
	}
}
