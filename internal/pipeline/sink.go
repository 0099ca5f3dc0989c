package pipeline

import (
	"context"
	"sync"
)

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, res *FrameResult)

// Consume implements EventSink.
func (f SinkFunc) Consume(ctx context.Context, res *FrameResult) { f(ctx, res) }

// Recorder is an EventSink that keeps every result it receives.
type Recorder struct {
	mu      sync.Mutex
	results []*FrameResult
}

// Consume implements EventSink.
func (r *Recorder) Consume(_ context.Context, res *FrameResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

// Results returns the recorded results in arrival order.
func (r *Recorder) Results() []*FrameResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*FrameResult(nil), r.results...)
}
