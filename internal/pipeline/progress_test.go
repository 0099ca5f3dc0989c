package pipeline

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MeKo-Tech/qrharvest/internal/dedup"
)

func resultWith(decisions ...dedup.Decision) *FrameResult {
	res := &FrameResult{}
	for i, d := range decisions {
		ev := CaptureEvent{Index: i + 1, Decision: d, Content: "x"}
		if d == dedup.New {
			ev.SavedPath = "/tmp/qr_x.png"
		}
		res.Events = append(res.Events, ev)
	}
	return res
}

func TestNoOpProgressCallback(t *testing.T) {
	callback := NoOpProgressCallback{}
	callback.OnStart(10)
	callback.OnFrame(5, 10, nil)
	callback.OnComplete()
	callback.OnError(3, assert.AnError)
}

func TestConsoleProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	callback := NewConsoleProgressCallback(&buf, "Test: ").WithWidth(10)

	callback.OnStart(4)
	assert.Contains(t, buf.String(), "Test: 0/4 frames")

	callback.OnFrame(1, 4, resultWith(dedup.New, dedup.Duplicate))
	callback.OnFrame(2, 4, resultWith(dedup.New))
	out := buf.String()
	assert.Contains(t, out, "2/4 new=2 dup=1")
	assert.Contains(t, out, "█████░░░░░")

	callback.OnError(3, assert.AnError)
	assert.Contains(t, buf.String(), "Error at frame 3")

	callback.OnComplete()
	assert.Contains(t, buf.String(), "Completed in")
}

func TestConsoleProgressCallbackUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	callback := NewConsoleProgressCallback(&buf, "")
	callback.OnStart(0)
	assert.Empty(t, buf.String())
	callback.OnFrame(1, 0, resultWith(dedup.New))
	callback.OnFrame(2, 0, resultWith(dedup.Duplicate))
	assert.Contains(t, buf.String(), "2 frames new=1 dup=1")
	assert.NotContains(t, buf.String(), "█")
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	callback := NewLogProgressCallback(logger, slog.LevelInfo)

	callback.OnStart(2)
	callback.OnFrame(1, 2, resultWith(dedup.New, dedup.Duplicate))
	callback.OnError(2, assert.AnError)
	callback.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "starting capture")
	assert.Contains(t, out, "frames=2")
	assert.Contains(t, out, "new=1")
	assert.Contains(t, out, "duplicates=1")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "capture completed")
}
