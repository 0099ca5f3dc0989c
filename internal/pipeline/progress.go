package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback reports progress over a known number of frames.
type ProgressCallback interface {
	OnStart(total int)
	OnFrame(current, total int, res *FrameResult)
	OnComplete()
	OnError(current int, err error)
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)                    {}
func (NoOpProgressCallback) OnFrame(int, int, *FrameResult) {}
func (NoOpProgressCallback) OnComplete()                    {}
func (NoOpProgressCallback) OnError(int, error)             {}

// ConsoleProgressCallback draws a progress bar with running capture counts.
type ConsoleProgressCallback struct {
	mu        sync.Mutex
	writer    io.Writer
	prefix    string
	width     int
	startTime time.Time
	saved     int
	dups      int
}

// NewConsoleProgressCallback creates a new console progress reporter.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{writer: writer, prefix: prefix, width: 30}
}

// WithWidth sets the progress bar width.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	if width > 0 {
		c.width = width
	}
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
	c.saved, c.dups = 0, 0
	if total > 0 {
		_, _ = fmt.Fprintf(c.writer, "%s0/%d frames\n", c.prefix, total)
	}
}

func (c *ConsoleProgressCallback) OnFrame(current, total int, res *FrameResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res != nil {
		c.saved += res.NewCount()
		c.dups += res.DuplicateCount()
	}
	if total <= 0 {
		// Open-ended streams have no bar, only running counts.
		_, _ = fmt.Fprintf(c.writer, "\r%s%d frames new=%d dup=%d", c.prefix, current, c.saved, c.dups)
		return
	}
	filled := min(c.width*current/total, c.width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	_, _ = fmt.Fprintf(c.writer, "\r%s[%s] %d/%d new=%d dup=%d", c.prefix, bar, current, total, c.saved, c.dups)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\n%sCompleted in %v\n", c.prefix, time.Since(c.startTime).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(current int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\n%sError at frame %d: %v\n", c.prefix, current, err)
}

// LogProgressCallback logs progress using slog.
type LogProgressCallback struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogProgressCallback creates a new log-based progress reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level}
}

func (l *LogProgressCallback) OnStart(total int) {
	l.logger.Log(context.Background(), l.level, "starting capture", "frames", total)
}

func (l *LogProgressCallback) OnFrame(current, total int, res *FrameResult) {
	attrs := []any{"current", current, "total", total}
	if res != nil {
		attrs = append(attrs, "detections", res.Detections, "new", res.NewCount(), "duplicates", res.DuplicateCount())
	}
	l.logger.Log(context.Background(), l.level, "frame processed", attrs...)
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, "capture completed")
}

func (l *LogProgressCallback) OnError(current int, err error) {
	l.logger.Error("frame failed", "current", current, "error", err)
}
