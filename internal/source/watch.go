package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// WatchOptions configures a WatchSource.
type WatchOptions struct {
	// Existing queues images already in the directory before watching.
	Existing bool
	// Settle is how long to wait after an event before reading the file, so
	// writers have a chance to finish.
	Settle time.Duration
	Logger *slog.Logger
}

// WatchSource turns images dropped into a directory into frames. It never
// ends on its own; cancel the context or Close it.
type WatchSource struct {
	dir     string
	opts    WatchOptions
	watcher *fsnotify.Watcher
	pending []string
	seen    map[string]fileStamp
	seq     int
}

type fileStamp struct {
	size int64
	mod  time.Time
}

// NewWatchSource starts watching dir.
func NewWatchSource(dir string, opts WatchOptions) (*WatchSource, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", dir)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	s := &WatchSource{dir: dir, opts: opts, watcher: w, seen: make(map[string]fileStamp)}
	if opts.Existing {
		existing, err := ListImages(dir)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		s.pending = existing
	}
	return s, nil
}

// Next implements Source.
func (s *WatchSource) Next(ctx context.Context) (Frame, error) {
	if len(s.pending) > 0 {
		path := s.pending[0]
		s.pending = s.pending[1:]
		return s.load(path)
	}
	for {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return Frame{}, ErrEndOfStream
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") || !utils.IsSupportedImage(name) {
				continue
			}
			if err := wait(ctx, s.opts.Settle); err != nil {
				return Frame{}, err
			}
			if s.unchanged(ev.Name) {
				continue
			}
			return s.load(ev.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return Frame{}, ErrEndOfStream
			}
			s.opts.Logger.Warn("watch error", "dir", s.dir, "error", err)
		}
	}
}

// unchanged reports whether path was already delivered with the same size
// and modification time.
func (s *WatchSource) unchanged(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	prev, ok := s.seen[path]
	return ok && prev.size == info.Size() && prev.mod.Equal(info.ModTime())
}

func (s *WatchSource) load(path string) (Frame, error) {
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %w", ErrEmptyFrame, path, err)
	}
	if info, err := os.Stat(path); err == nil {
		s.seen[path] = fileStamp{size: info.Size(), mod: info.ModTime()}
	}
	s.seq++
	return Frame{Image: img, Name: path, Seq: s.seq, At: time.Now()}, nil
}

// Close stops watching.
func (s *WatchSource) Close() error { return s.watcher.Close() }
