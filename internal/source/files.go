package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// FileSource yields the given image files in order, optionally pacing reads.
// A file that cannot be decoded is reported as ErrEmptyFrame.
type FileSource struct {
	mu       sync.Mutex
	paths    []string
	next     int
	interval time.Duration
	started  bool
}

// NewFileSource creates a source over paths. interval spaces successive
// frames apart; zero delivers them as fast as they are read.
func NewFileSource(paths []string, interval time.Duration) *FileSource {
	return &FileSource{paths: append([]string(nil), paths...), interval: interval}
}

// NewDirSource replays every image in dir in name order.
func NewDirSource(dir string, interval time.Duration) (*FileSource, error) {
	paths, err := ListImages(dir)
	if err != nil {
		return nil, fmt.Errorf("list images in %s: %w", dir, err)
	}
	return NewFileSource(paths, interval), nil
}

// Len returns the number of files in the source.
func (s *FileSource) Len() int { return len(s.paths) }

// Next implements Source.
func (s *FileSource) Next(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.paths) {
		return Frame{}, ErrEndOfStream
	}
	if s.started {
		if err := wait(ctx, s.interval); err != nil {
			return Frame{}, err
		}
	}
	s.started = true
	path := s.paths[s.next]
	s.next++

	img, _, err := utils.LoadImage(path)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %w", ErrEmptyFrame, path, err)
	}
	return Frame{Image: img, Name: path, Seq: s.next, At: time.Now()}, nil
}

// Close implements Source.
func (s *FileSource) Close() error { return nil }
