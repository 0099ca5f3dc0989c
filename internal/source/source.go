// Package source produces frames for the capture pipeline from files,
// directories, watched inboxes and PDF documents.
package source

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

var (
	// ErrEndOfStream means the source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
	// ErrEmptyFrame means this read produced no frame; later reads may.
	ErrEmptyFrame = errors.New("empty frame")
)

// Frame is one image handed to the pipeline.
type Frame struct {
	Image image.Image
	// Name identifies where the frame came from (file path, PDF page).
	Name string
	// Seq is the 1-based acquisition order within the source.
	Seq int
	At  time.Time
}

// Source yields frames until ErrEndOfStream.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Mirror wraps src so every frame is flipped left to right, the way a
// front-facing camera preview is shown.
func Mirror(src Source) Source { return &mirrored{Source: src} }

type mirrored struct{ Source }

func (m *mirrored) Next(ctx context.Context) (Frame, error) {
	f, err := m.Source.Next(ctx)
	if err != nil {
		return f, err
	}
	f.Image = utils.FlipHorizontal(f.Image)
	return f, nil
}

// ListImages returns the supported image files directly inside dir, sorted
// by name. Hidden files are skipped.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name[0] == '.' || !utils.IsSupportedImage(name) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
