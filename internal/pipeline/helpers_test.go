package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrharvest/internal/barcode"
	"github.com/MeKo-Tech/qrharvest/internal/store"
	"github.com/MeKo-Tech/qrharvest/internal/testutil"
)

var testNow = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// scriptedBackend returns one queued set of codes per DetectMulti call.
type scriptedBackend struct {
	mu     sync.Mutex
	frames [][]barcode.RawCode
}

func (s *scriptedBackend) push(codes ...barcode.RawCode) *scriptedBackend {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, codes)
	return s
}

func (s *scriptedBackend) DetectMulti(context.Context, image.Image) barcode.Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return barcode.Empty()
	}
	codes := s.frames[0]
	s.frames = s.frames[1:]
	return barcode.Found(codes...)
}

func (s *scriptedBackend) DetectSingle(context.Context, image.Image) barcode.Capability {
	return barcode.Empty()
}

func square(x, y, size int) []image.Point {
	return []image.Point{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}}
}

func code(text string, x, y int) barcode.RawCode {
	return barcode.RawCode{Polygon: square(x, y, 40), Text: text, Decoded: true}
}

func unreadable(x, y int) barcode.RawCode {
	return barcode.RawCode{Polygon: square(x, y, 40)}
}

func blankFrame() *image.RGBA { return testutil.CreateTestImage(200, 200, color.White) }

func newTestPipeline(t *testing.T, backend barcode.Backend, configure ...func(*Builder)) *Pipeline {
	t.Helper()
	b := NewBuilder().
		WithBackend(backend).
		WithEnhance(false).
		WithLocking(false).
		WithClock(func() time.Time { return testNow }).
		WithLogger(discardLogger())
	for _, c := range configure {
		c(b)
	}
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func newTestSession(t *testing.T, p *Pipeline, dir string) *Session {
	t.Helper()
	s := p.NewSession(dir)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// flakyLocation injects failures into a real store.
type flakyLocation struct {
	*store.Store
	mu          sync.Mutex
	failSave    bool
	failPersist bool
}

func (f *flakyLocation) SaveCrop(img image.Image, stamp time.Time, index int, ext string) (string, error) {
	f.mu.Lock()
	fail := f.failSave
	f.mu.Unlock()
	if fail {
		return "", errors.New("disk full")
	}
	return f.Store.SaveCrop(img, stamp, index, ext)
}

func (f *flakyLocation) Persist() error {
	f.mu.Lock()
	fail := f.failPersist
	f.mu.Unlock()
	if fail {
		return errors.New("read-only filesystem")
	}
	return f.Store.Persist()
}

func (f *flakyLocation) set(save, persist bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSave, f.failPersist = save, persist
}

func flakyOpener(t *testing.T, loc **flakyLocation) LocationOpener {
	return func(dir string) (Location, error) {
		s, err := store.Open(dir, store.Options{Logger: discardLogger()})
		if err != nil {
			return nil, err
		}
		f := &flakyLocation{Store: s}
		*loc = f
		return f, nil
	}
}
