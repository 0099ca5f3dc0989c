// Package pipeline runs the capture step for one frame: enhance, detect,
// resolve identities, classify against the session and the output location,
// then save crops and annotate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/qrharvest/internal/barcode"
	"github.com/MeKo-Tech/qrharvest/internal/dedup"
	"github.com/MeKo-Tech/qrharvest/internal/enhance"
	"github.com/MeKo-Tech/qrharvest/internal/store"
	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// ErrUnreadableFrame is returned for frames with no pixels.
var ErrUnreadableFrame = errors.New("frame is unreadable")

// Config holds configuration for the capture pipeline.
type Config struct {
	// Padding is added around each code's bounding box before cropping.
	Padding int
	// CropFormat is the extension used for saved crops.
	CropFormat string
	// DefaultDir is used when a session has no output location set.
	DefaultDir string
	// Lock guards output locations against a second writer process.
	Lock bool

	Enhance        bool
	EnhanceOptions enhance.Options
	TryHarder      bool
	// Normalization names a Unicode form applied to decoded text (empty = none).
	Normalization string

	Annotate       bool
	NewColor       color.RGBA
	DuplicateColor color.RGBA
	FailedColor    color.RGBA
}

// DefaultConfig returns the default capture settings.
func DefaultConfig() Config {
	return Config{
		Padding:        10,
		CropFormat:     "png",
		DefaultDir:     "qr_output",
		Lock:           true,
		Enhance:        true,
		EnhanceOptions: enhance.DefaultOptions(),
		Annotate:       true,
		NewColor:       color.RGBA{0x60, 0xA5, 0xFA, 0xFF},
		DuplicateColor: color.RGBA{0xFF, 0xA5, 0x00, 0xFF},
		FailedColor:    color.RGBA{0xEF, 0x44, 0x44, 0xFF},
	}
}

// Location is an output location with its persistent index.
type Location interface {
	Dir() string
	Index() *store.Index
	Load(ctx context.Context) (*store.LoadReport, error)
	Persist() error
	SaveCrop(img image.Image, stamp time.Time, index int, ext string) (string, error)
	Close() error
}

// LocationOpener prepares the output location at dir.
type LocationOpener func(dir string) (Location, error)

// EventSink receives every processed frame that produced events.
type EventSink interface {
	Consume(ctx context.Context, res *FrameResult)
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg     Config
	backend barcode.Backend
	logger  *slog.Logger
	sinks   []EventSink
	opener  LocationOpener
	now     func() time.Time
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithPadding sets the crop padding in pixels.
func (b *Builder) WithPadding(px int) *Builder {
	if px >= 0 {
		b.cfg.Padding = px
	}
	return b
}

// WithCropFormat sets the saved crop format (png, jpg, jpeg, bmp).
func (b *Builder) WithCropFormat(format string) *Builder {
	if format != "" {
		b.cfg.CropFormat = format
	}
	return b
}

// WithDefaultDir sets the output location used when none is chosen.
func (b *Builder) WithDefaultDir(dir string) *Builder {
	if dir != "" {
		b.cfg.DefaultDir = dir
	}
	return b
}

// WithLocking toggles the single-writer lock on output locations.
func (b *Builder) WithLocking(enabled bool) *Builder {
	b.cfg.Lock = enabled
	return b
}

// WithEnhance toggles the preprocessing pass.
func (b *Builder) WithEnhance(enabled bool) *Builder {
	b.cfg.Enhance = enabled
	return b
}

// WithTryHarder enables the exhaustive search mode of the default backend.
func (b *Builder) WithTryHarder(enabled bool) *Builder {
	b.cfg.TryHarder = enabled
	return b
}

// WithNormalization selects a Unicode normalization form for identities.
func (b *Builder) WithNormalization(form string) *Builder {
	b.cfg.Normalization = form
	return b
}

// WithAnnotate toggles drawing markers on the returned frame.
func (b *Builder) WithAnnotate(enabled bool) *Builder {
	b.cfg.Annotate = enabled
	return b
}

// WithColors sets the marker colors for new and duplicate codes.
func (b *Builder) WithColors(newColor, duplicate color.RGBA) *Builder {
	b.cfg.NewColor = newColor
	b.cfg.DuplicateColor = duplicate
	return b
}

// WithBackend overrides the code detection backend.
func (b *Builder) WithBackend(backend barcode.Backend) *Builder {
	b.backend = backend
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithSinks adds event sinks.
func (b *Builder) WithSinks(sinks ...EventSink) *Builder {
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

// WithLocationOpener overrides how output locations are opened.
func (b *Builder) WithLocationOpener(open LocationOpener) *Builder {
	b.opener = open
	return b
}

// WithClock overrides the clock used for crop timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that the configuration looks sane.
func (b *Builder) Validate() error {
	if b.cfg.Padding < 0 {
		return errors.New("padding must be >= 0")
	}
	if _, ok := utils.NormalizeExtension(b.cfg.CropFormat); !ok {
		return fmt.Errorf("unsupported crop format %q", b.cfg.CropFormat)
	}
	if b.cfg.DefaultDir == "" {
		return errors.New("default output directory is empty")
	}
	if _, err := dedup.NewNormalizer(b.cfg.Normalization); err != nil {
		return err
	}
	return nil
}

// Build validates the configuration and assembles the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	norm, _ := dedup.NewNormalizer(b.cfg.Normalization)

	p := &Pipeline{
		cfg:    b.cfg,
		logger: b.logger,
		sinks:  b.sinks,
		now:    b.now,
		norm:   norm,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	backend := b.backend
	if backend == nil {
		backend = barcode.NewBackend(barcode.Options{TryHarder: b.cfg.TryHarder})
	}
	p.detector = barcode.NewDetector(backend, barcode.WithLogger(p.logger))

	p.opener = b.opener
	if p.opener == nil {
		p.opener = func(dir string) (Location, error) {
			s, err := store.Open(dir, store.Options{
				Lock:    p.cfg.Lock,
				Decoder: p.detector,
				Logger:  p.logger,
			})
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	return p, nil
}

// Pipeline processes frames for any number of sessions.
type Pipeline struct {
	cfg      Config
	detector *barcode.Detector
	norm     dedup.Normalizer
	logger   *slog.Logger
	sinks    []EventSink
	opener   LocationOpener
	now      func() time.Time
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Detector returns the code detector, shared with the store rescan.
func (p *Pipeline) Detector() *barcode.Detector { return p.detector }

// NewSession starts a capture session writing to outputDir (empty = default).
func (p *Pipeline) NewSession(outputDir string) *Session {
	return newSession(p, outputDir)
}
