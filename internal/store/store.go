// Package store keeps the durable index of captured codes for an output
// location: a JSON metadata record reconciled against the crop images saved
// next to it.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/MeKo-Tech/qrharvest/internal/barcode"
	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// LockFile guards an output location against a second writer process.
const LockFile = ".qrharvest.lock"

// maxNameAttempts bounds the collision suffix search in SaveCrop.
const maxNameAttempts = 1000

// ErrLocationLocked is returned by Open when another process holds the lock.
var ErrLocationLocked = errors.New("output location is in use by another process")

// Options configures Open.
type Options struct {
	// Lock takes an advisory lock on the location for the store's lifetime.
	Lock bool
	// Decoder recovers payloads during the rescan; nil selects the default detector.
	Decoder Decoder
	Logger  *slog.Logger
	// Now overrides the clock used for metadata timestamps.
	Now func() time.Time
}

// LoadReport describes how the index was reconstructed.
type LoadReport struct {
	MetadataFound   bool         `json:"metadata_found"`
	MetadataCorrupt bool         `json:"metadata_corrupt"`
	FromMetadata    int          `json:"from_metadata"`
	Recovered       int          `json:"recovered"`
	Total           int          `json:"total"`
	Rescan          RescanReport `json:"rescan"`
	PersistErr      error        `json:"-"`
}

// Store is the persistent index of one output location.
type Store struct {
	dir     string
	decoder Decoder
	logger  *slog.Logger
	now     func() time.Time
	lock    *flock.Flock
	index   *Index
}

// Open prepares dir as an output location, creating it if needed.
func Open(dir string, opts Options) (*Store, error) {
	if dir == "" {
		return nil, errors.New("output location is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output location: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create output location: %w", err)
	}

	s := &Store{
		dir:     abs,
		decoder: opts.Decoder,
		logger:  opts.Logger,
		now:     opts.Now,
		index:   NewIndex(),
	}
	if s.decoder == nil {
		s.decoder = barcode.NewDetector(nil, barcode.WithLogger(opts.Logger))
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	if opts.Lock {
		s.lock = flock.New(filepath.Join(abs, LockFile))
		ok, err := s.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire location lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLocationLocked, abs)
		}
	}
	return s, nil
}

// Dir returns the absolute output location.
func (s *Store) Dir() string { return s.dir }

// Index returns the in-memory index.
func (s *Store) Index() *Index { return s.index }

// MetadataPath returns the location of the metadata record.
func (s *Store) MetadataPath() string { return filepath.Join(s.dir, MetadataFile) }

// Close releases the location lock.
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// Load rebuilds the index from the metadata record and a rescan of saved
// crops, then persists the reconciled result. A missing or malformed record
// and a failed persist are reported, not returned; Load only fails when ctx
// ends.
func (s *Store) Load(ctx context.Context) (*LoadReport, error) {
	report := &LoadReport{}
	idx := NewIndex()

	meta, err := ReadMetadata(s.MetadataPath())
	switch {
	case err == nil:
		report.MetadataFound = true
		for _, c := range meta.Contents {
			idx.Add(c)
		}
		report.FromMetadata = idx.Len()
	case errors.Is(err, os.ErrNotExist):
	default:
		report.MetadataCorrupt = true
		s.logger.Warn("ignoring unusable metadata, rebuilding from saved crops",
			"path", s.MetadataPath(), "error", err)
	}

	rescan, err := Rescan(ctx, s.dir, s.decoder)
	report.Rescan = rescan
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		s.logger.Warn("rescan of output location failed", "dir", s.dir, "error", err)
	}
	for _, f := range rescan.Files {
		if f.Outcome == OutcomeUnreadable {
			s.logger.Debug("skipping unreadable crop", "file", f.Name, "error", f.Err)
		}
	}
	for _, c := range rescan.Identities() {
		if idx.Add(c) {
			report.Recovered++
		}
	}
	report.Total = idx.Len()
	s.index.replace(idx)

	if err := s.Persist(); err != nil {
		report.PersistErr = err
		s.logger.Warn("failed to persist reconciled index", "error", err)
	}
	s.logger.Debug("index loaded", "dir", s.dir, "total", report.Total,
		"from_metadata", report.FromMetadata, "recovered", report.Recovered)
	return report, nil
}

// Persist atomically writes the current index to the metadata record.
func (s *Store) Persist() error {
	if err := WriteMetadata(s.MetadataPath(), s.index.Keys(), s.now()); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

// SaveCrop encodes img and writes it under the crop naming convention. An
// existing file is never replaced; a numeric suffix is appended instead.
func (s *Store) SaveCrop(img image.Image, stamp time.Time, index int, ext string) (string, error) {
	norm, ok := utils.NormalizeExtension(ext)
	if !ok {
		norm = ".png"
	}
	var buf bytes.Buffer
	if err := utils.EncodeImage(&buf, img, norm); err != nil {
		return "", fmt.Errorf("encode crop: %w", err)
	}

	base := CropFilename(stamp, index, norm)
	name := base
	for n := 2; ; n++ {
		if _, err := os.Lstat(filepath.Join(s.dir, name)); errors.Is(err, os.ErrNotExist) {
			break
		}
		if n > maxNameAttempts {
			return "", fmt.Errorf("no free filename for %s", base)
		}
		name = suffixed(base, n)
	}

	path := filepath.Join(s.dir, name)
	if err := writeFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write crop: %w", err)
	}
	return path, nil
}
