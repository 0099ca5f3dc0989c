package store

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// FileOutcome is the rescan result for one file.
type FileOutcome string

const (
	OutcomeDecoded    FileOutcome = "decoded"
	OutcomeNoCode     FileOutcome = "no_code"
	OutcomeUnreadable FileOutcome = "unreadable"
	OutcomeSkipped    FileOutcome = "skipped"
)

// FileResult records what the rescan did with one file.
type FileResult struct {
	Name     string      `json:"name"`
	Outcome  FileOutcome `json:"outcome"`
	Contents []string    `json:"contents,omitempty"`
	Err      error       `json:"-"`
}

// RescanReport aggregates per-file results.
type RescanReport struct {
	Files      []FileResult `json:"files"`
	Decoded    int          `json:"decoded"`
	NoCode     int          `json:"no_code"`
	Unreadable int          `json:"unreadable"`
	Skipped    int          `json:"skipped"`
}

func (r *RescanReport) add(fr FileResult) {
	r.Files = append(r.Files, fr)
	switch fr.Outcome {
	case OutcomeDecoded:
		r.Decoded++
	case OutcomeNoCode:
		r.NoCode++
	case OutcomeUnreadable:
		r.Unreadable++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Identities returns every decoded payload in file order.
func (r *RescanReport) Identities() []string {
	var out []string
	for _, f := range r.Files {
		out = append(out, f.Contents...)
	}
	return out
}

// Decoder recovers payloads from a saved crop image.
type Decoder interface {
	Contents(ctx context.Context, img image.Image) []string
}

// Rescan decodes every crop file in dir. Hidden files are ignored; files
// that do not follow the crop naming convention are reported as skipped.
func Rescan(ctx context.Context, dir string, dec Decoder) (RescanReport, error) {
	var report RescanReport
	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !IsCropName(name) {
			report.add(FileResult{Name: name, Outcome: OutcomeSkipped})
			continue
		}
		img, _, err := utils.LoadImage(filepath.Join(dir, name))
		if err != nil {
			report.add(FileResult{Name: name, Outcome: OutcomeUnreadable, Err: err})
			continue
		}
		contents := dec.Contents(ctx, img)
		if len(contents) == 0 {
			report.add(FileResult{Name: name, Outcome: OutcomeNoCode})
			continue
		}
		report.add(FileResult{Name: name, Outcome: OutcomeDecoded, Contents: contents})
	}
	return report, nil
}
