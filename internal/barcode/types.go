package barcode

import (
	"context"
	"image"
)

// Outcome classifies the result of one detection path.
type Outcome int

const (
	// OutcomeEmpty means the path ran and found nothing.
	OutcomeEmpty Outcome = iota
	// OutcomeFound means at least one code was located.
	OutcomeFound
	// OutcomeUnsupported means the path could not run on this input.
	OutcomeUnsupported
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeEmpty:
		return "empty"
	case OutcomeUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// RawCode is a code as reported by a backend before normalization.
type RawCode struct {
	// Polygon holds the code corners in frame coordinates.
	Polygon []image.Point
	// Text is the decoded payload; meaningful only when Decoded is true.
	Text    string
	Decoded bool
}

// Capability is the result of one detection path.
type Capability struct {
	Outcome Outcome
	Codes   []RawCode
	Err     error
}

// Found wraps codes as a capability result, mapping an empty slice to OutcomeEmpty.
func Found(codes ...RawCode) Capability {
	if len(codes) == 0 {
		return Capability{Outcome: OutcomeEmpty}
	}
	return Capability{Outcome: OutcomeFound, Codes: codes}
}

// Empty reports that nothing was found.
func Empty() Capability { return Capability{Outcome: OutcomeEmpty} }

// Unsupported reports that a path failed for a reason other than "no codes".
func Unsupported(err error) Capability {
	return Capability{Outcome: OutcomeUnsupported, Err: err}
}

// Backend is a pluggable code locator/decoder.
type Backend interface {
	// DetectMulti locates every code in img.
	DetectMulti(ctx context.Context, img image.Image) Capability
	// DetectSingle locates at most one code in img.
	DetectSingle(ctx context.Context, img image.Image) Capability
}

// Options controls the default backend.
type Options struct {
	// TryHarder enables a more exhaustive (slower) search.
	TryHarder bool
}
