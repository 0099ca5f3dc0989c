package pipeline

import (
	"image"
	"time"

	"github.com/MeKo-Tech/qrharvest/internal/dedup"
)

// UnreadableMarker stands in for the content of a code that could not be decoded.
const UnreadableMarker = "<unreadable>"

// CaptureEvent is the outcome for one detected code.
type CaptureEvent struct {
	// Index is the 1-based position of the code within its frame.
	Index    int            `json:"index"`
	Identity string         `json:"identity"`
	Kind     string         `json:"kind"`
	Content  string         `json:"content"`
	Decision dedup.Decision `json:"decision"`
	Reason   string         `json:"reason,omitempty"`
	// SavedPath is set for NEW codes whose crop was written.
	SavedPath string          `json:"saved_path,omitempty"`
	Box       image.Rectangle `json:"box"`
	Polygon   []image.Point   `json:"polygon,omitempty"`
	Err       error           `json:"-"`
	Error     string          `json:"error,omitempty"`
}

// Saved reports whether the event produced a crop file.
func (e CaptureEvent) Saved() bool { return e.SavedPath != "" }

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	SessionID  string         `json:"session_id"`
	Sequence   int            `json:"sequence"`
	Source     string         `json:"source,omitempty"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Detections int            `json:"detections"`
	Events     []CaptureEvent `json:"events"`
	OutputDir  string         `json:"output_dir,omitempty"`
	Processing struct {
		DetectionNs int64 `json:"detection_ns"`
		TotalNs     int64 `json:"total_ns"`
	} `json:"processing"`

	// Annotated is the frame with markers drawn, or the input frame when
	// nothing was drawn.
	Annotated  image.Image `json:"-"`
	PersistErr error       `json:"-"`
}

// NewCount returns the number of codes saved from this frame.
func (r *FrameResult) NewCount() int {
	n := 0
	for _, e := range r.Events {
		if e.Saved() {
			n++
		}
	}
	return n
}

// DuplicateCount returns the number of duplicate verdicts in this frame.
func (r *FrameResult) DuplicateCount() int {
	n := 0
	for _, e := range r.Events {
		if e.Decision == dedup.Duplicate {
			n++
		}
	}
	return n
}

// SavedPaths lists the crops written for this frame in event order.
func (r *FrameResult) SavedPaths() []string {
	var out []string
	for _, e := range r.Events {
		if e.Saved() {
			out = append(out, e.SavedPath)
		}
	}
	return out
}

// Stats summarizes a capture session.
type Stats struct {
	SessionID  string    `json:"session_id"`
	Started    time.Time `json:"started"`
	Frames     int       `json:"frames"`
	Saved      int       `json:"saved"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	OutputDir  string    `json:"output_dir,omitempty"`
}
