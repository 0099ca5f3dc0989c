package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ToJSONFrame serializes a single FrameResult to pretty JSON.
func ToJSONFrame(res *FrameResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONFrames serializes multiple FrameResult entries to pretty JSON.
func ToJSONFrames(results []*FrameResult) (string, error) {
	if results == nil {
		results = []*FrameResult{}
	}
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainTextFrame renders one line per event, in detection order.
func ToPlainTextFrame(res *FrameResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	lines := make([]string, 0, len(res.Events))
	for _, e := range res.Events {
		lines = append(lines, eventLine(e))
	}
	return strings.Join(lines, "\n"), nil
}

func eventLine(e CaptureEvent) string {
	switch {
	case e.Err != nil || e.Error != "":
		msg := e.Error
		if msg == "" {
			msg = e.Err.Error()
		}
		return fmt.Sprintf("#%d FAILED %s: %s", e.Index, e.Content, msg)
	case e.Saved():
		return fmt.Sprintf("#%d %s %s -> %s", e.Index, e.Decision, e.Content, e.SavedPath)
	case e.Reason != "":
		return fmt.Sprintf("#%d %s %s (%s)", e.Index, e.Decision, e.Content, e.Reason)
	default:
		return fmt.Sprintf("#%d %s %s", e.Index, e.Decision, e.Content)
	}
}

// ToCSVFrames exports one row per event across frames, with a header.
func ToCSVFrames(results []*FrameResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"source", "sequence", "index", "decision", "kind", "content", "reason", "saved_path", "x", "y", "w", "h", "error"})
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, e := range res.Events {
			_ = w.Write([]string{
				res.Source,
				strconv.Itoa(res.Sequence),
				strconv.Itoa(e.Index),
				e.Decision.String(),
				e.Kind,
				e.Content,
				e.Reason,
				e.SavedPath,
				strconv.Itoa(e.Box.Min.X),
				strconv.Itoa(e.Box.Min.Y),
				strconv.Itoa(e.Box.Dx()),
				strconv.Itoa(e.Box.Dy()),
				e.Error,
			})
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// Format renders results in one of "text", "json" or "csv".
func Format(results []*FrameResult, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "text":
		parts := make([]string, 0, len(results))
		for _, r := range results {
			txt, err := ToPlainTextFrame(r)
			if err != nil {
				return "", err
			}
			header := r.Source
			if header == "" {
				header = fmt.Sprintf("frame %d", r.Sequence)
			}
			if txt == "" {
				txt = "no codes found"
			}
			parts = append(parts, header+":\n"+txt)
		}
		return strings.Join(parts, "\n\n"), nil
	case "json":
		return ToJSONFrames(results)
	case "csv":
		return ToCSVFrames(results)
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}
