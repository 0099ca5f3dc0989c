package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/MeKo-Tech/qrharvest/internal/dedup"
	"github.com/MeKo-Tech/qrharvest/internal/enhance"
	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// Process runs one frame through the capture step for sess. Only an
// unreadable frame or an output location that cannot be prepared is an
// error; per-code failures are reported on the events.
func (p *Pipeline) Process(ctx context.Context, frame image.Image, sess *Session) (*FrameResult, error) {
	return p.ProcessNamed(ctx, "", frame, sess)
}

// ProcessNamed is Process with the frame's origin recorded on the result.
func (p *Pipeline) ProcessNamed(ctx context.Context, name string, frame image.Image, sess *Session) (*FrameResult, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, ErrUnreadableFrame
	}
	if frame.Bounds().Min != (image.Point{}) {
		frame = utils.CloneRGBA(frame)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	start := time.Now()
	sess.stats.Frames++
	res := &FrameResult{
		SessionID: sess.id,
		Sequence:  sess.stats.Frames,
		Source:    name,
		Width:     frame.Bounds().Dx(),
		Height:    frame.Bounds().Dy(),
		Events:    []CaptureEvent{},
		Annotated: frame,
	}

	var input image.Image = frame
	if p.cfg.Enhance {
		input = enhance.Enhance(frame, p.cfg.EnhanceOptions)
	}
	dets := p.detector.Detect(ctx, input)
	res.Detections = len(dets)
	res.Processing.DetectionNs = time.Since(start).Nanoseconds()
	if len(dets) == 0 {
		res.Processing.TotalNs = time.Since(start).Nanoseconds()
		return res, nil
	}

	loc, err := sess.ensureLocation(ctx)
	if err != nil {
		return nil, err
	}
	res.OutputDir = loc.Dir()

	stamp := p.now()
	markers := make([]marker, 0, len(dets))
	for i, det := range dets {
		rect := det.Box.PaddedRect(p.cfg.Padding, frame.Bounds())
		if rect.Empty() {
			continue
		}
		id := dedup.Resolve(det.Text, det.Decoded, det.Box, p.norm)
		verdict := dedup.Classify(id, sess.set, loc.Index())

		ev := CaptureEvent{
			Index:    i + 1,
			Identity: id.Key,
			Kind:     id.Kind.String(),
			Content:  id.Key,
			Decision: verdict.Decision,
			Reason:   verdict.Reason,
			Box:      rect,
			Polygon:  det.Polygon,
		}
		if id.Kind == dedup.KindPosition {
			ev.Content = UnreadableMarker
		}

		if !verdict.IsNew() {
			sess.stats.Duplicates++
			p.logger.Info("duplicate qr code", "content", ev.Content, "reason", ev.Reason)
			res.Events = append(res.Events, ev)
			markers = append(markers, marker{kind: markDuplicate, polygon: det.Polygon, box: rect})
			continue
		}

		sess.set.Add(id.Key)
		addedToIndex := id.Persistent() && loc.Index().Add(id.Key)

		crop := utils.CropImageRect(frame, rect)
		path, err := loc.SaveCrop(crop, stamp, ev.Index, p.cfg.CropFormat)
		if err != nil {
			// Forget the identity so the code is captured again next time it is seen.
			sess.set.Remove(id.Key)
			if addedToIndex {
				loc.Index().Remove(id.Key)
			}
			sess.stats.Failed++
			ev.Err = err
			ev.Error = err.Error()
			p.logger.Warn("failed to save qr crop", "content", ev.Content, "error", err)
			res.Events = append(res.Events, ev)
			markers = append(markers, marker{kind: markFailed, polygon: det.Polygon, box: rect})
			continue
		}
		ev.SavedPath = path

		if addedToIndex {
			if err := loc.Persist(); err != nil {
				res.PersistErr = err
				p.logger.Warn("failed to persist index, keeping it in memory", "error", err)
			}
		}
		sess.stats.Saved++
		p.logger.Info("saved qr code", "content", ev.Content, "path", path)
		res.Events = append(res.Events, ev)
		markers = append(markers, marker{kind: markNew, polygon: det.Polygon, box: rect, label: ev.Content})
	}

	if p.cfg.Annotate && len(markers) > 0 {
		res.Annotated = p.renderMarkers(frame, markers)
	}
	res.Processing.TotalNs = time.Since(start).Nanoseconds()

	if len(res.Events) > 0 {
		for _, sink := range p.sinks {
			sink.Consume(ctx, res)
		}
	}
	return res, nil
}

// ProcessFile loads path and processes it as a one-shot session: sess is
// reset first so the file is classified against a freshly loaded index.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, sess *Session) (*FrameResult, error) {
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableFrame, path, err)
	}
	if err := sess.Reset(); err != nil {
		p.logger.Warn("failed to release previous output location", "error", err)
	}
	if _, err := sess.Location(ctx); err != nil {
		return nil, err
	}
	return p.ProcessNamed(ctx, path, img, sess)
}
