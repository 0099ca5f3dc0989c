package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/qrharvest/internal/barcode"
	"github.com/MeKo-Tech/qrharvest/internal/dedup"
	"github.com/MeKo-Tech/qrharvest/internal/store"
)

// captureWorld is the per-scenario state of the capture feature suite.
type captureWorld struct {
	dir     string
	backend *scriptedBackend
	p       *Pipeline
	sess    *Session
	last    *FrameResult
	all     []*FrameResult
}

func (w *captureWorld) anEmptyOutputLocation() error {
	dir, err := os.MkdirTemp("", "qrharvest-feature-*")
	if err != nil {
		return err
	}
	w.dir = dir
	w.backend = &scriptedBackend{}
	p, err := NewBuilder().
		WithBackend(w.backend).
		WithEnhance(false).
		WithLocking(false).
		WithClock(func() time.Time { return testNow }).
		WithLogger(discardLogger()).
		Build()
	if err != nil {
		return err
	}
	w.p = p
	w.sess = p.NewSession(dir)
	return nil
}

func (w *captureWorld) theOutputLocationAlreadyHolds(content string) error {
	return store.WriteMetadata(filepath.Join(w.dir, store.MetadataFile), []string{content}, testNow)
}

func (w *captureWorld) process(codes ...barcode.RawCode) error {
	w.backend.push(codes...)
	res, err := w.p.Process(context.Background(), blankFrame(), w.sess)
	if err != nil {
		return err
	}
	w.last = res
	w.all = append(w.all, res)
	return nil
}

func (w *captureWorld) aFrameShowingTwoIsProcessed(a, b string) error {
	return w.process(code(a, 10, 10), code(b, 100, 100))
}

func (w *captureWorld) aFrameShowingIsProcessed(content string) error {
	return w.process(code(content, 10, 10))
}

func (w *captureWorld) aFrameShowingAnUnreadableCodeIsProcessed() error {
	return w.process(unreadable(50, 50))
}

func (w *captureWorld) theSessionIsReset() error {
	return w.sess.Reset()
}

func (w *captureWorld) event(content string) (CaptureEvent, error) {
	if w.last == nil {
		return CaptureEvent{}, fmt.Errorf("no frame processed")
	}
	for _, e := range w.last.Events {
		if e.Content == content {
			return e, nil
		}
	}
	return CaptureEvent{}, fmt.Errorf("no event for %q in %+v", content, w.last.Events)
}

func (w *captureWorld) shouldBeNew(content string) error {
	e, err := w.event(content)
	if err != nil {
		return err
	}
	if e.Decision != dedup.New || !e.Saved() {
		return fmt.Errorf("%q: got %s saved=%v", content, e.Decision, e.Saved())
	}
	return nil
}

func (w *captureWorld) shouldBeADuplicate(content, reason string) error {
	e, err := w.event(content)
	if err != nil {
		return err
	}
	if e.Decision != dedup.Duplicate || e.Reason != reason {
		return fmt.Errorf("%q: got %s (%s)", content, e.Decision, e.Reason)
	}
	return nil
}

func (w *captureWorld) theUnreadableCodeShouldBeADuplicate(reason string) error {
	return w.shouldBeADuplicate(UnreadableMarker, reason)
}

func (w *captureWorld) cropsShouldBeSaved(n int) error {
	if w.last == nil {
		return fmt.Errorf("no frame processed")
	}
	if got := w.last.NewCount(); got != n {
		return fmt.Errorf("saved %d crops, want %d", got, n)
	}
	return nil
}

func (w *captureWorld) cropsShouldExist(n int) error {
	matches, err := filepath.Glob(filepath.Join(w.dir, store.CropPrefix+"*"))
	if err != nil {
		return err
	}
	if len(matches) != n {
		return fmt.Errorf("found %d crops, want %d", len(matches), n)
	}
	return nil
}

func (w *captureWorld) theMetadataShouldList(list string) error {
	meta, err := store.ReadMetadata(filepath.Join(w.dir, store.MetadataFile))
	if err != nil {
		return err
	}
	if got := strings.Join(meta.Contents, ","); got != list {
		return fmt.Errorf("metadata lists %q, want %q", got, list)
	}
	return nil
}

func (w *captureWorld) cleanup() {
	if w.sess != nil {
		_ = w.sess.Close()
	}
	if w.dir != "" {
		_ = os.RemoveAll(w.dir)
	}
}

func initializeCaptureScenario(sc *godog.ScenarioContext) {
	w := &captureWorld{}

	sc.Step(`^an empty output location$`, w.anEmptyOutputLocation)
	sc.Step(`^the output location already holds "([^"]*)"$`, w.theOutputLocationAlreadyHolds)
	sc.Step(`^a frame showing "([^"]*)" and "([^"]*)" is processed$`, w.aFrameShowingTwoIsProcessed)
	sc.Step(`^a frame showing "([^"]*)" is processed$`, w.aFrameShowingIsProcessed)
	sc.Step(`^a frame showing an unreadable code is processed$`, w.aFrameShowingAnUnreadableCodeIsProcessed)
	sc.Step(`^the session is reset$`, w.theSessionIsReset)
	sc.Step(`^"([^"]*)" should be NEW$`, w.shouldBeNew)
	sc.Step(`^"([^"]*)" should be a duplicate "([^"]*)"$`, w.shouldBeADuplicate)
	sc.Step(`^the unreadable code should be a duplicate "([^"]*)"$`, w.theUnreadableCodeShouldBeADuplicate)
	sc.Step(`^(\d+) crops should be saved$`, w.cropsShouldBeSaved)
	sc.Step(`^(\d+) crops should exist in the output location$`, w.cropsShouldExist)
	sc.Step(`^the metadata should list "([^"]*)"$`, w.theMetadataShouldList)

	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		w.cleanup()
		return ctx, nil
	})
}

func TestCaptureFeatures(t *testing.T) {
	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "progress"
	}
	suite := godog.TestSuite{
		Name:                "capture",
		ScenarioInitializer: initializeCaptureScenario,
		Options: &godog.Options{
			Format:   format,
			Paths:    []string{filepath.Join("features", "capture.feature")},
			Tags:     os.Getenv("GODOG_TAGS"),
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("capture feature scenarios failed")
	}
}
