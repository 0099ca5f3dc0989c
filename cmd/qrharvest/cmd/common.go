package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrharvest/internal/config"
	"github.com/MeKo-Tech/qrharvest/internal/journal"
	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
	"github.com/MeKo-Tech/qrharvest/internal/source"
	"github.com/MeKo-Tech/qrharvest/internal/stream"
	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// captureEnv bundles what the capture commands share.
type captureEnv struct {
	cfg       *config.Config
	logger    *slog.Logger
	pipeline  *pipeline.Pipeline
	journal   *journal.Journal
	outputDir string
}

func newCaptureEnv(cfg *config.Config, extra ...pipeline.EventSink) (*captureEnv, error) {
	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		return nil, err
	}
	env := &captureEnv{
		cfg:       cfg,
		logger:    slog.Default(),
		outputDir: cfg.OutputDir(),
	}

	var sinks []pipeline.EventSink
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.JournalPath(env.outputDir), journal.WithLogger(env.logger))
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		env.journal = j
		sinks = append(sinks, j)
	}
	sinks = append(sinks, extra...)

	p, err := pipeline.NewBuilder().
		WithConfig(pc).
		WithLogger(env.logger).
		WithSinks(sinks...).
		Build()
	if err != nil {
		_ = env.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	env.pipeline = p
	return env, nil
}

func (e *captureEnv) Close() error {
	if e.journal != nil {
		return e.journal.Close()
	}
	return nil
}

// saveOverlay writes the annotated frame into the overlay directory, if one
// is configured.
func (e *captureEnv) saveOverlay(res *pipeline.FrameResult) {
	dir := e.cfg.Output.OverlayDir
	if dir == "" || res == nil || res.Annotated == nil {
		return
	}
	path, err := writeOverlay(dir, res)
	if err != nil {
		e.logger.Warn("failed to save overlay", "source", res.Source, "error", err)
		return
	}
	e.logger.Debug("overlay saved", "path", path)
}

func writeOverlay(dir string, res *pipeline.FrameResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, overlayName(res))
	f, err := os.Create(path) //nolint:gosec // G304: path is built from the configured overlay directory
	if err != nil {
		return "", err
	}
	if err := utils.EncodeImage(f, res.Annotated, ".png"); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

func overlayName(res *pipeline.FrameResult) string {
	base := strings.TrimSuffix(filepath.Base(res.Source), filepath.Ext(res.Source))
	if res.Source == "" || base == "" || base == "." {
		base = fmt.Sprintf("frame_%d", res.Sequence)
	}
	base = strings.Map(func(r rune) rune {
		if r == ' ' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, base)
	return base + "_overlay.png"
}

// progressFor shows a bar on terminals and log lines everywhere else.
func progressFor(w io.Writer, logger *slog.Logger) pipeline.ProgressCallback {
	if isTerminal(w) {
		return pipeline.NewConsoleProgressCallback(w, "Capturing: ")
	}
	return pipeline.NewLogProgressCallback(logger, slog.LevelInfo)
}

// streamRun drives src through a runner into one session.
type streamRun struct {
	env       *captureEnv
	queueSize int
	total     int
	// onResult is called for every processed frame, in order.
	onResult func(*pipeline.FrameResult)
	// progress overrides the terminal or log reporter.
	progress pipeline.ProgressCallback
}

type streamOutcome struct {
	results []*pipeline.FrameResult
	stream  stream.Stats
	session pipeline.Stats
}

func (r streamRun) run(ctx context.Context, cmd *cobra.Command, src source.Source) (streamOutcome, error) {
	env := r.env
	if env.cfg.Source.Mirror {
		src = source.Mirror(src)
	}
	sess := env.pipeline.NewSession(env.outputDir)
	defer func() { _ = sess.Close() }()

	progress := r.progress
	if progress == nil {
		progress = progressFor(cmd.ErrOrStderr(), env.logger)
	}
	progress.OnStart(r.total)

	var (
		out streamOutcome
		n   int
	)
	runner := stream.NewRunner(stream.WithQueueSize(r.queueSize), stream.WithLogger(env.logger))
	st, err := runner.Run(ctx, src, func(ctx context.Context, f source.Frame) error {
		n++
		res, err := env.pipeline.ProcessNamed(ctx, f.Name, f.Image, sess)
		if err != nil {
			progress.OnError(n, err)
			return err
		}
		out.results = append(out.results, res)
		env.saveOverlay(res)
		if r.onResult != nil {
			r.onResult(res)
		}
		progress.OnFrame(framesConsumed(n, runner.Stats()), r.total, res)
		return nil
	})
	progress.OnComplete()

	out.stream = st
	out.session = sess.Stats()
	return out, err
}

// framesConsumed is the progress position of a stream: frames handled plus
// frames the hand-off dropped or the source reported empty. It reaches the
// source length once the last frame is handled.
func framesConsumed(handled int, st stream.Stats) int {
	return handled + int(st.Dropped+st.Empty)
}

// writeReport renders results in the configured format to output.file or
// the command's stdout.
func writeReport(cmd *cobra.Command, cfg *config.Config, results []*pipeline.FrameResult) error {
	report, err := pipeline.Format(results, cfg.Output.Format)
	if err != nil {
		return err
	}
	if cfg.Output.File != "" {
		if err := os.WriteFile(cfg.Output.File, []byte(report+"\n"), 0o644); err != nil { //nolint:gosec // G306: reports are meant to be shared
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	}
	if report == "" {
		return nil
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), report)
	return err
}

// tally sums the outcome counters of results.
func tally(results []*pipeline.FrameResult) pipeline.Stats {
	var st pipeline.Stats
	for _, r := range results {
		st.Frames++
		st.Saved += r.NewCount()
		st.Duplicates += r.DuplicateCount()
		for _, e := range r.Events {
			if e.Err != nil {
				st.Failed++
			}
		}
		if st.OutputDir == "" {
			st.OutputDir = r.OutputDir
		}
	}
	return st
}

func printSessionStats(w io.Writer, st pipeline.Stats) {
	dir := st.OutputDir
	if dir == "" {
		dir = "-"
	}
	_, _ = fmt.Fprintf(w, "Frames: %d  Saved: %d  Duplicates: %d  Failed: %d  Output: %s\n",
		st.Frames, st.Saved, st.Duplicates, st.Failed, dir)
}

func printStreamStats(w io.Writer, st stream.Stats) {
	_, _ = fmt.Fprintf(w, "Acquired: %d  Processed: %d  Dropped: %d  Empty: %d  Failed: %d\n",
		st.Acquired, st.Processed, st.Dropped, st.Empty, st.Failed)
}
