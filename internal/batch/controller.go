package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/gpstrack/internal/pipeline"
	"github.com/roman-kulish/gpstrack/internal/storage"
)

const statusSkipped = "skipped"

// ErrInputDirectory is returned when the input directory cannot be enumerated
var ErrInputDirectory = errors.New("input directory is not readable")

// Processor turns a single video into a track file
type Processor interface {
	Process(ctx context.Context, videoPath, outputDir string) pipeline.Result
	MinDistance() float64
}

// Recorder persists runs and per-file outcomes. Recorder errors never abort a run.
type Recorder interface {
	BeginRun(ctx context.Context, run *storage.Run) error
	RecordFiles(ctx context.Context, records ...*storage.FileRecord) error
	FinishRun(ctx context.Context, run *storage.Run) error
}

// WithLogger sets the logger for the controller
func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger.With(slog.String("component", "batch"))
	}
}

// WithWorkers sets the number of videos processed concurrently. The summary is
// identical to a sequential run whatever the value.
func WithWorkers(n int) func(*Controller) {
	return func(c *Controller) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithRecorder enables the run ledger
func WithRecorder(r Recorder) func(*Controller) {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithExtensions replaces the video extension allow-list
func WithExtensions(exts ...string) func(*Controller) {
	return func(c *Controller) {
		if len(exts) > 0 {
			c.extensions = exts
		}
	}
}

// Controller enumerates videos and drives the processor over each of them. A
// failing video never stops the batch.
type Controller struct {
	processor  Processor
	recorder   Recorder
	extensions []string
	workers    int
	logger     *slog.Logger
}

// NewController creates a new batch controller
func NewController(processor Processor, options ...func(*Controller)) *Controller {
	c := &Controller{
		processor:  processor,
		extensions: DefaultExtensions,
		workers:    1,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Run processes every video found directly inside inputDir and writes the
// tracks to outputDir. Only a failure to enumerate inputDir is returned as an
// error; an empty directory yields an all-zero summary.
func (c *Controller) Run(ctx context.Context, inputDir, outputDir string) (*RunSummary, error) {
	videos, err := Discover(inputDir, c.extensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputDirectory, err)
	}

	c.logger.Info("discovered videos",
		slog.String("inputDir", inputDir),
		slog.Int("count", len(videos)),
	)

	return c.RunFiles(ctx, inputDir, videos, outputDir), nil
}

// RunFiles processes the given videos in order. inputDir is informational and
// only used for the summary and the run ledger.
func (c *Controller) RunFiles(ctx context.Context, inputDir string, videos []string, outputDir string) *RunSummary {
	summary := newSummary(inputDir, outputDir, len(videos))
	run := c.beginRun(ctx, summary)

	next := 0
	for o := range c.dispatch(ctx, videos, outputDir) {
		next++

		if o.skipped {
			summary.skip(videos[o.index])
			c.record(ctx, run, skippedRecord(run, videos[o.index]))
			continue
		}

		r := o.result
		c.logger.Info("processed video",
			slog.Int("index", next),
			slog.Int("total", len(videos)),
			slog.String("file", r.VideoPath),
			slog.String("status", string(r.Status)),
		)

		summary.add(r)
		c.record(ctx, run, fileRecord(run, r))
	}

	for _, video := range videos[next:] {
		summary.skip(video)
		c.record(ctx, run, skippedRecord(run, video))
	}

	summary.Interrupted = summary.Skipped > 0
	summary.Duration = time.Since(summary.StartedAt)

	c.finishRun(ctx, run, summary)

	c.logger.Info("batch finished",
		slog.Int("discovered", summary.Discovered),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Bool("interrupted", summary.Interrupted),
	)

	return summary
}

type outcome struct {
	index   int
	result  pipeline.Result
	skipped bool
}

// dispatch fans videos out to the workers and yields the outcomes in
// enumeration order. Cancellation is only observed between videos: once ctx is
// cancelled no new video is started, but a video in progress runs to completion.
// The yielded outcomes always cover a prefix of videos.
func (c *Controller) dispatch(ctx context.Context, videos []string, outputDir string) <-chan outcome {
	processCtx := context.WithoutCancel(ctx)

	jobs := make(chan int)
	outcomes := make(chan outcome)
	ordered := make(chan outcome)

	var wg sync.WaitGroup
	for range c.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					outcomes <- outcome{index: i, skipped: true}
					continue
				}
				outcomes <- outcome{index: i, result: c.processor.Process(processCtx, videos[i], outputDir)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range videos {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	go func() {
		defer close(ordered)

		pending := make(map[int]outcome)
		next := 0
		for o := range outcomes {
			pending[o.index] = o
			for {
				p, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				ordered <- p
				next++
			}
		}
	}()

	return ordered
}

func (c *Controller) beginRun(ctx context.Context, summary *RunSummary) *storage.Run {
	if c.recorder == nil {
		return nil
	}

	run := &storage.Run{
		StartedAt:   summary.StartedAt,
		InputDir:    summary.InputDir,
		OutputDir:   summary.OutputDir,
		MinDistance: c.processor.MinDistance(),
		Discovered:  summary.Discovered,
	}
	if err := c.recorder.BeginRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Warn("recording run failed, ledger disabled for this run", slog.Any("error", err))
		return nil
	}

	return run
}

func (c *Controller) record(ctx context.Context, run *storage.Run, rec *storage.FileRecord) {
	if run == nil {
		return
	}

	if err := c.recorder.RecordFiles(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("recording file failed", slog.String("file", rec.Path), slog.Any("error", err))
	}
}

func (c *Controller) finishRun(ctx context.Context, run *storage.Run, summary *RunSummary) {
	if run == nil {
		return
	}

	run.Discovered = summary.Discovered
	run.Succeeded = summary.Succeeded
	run.Failed = summary.Failed
	run.Skipped = summary.Skipped
	run.Interrupted = summary.Interrupted

	if err := c.recorder.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Warn("finishing run failed", slog.String("run", run.ID), slog.Any("error", err))
	}
}

func fileRecord(run *storage.Run, r pipeline.Result) *storage.FileRecord {
	if run == nil {
		return nil
	}

	rec := &storage.FileRecord{
		RunID:         run.ID,
		Path:          r.VideoPath,
		Status:        string(r.Status),
		Reason:        string(r.Reason),
		Stage:         string(r.Stage),
		Output:        r.Output,
		Points:        r.Track.Points,
		TotalDistance: r.Track.TotalDistance,
		ProcessedAt:   time.Now(),
	}
	if r.Track.Start != nil {
		rec.TrackStart = r.Track.Start.Time
	}
	if r.Track.End != nil {
		rec.TrackEnd = r.Track.End.Time
	}

	return rec
}

func skippedRecord(run *storage.Run, video string) *storage.FileRecord {
	if run == nil {
		return nil
	}

	return &storage.FileRecord{
		RunID:       run.ID,
		Path:        video,
		Status:      statusSkipped,
		Stage:       string(pipeline.StageStart),
		ProcessedAt: time.Now(),
	}
}
