package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roman-kulish/gpstrack/internal/geo"
	"github.com/roman-kulish/gpstrack/internal/telemetry"
	"github.com/roman-kulish/gpstrack/internal/track"
)

// WithLogger sets the logger for the processor
func WithLogger(logger *slog.Logger) func(*Processor) {
	return func(p *Processor) {
		p.logger = logger.With(slog.String("component", "pipeline"))
	}
}

// WithMinDistance sets the distance threshold of the track filter in meters
func WithMinDistance(meters float64) func(*Processor) {
	return func(p *Processor) {
		p.minDistance = meters
	}
}

// WithExtractor replaces the default sample extractor
func WithExtractor(e *telemetry.Extractor) func(*Processor) {
	return func(p *Processor) {
		p.extractor = e
	}
}

// WithRenderer enables a preview image written next to every track
func WithRenderer(r TrackWriter) func(*Processor) {
	return func(p *Processor) {
		p.renderer = r
	}
}

// WithTimeout bounds the time spent on a single video, zero means no limit
func WithTimeout(d time.Duration) func(*Processor) {
	return func(p *Processor) {
		p.timeout = d
	}
}

// Processor runs the per-video pipeline: acquire, decode, extract, filter and
// serialize. It is safe for concurrent use if its collaborators are.
type Processor struct {
	source    TrackSource
	decoder   telemetry.Decoder
	writer    TrackWriter
	renderer  TrackWriter
	extractor *telemetry.Extractor

	minDistance float64
	timeout     time.Duration
	logger      *slog.Logger
}

// NewProcessor creates a new processor with the given collaborators
func NewProcessor(source TrackSource, decoder telemetry.Decoder, writer TrackWriter, options ...func(*Processor)) *Processor {
	p := &Processor{
		source:      source,
		decoder:     decoder,
		writer:      writer,
		extractor:   telemetry.NewExtractor(),
		minDistance: track.DefaultMinDistance,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(p)
	}

	return p
}

// MinDistance returns the configured filter threshold in meters
func (p *Processor) MinDistance() float64 {
	return p.minDistance
}

// Process turns one video into a track file under outputDir. It never panics
// and never returns an error: every failure is reported through the Result.
func (p *Processor) Process(ctx context.Context, videoPath, outputDir string) (res Result) {
	started := time.Now()
	logger := p.logger.With(slog.String("file", videoPath))

	res = Result{VideoPath: videoPath, Stage: StageStart}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res.fail(StatusFailed, reasonFor(res.Stage), fmt.Errorf("panic: %v", r))
		}
		res.Duration = time.Since(started)

		if res.OK() {
			return
		}
		logger.Warn("processing aborted",
			slog.String("stage", string(res.Stage)),
			slog.String("reason", string(res.Reason)),
			slog.Any("error", res.Err),
		)
	}()

	res.Stage = StageAcquire
	if err := acquire(videoPath); err != nil {
		res.fail(StatusFailed, ReasonRead, err)
		return
	}

	res.Stage = StageDecode
	raw, err := p.source.Extract(ctx, videoPath)
	if err != nil {
		res.fail(StatusFailed, ReasonDecode, fmt.Errorf("extracting telemetry track: %w", err))
		return
	}

	devices, err := p.decoder.Decode(ctx, raw, telemetry.Selector{p.extractor.Stream()})
	if err != nil {
		res.fail(StatusFailed, ReasonDecode, fmt.Errorf("decoding telemetry: %w", err))
		return
	}

	res.Stage = StageExtract
	points, stats := p.extractor.Extract(devices)
	res.Extract = stats

	logger.Debug("extracted samples",
		slog.Int("devices", stats.Devices),
		slog.Int("samples", stats.Samples),
		slog.Int("accepted", stats.Accepted),
		slog.Int("dropped", stats.Dropped),
		slog.Int("untimed", stats.Untimed),
	)

	if len(points) == 0 {
		res.fail(StatusNoTelemetry, ReasonNoTelemetry, ErrNoTelemetry)
		return
	}

	res.Stage = StageFilter
	filtered := track.Filter(points, p.minDistance)
	res.Track = track.ComputeStats(filtered)

	res.Stage = StageSerialize
	output := p.writer.OutputPath(outputDir, videoPath)
	if err = p.writer.Write(output, filtered); err != nil {
		res.fail(StatusFailed, ReasonWrite, fmt.Errorf("writing track: %w", err))
		return
	}
	res.Output = output

	res.Stage = StageDone
	res.Status = StatusSucceeded

	if p.renderer != nil {
		preview := p.renderer.OutputPath(outputDir, videoPath)
		if err = p.render(preview, filtered); err != nil {
			logger.Warn("rendering preview failed", slog.Any("error", err))
		} else {
			res.Preview = preview
		}
	}

	logger.Info("track written",
		slog.String("output", output),
		slog.Int("points", res.Track.Points),
		slog.Float64("distance", res.Track.TotalDistance),
	)

	return
}

// render writes the optional preview. A panicking renderer is reported as an
// error so the already written track is unaffected.
func (p *Processor) render(path string, points []geo.GeoPoint) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return p.renderer.Write(path, points)
}

// acquire checks that the video is a readable regular file
func acquire(videoPath string) (err error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("opening video: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing video: %w", cErr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("reading video info: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", videoPath)
	}

	return nil
}
