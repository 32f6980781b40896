package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/roman-kulish/gpstrack/internal/batch"
	"github.com/roman-kulish/gpstrack/internal/gpmf"
	"github.com/roman-kulish/gpstrack/internal/media"
	"github.com/roman-kulish/gpstrack/internal/pipeline"
	"github.com/roman-kulish/gpstrack/internal/render"
	"github.com/roman-kulish/gpstrack/internal/storage"
	"github.com/roman-kulish/gpstrack/internal/tabular"
	"github.com/roman-kulish/gpstrack/internal/telemetry"
)

// IO groups the streams used for the interactive prompt and the run summary
type IO struct {
	In  io.Reader
	Out io.Writer
}

// Run processes the configured videos and prints the run summary to out. It
// only fails when the batch cannot be set up or the input directory cannot be
// read; per-video failures are part of the summary.
func Run(ctx context.Context, config *Config, logger *slog.Logger, stdio IO) error {
	source, err := media.NewSource(
		media.WithLogger(logger),
		media.WithFFmpeg(config.Media.FFmpeg),
		media.WithFFprobe(config.Media.FFprobe),
		media.WithTempDir(config.Media.TempDir),
	)
	if err != nil {
		return fmt.Errorf("creating media source: %w", err)
	}

	return run(ctx, config, source, logger, stdio)
}

// run drives the batch over videos whose telemetry track is read from source
func run(ctx context.Context, config *Config, source pipeline.TrackSource, logger *slog.Logger, stdio IO) error {
	if config.Input == "" && config.File == "" {
		input, err := prompt(stdio.In, stdio.Out, "Input directory with videos")
		if err != nil {
			return fmt.Errorf("asking for input directory: %w", err)
		}
		config.Input = input
	}

	processor, err := createProcessor(config, source, logger)
	if err != nil {
		return err
	}

	options := []func(*batch.Controller){
		batch.WithLogger(logger),
		batch.WithWorkers(config.Batch.Workers),
		batch.WithExtensions(config.Batch.Extensions...),
	}

	if config.Storage.Database != "" {
		store := storage.NewSqliteStore(config.Storage.Database)
		defer func() {
			if cErr := store.Close(); cErr != nil {
				logger.Warn("closing run ledger", slog.Any("error", cErr))
			}
		}()

		options = append(options, batch.WithRecorder(store))
	}

	controller := batch.NewController(processor, options...)

	var summary *batch.RunSummary
	if config.File != "" {
		summary = controller.RunFiles(ctx, filepath.Dir(config.File), []string{config.File}, config.Output)
	} else if summary, err = controller.Run(ctx, config.Input, config.Output); err != nil {
		return err
	}

	return summary.Print(stdio.Out)
}

func createProcessor(config *Config, source pipeline.TrackSource, logger *slog.Logger) (*pipeline.Processor, error) {
	extractor := telemetry.NewExtractor(
		telemetry.WithStream(config.Extract.Stream),
		telemetry.WithPolicy(config.Extract.Policy),
		telemetry.WithFallback(config.Extract.TimestampFallback),
	)

	options := []func(*pipeline.Processor){
		pipeline.WithLogger(logger),
		pipeline.WithMinDistance(config.Filter.MinDistance),
		pipeline.WithExtractor(extractor),
		pipeline.WithTimeout(config.Batch.Timeout.Duration()),
	}

	if config.Render.Enabled {
		renderer, err := render.NewRenderer(render.Config{
			Width:      config.Render.Width,
			Height:     config.Render.Height,
			Format:     config.Render.Format,
			ColorTheme: config.Render.Theme,
		})
		if err != nil {
			return nil, fmt.Errorf("creating track renderer: %w", err)
		}
		options = append(options, pipeline.WithRenderer(renderer))
	}

	decoder := gpmf.NewDecoder(gpmf.WithLogger(logger))
	return pipeline.NewProcessor(source, decoder, tabular.NewWriter(), options...), nil
}
