package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/gpstrack/internal/gpmf"
	"github.com/roman-kulish/gpstrack/internal/media"
	"github.com/roman-kulish/gpstrack/internal/storage"
	"github.com/roman-kulish/gpstrack/internal/telemetry"
)

type videoSource interface {
	Inspect(ctx context.Context, videoPath string) (*media.Container, error)
	Extract(ctx context.Context, videoPath string) (*telemetry.RawTrack, error)
}

func Run(ctx context.Context, config *Config, logger *slog.Logger, out io.Writer) error {
	if config.VideoPath != "" {
		source, err := media.NewSource(
			media.WithLogger(logger),
			media.WithFFmpeg(config.FFmpeg),
			media.WithFFprobe(config.FFprobe),
		)
		if err != nil {
			return fmt.Errorf("creating media source: %w", err)
		}

		decoder := gpmf.NewDecoder(gpmf.WithLogger(logger))
		if err = inspectVideo(ctx, source, decoder, config.VideoPath, out); err != nil {
			return err
		}
	}

	if config.DBPath != "" {
		if _, err := os.Stat(config.DBPath); err != nil {
			return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
		}

		store := storage.NewSqliteStore(config.DBPath)
		defer store.Close()

		if config.RunID != "" {
			return listFiles(ctx, store, config.RunID, out)
		}
		return listRuns(ctx, store, out)
	}

	return nil
}

func inspectVideo(ctx context.Context, source videoSource, decoder telemetry.Decoder, videoPath string, out io.Writer) error {
	container, err := source.Inspect(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("inspecting container: %w", err)
	}

	fmt.Fprintf(out, "File:      %s\n", videoPath)
	fmt.Fprintf(out, "Size:      %s\n", humanize.IBytes(uint64(container.Size)))
	fmt.Fprintf(out, "Duration:  %s\n", container.Duration)
	if container.CreatedAt != nil {
		fmt.Fprintf(out, "Created:   %s\n", container.CreatedAt.Format(time.DateTime))
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nINDEX\tTYPE\tTAG\tHANDLER")
	for _, s := range container.Streams {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Index, s.CodecType, s.CodecTag, s.Handler)
	}
	if err = tw.Flush(); err != nil {
		return fmt.Errorf("writing streams: %w", err)
	}

	stream, exact, err := container.TelemetryStream()
	if err != nil {
		fmt.Fprintln(out, "\nNo telemetry track found")
		return nil
	}
	if exact {
		fmt.Fprintf(out, "\nTelemetry track: stream %d\n", stream.Index)
	} else {
		fmt.Fprintf(out, "\nTelemetry track: stream %d (first data stream, not tagged as GPMF)\n", stream.Index)
	}

	raw, err := source.Extract(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("extracting telemetry track: %w", err)
	}
	fmt.Fprintf(out, "Raw track: %s in %d payloads\n", humanize.IBytes(uint64(len(raw.Data))), len(raw.Payloads))

	devices, err := decoder.Decode(ctx, raw, nil)
	if err != nil {
		return fmt.Errorf("decoding telemetry: %w", err)
	}

	fmt.Fprintf(out, "Devices:   %d\n", len(devices))
	fmt.Fprintf(out, "%s samples: %s\n\n", telemetry.StreamGPS5, humanize.Comma(int64(devices.SampleCount(telemetry.StreamGPS5))))

	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tNAME\tSTREAM\tSAMPLES\tDESCRIPTION")
	for _, device := range devices {
		keys := make([]string, 0, len(device.Streams))
		for key := range device.Streams {
			keys = append(keys, key)
		}
		slices.Sort(keys)

		for _, key := range keys {
			s := device.Streams[key]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", device.ID, device.Name, key, humanize.Comma(int64(len(s.Samples))), s.Name)
		}
	}

	return tw.Flush()
}

func listRuns(ctx context.Context, store storage.Store, out io.Writer) error {
	runs, err := store.Runs(ctx)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tINPUT\tFOUND\tOK\tFAILED\tSKIPPED\tSTATE")
	for _, r := range runs {
		state := "running"
		switch {
		case r.Interrupted:
			state = "interrupted"
		case r.FinishedAt != nil:
			state = "finished"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, humanize.Time(r.StartedAt), r.InputDir, r.Discovered, r.Succeeded, r.Failed, r.Skipped, state)
	}

	return tw.Flush()
}

func listFiles(ctx context.Context, store storage.Store, runID string, out io.Writer) error {
	if _, err := store.Run(ctx, runID); err != nil {
		return err
	}

	files, err := store.Files(ctx, runID)
	if err != nil {
		return fmt.Errorf("listing files: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tREASON\tPOINTS\tDISTANCE")
	for _, f := range files {
		distance, prefix := humanize.ComputeSI(f.TotalDistance)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f %sm\n", f.Path, f.Status, f.Reason, f.Points, distance, prefix)
	}

	return tw.Flush()
}
