package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/roman-kulish/gpstrack/internal/telemetry"
)

// ErrNoTelemetryTrack is returned when the container has no data stream to extract
var ErrNoTelemetryTrack = errors.New("no telemetry track in container")

// WithLogger sets the logger for the source
func WithLogger(logger *slog.Logger) func(*Source) {
	return func(s *Source) {
		s.logger = logger.With(slog.String("component", "media"))
	}
}

// WithFFmpeg sets an explicit ffmpeg binary
func WithFFmpeg(path string) func(*Source) {
	return func(s *Source) {
		s.ffmpeg = path
	}
}

// WithFFprobe sets an explicit ffprobe binary
func WithFFprobe(path string) func(*Source) {
	return func(s *Source) {
		s.ffprobe = path
	}
}

// WithTempDir sets the directory for intermediate track files, the system
// temporary directory is used when dir is empty
func WithTempDir(dir string) func(*Source) {
	return func(s *Source) {
		if dir != "" {
			s.tempDir = dir
		}
	}
}

// WithRunner replaces the command runner
func WithRunner(r Runner) func(*Source) {
	return func(s *Source) {
		s.run = r
	}
}

// Source extracts the raw GPMF track from video containers using ffprobe and ffmpeg
type Source struct {
	ffmpeg  string
	ffprobe string
	tempDir string
	run     Runner
	logger  *slog.Logger
}

// NewSource creates a new Source. Binaries not set explicitly are looked up in PATH.
func NewSource(options ...func(*Source)) (*Source, error) {
	s := Source{
		tempDir: os.TempDir(),
		run:     execRunner,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	var err error
	if s.ffmpeg == "" {
		if s.ffmpeg, err = FindRuntime(RuntimeFFmpeg); err != nil {
			return nil, err
		}
	}
	if s.ffprobe == "" {
		if s.ffprobe, err = FindRuntime(RuntimeFFprobe); err != nil {
			return nil, err
		}
	}

	return &s, nil
}

// Inspect returns the stream layout of a video file
func (s *Source) Inspect(ctx context.Context, videoPath string) (*Container, error) {
	return s.probe(ctx, videoPath)
}

// Extract copies the telemetry track out of the container into memory together
// with per-packet timing. The intermediate file is named with a unique token so
// concurrent extractions never collide.
func (s *Source) Extract(ctx context.Context, videoPath string) (*telemetry.RawTrack, error) {
	container, err := s.probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	stream, exact, err := container.TelemetryStream()
	if err != nil {
		return nil, err
	}
	if !exact {
		s.logger.Warn("no GPMF track found, trying first data stream",
			slog.String("file", filepath.Base(videoPath)),
			slog.Int("stream", stream.Index))
	}

	tmpPath := filepath.Join(s.tempDir, fmt.Sprintf("gpstrack-%s.bin", uuid.NewString()))
	defer func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn(fmt.Sprintf("failed to clean up temporary file: %s", rmErr.Error()), slog.String("path", tmpPath))
		}
	}()

	if _, err = s.run(ctx, s.ffmpeg,
		"-y",
		"-v", "error",
		"-i", videoPath,
		"-codec", "copy",
		"-map", "0:"+strconv.Itoa(stream.Index),
		"-f", "rawvideo",
		tmpPath,
	); err != nil {
		return nil, fmt.Errorf("extracting telemetry track: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("reading extracted track: %w", err)
	}

	raw := telemetry.RawTrack{
		Data:      data,
		Duration:  container.Duration,
		CreatedAt: container.CreatedAt,
	}

	packets, err := s.packets(ctx, videoPath, stream.Index)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("packet timing unavailable: %s", err.Error()), slog.String("file", filepath.Base(videoPath)))
		return &raw, nil
	}

	if raw.Payloads, err = payloadTiming(packets, len(data)); err != nil {
		s.logger.Warn(err.Error(), slog.String("file", filepath.Base(videoPath)))
	}

	return &raw, nil
}

// payloadTiming maps packets onto the concatenated track. If the packet sizes do
// not add up to the track size the timing cannot be trusted and nil is returned.
func payloadTiming(packets []probePacket, trackSize int) ([]telemetry.Payload, error) {
	payloads := make([]telemetry.Payload, 0, len(packets))

	var offset int
	for i, p := range packets {
		size, err := strconv.Atoi(p.Size)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("packet %d: invalid size '%s'", i, p.Size)
		}

		payloads = append(payloads, telemetry.Payload{
			Offset:   offset,
			Size:     size,
			Start:    parseSeconds(p.PTSTime),
			Duration: parseSeconds(p.DurationTime),
		})
		offset += size
	}

	if offset != trackSize {
		return nil, fmt.Errorf("packet sizes add up to %d bytes, track has %d", offset, trackSize)
	}

	return payloads, nil
}
