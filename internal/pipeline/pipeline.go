package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/roman-kulish/gpstrack/internal/geo"
	"github.com/roman-kulish/gpstrack/internal/telemetry"
)

const (
	StageStart     Stage = "start"
	StageAcquire   Stage = "acquire"
	StageDecode    Stage = "decode"
	StageExtract   Stage = "extract"
	StageFilter    Stage = "filter"
	StageSerialize Stage = "serialize"
	StageDone      Stage = "done"

	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusNoTelemetry Status = "no-telemetry"

	ReasonRead        Reason = "read failure"
	ReasonDecode      Reason = "decode failure"
	ReasonNoTelemetry Reason = "no telemetry"
	ReasonWrite       Reason = "write failure"
)

// ErrNoTelemetry is returned when a video yields no usable positional samples
var ErrNoTelemetry = errors.New("no telemetry")

// Stage is a step of the per-video pipeline
type Stage string

// Status is the outcome of processing a single video
type Status string

// Reason is the failure class reported in the run summary
type Reason string

// StageError records the stage at which processing was aborted
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// TrackSource provides the raw telemetry track embedded in a video container
type TrackSource interface {
	Extract(ctx context.Context, videoPath string) (*telemetry.RawTrack, error)
}

// TrackWriter persists a filtered track. OutputPath derives the destination
// from the video path so every video maps onto its own file.
type TrackWriter interface {
	OutputPath(outputDir, videoPath string) string
	Write(path string, points []geo.GeoPoint) error
}

// reasonFor maps the stage at which a failure happened onto its failure class
func reasonFor(stage Stage) Reason {
	switch stage {
	case StageStart, StageAcquire:
		return ReasonRead
	case StageDecode, StageExtract, StageFilter:
		return ReasonDecode
	default:
		return ReasonWrite
	}
}
