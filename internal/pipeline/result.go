package pipeline

import (
	"time"

	"github.com/roman-kulish/gpstrack/internal/telemetry"
	"github.com/roman-kulish/gpstrack/internal/track"
)

// Result is the outcome of processing one video
type Result struct {
	VideoPath string
	Output    string // Path of the written track, empty unless succeeded
	Preview   string // Path of the rendered preview, empty when disabled or failed
	Status    Status
	Reason    Reason // Failure class, empty on success
	Stage     Stage  // Last stage reached
	Err       error

	Extract  telemetry.ExtractStats
	Track    track.Stats
	Duration time.Duration
}

// OK reports whether the video was processed and its track written
func (r Result) OK() bool {
	return r.Status == StatusSucceeded
}

func (r *Result) fail(status Status, reason Reason, err error) {
	r.Status = status
	r.Reason = reason
	r.Err = &StageError{Stage: r.Stage, Err: err}
}
