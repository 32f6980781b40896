package batch

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/gpstrack/internal/pipeline"
)

// Failure is a video that could not be processed
type Failure struct {
	File   string
	Reason pipeline.Reason
	Err    error
}

// RunSummary aggregates the outcome of a batch run. Results are kept in
// enumeration order regardless of the number of workers.
type RunSummary struct {
	InputDir  string
	OutputDir string

	Discovered int
	Succeeded  int
	Failed     int
	Skipped    int

	Failures     []Failure
	SkippedFiles []string
	Results      []pipeline.Result

	StartedAt   time.Time
	Duration    time.Duration
	Interrupted bool
}

func newSummary(inputDir, outputDir string, discovered int) *RunSummary {
	return &RunSummary{
		InputDir:   inputDir,
		OutputDir:  outputDir,
		Discovered: discovered,
		StartedAt:  time.Now(),
	}
}

// add accounts for one processed video
func (s *RunSummary) add(r pipeline.Result) {
	s.Results = append(s.Results, r)
	if r.OK() {
		s.Succeeded++
		return
	}

	s.Failed++
	s.Failures = append(s.Failures, Failure{File: r.VideoPath, Reason: r.Reason, Err: r.Err})
}

func (s *RunSummary) skip(video string) {
	s.Skipped++
	s.SkippedFiles = append(s.SkippedFiles, video)
}

// TotalDistance is the sum of the track lengths of all written tracks in meters
func (s *RunSummary) TotalDistance() float64 {
	var total float64
	for _, r := range s.Results {
		if r.OK() {
			total += r.Track.TotalDistance
		}
	}
	return total
}

// Print writes a human-readable summary
func (s *RunSummary) Print(w io.Writer) error {
	distance, prefix := humanize.ComputeSI(s.TotalDistance())

	lines := []string{
		"Run summary",
		fmt.Sprintf("  Input:       %s", s.InputDir),
		fmt.Sprintf("  Output:      %s", s.OutputDir),
		fmt.Sprintf("  Discovered:  %s", humanize.Comma(int64(s.Discovered))),
		fmt.Sprintf("  Succeeded:   %s", humanize.Comma(int64(s.Succeeded))),
		fmt.Sprintf("  Failed:      %s", humanize.Comma(int64(s.Failed))),
		fmt.Sprintf("  Skipped:     %s", humanize.Comma(int64(s.Skipped))),
		fmt.Sprintf("  Distance:    %.2f %sm", distance, prefix),
		fmt.Sprintf("  Elapsed:     %s", s.Duration.Round(time.Millisecond)),
	}
	if s.Interrupted {
		lines = append(lines, "  Interrupted: yes")
	}

	if len(s.Failures) > 0 {
		lines = append(lines, "Failures:")
		for _, f := range s.Failures {
			lines = append(lines, fmt.Sprintf("  - %s: %s", f.File, f.Reason))
		}
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}

	return nil
}
