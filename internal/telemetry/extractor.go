package telemetry

import (
	"fmt"
	"time"

	"github.com/roman-kulish/gpstrack/internal/geo"
)

const (
	// PolicyConcatenate appends the points of each device in decoder order
	PolicyConcatenate Policy = "concatenate"

	// PolicyTimeMerge interleaves the points of all devices by capture time
	PolicyTimeMerge Policy = "time-merge"

	// FallbackNone leaves points without a capture time untimed
	FallbackNone TimestampFallback = "none"

	// FallbackWallClock labels points without a capture time with the extraction time
	FallbackWallClock TimestampFallback = "wallclock"
)

var (
	validPolicies = map[Policy]struct{}{
		PolicyConcatenate: {},
		PolicyTimeMerge:   {},
	}

	validFallbacks = map[TimestampFallback]struct{}{
		FallbackNone:      {},
		FallbackWallClock: {},
	}
)

// Policy defines how points of multiple devices are combined
type Policy string

func (p Policy) String() string {
	return string(p)
}

// Validate returns an error if the policy is unknown
func (p Policy) Validate() error {
	if _, ok := validPolicies[p]; !ok {
		return fmt.Errorf("invalid extraction policy: %s", p)
	}
	return nil
}

// TimestampFallback defines what happens to samples that carry no capture time
type TimestampFallback string

func (f TimestampFallback) String() string {
	return string(f)
}

// Validate returns an error if the fallback is unknown
func (f TimestampFallback) Validate() error {
	if _, ok := validFallbacks[f]; !ok {
		return fmt.Errorf("invalid timestamp fallback: %s", f)
	}
	return nil
}

// ExtractStats reports what happened during a single extraction
type ExtractStats struct {
	Devices  int // Devices exposing the selected stream
	Samples  int // Samples seen in the selected stream
	Accepted int // Samples converted into points
	Dropped  int // Malformed samples skipped
	Untimed  int // Accepted samples without a capture time
}

// WithStream sets the positional stream to extract, GPS5 by default
func WithStream(key string) func(*Extractor) {
	return func(e *Extractor) {
		e.stream = key
	}
}

// WithPolicy sets the multi-device combination policy
func WithPolicy(p Policy) func(*Extractor) {
	return func(e *Extractor) {
		e.policy = p
	}
}

// WithFallback sets the timestamp fallback for samples without a capture time
func WithFallback(f TimestampFallback) func(*Extractor) {
	return func(e *Extractor) {
		e.fallback = f
	}
}

// WithClock sets the clock used by FallbackWallClock
func WithClock(now func() time.Time) func(*Extractor) {
	return func(e *Extractor) {
		e.now = now
	}
}

// Extractor flattens decoded device streams into an ordered point sequence
type Extractor struct {
	stream   string
	policy   Policy
	fallback TimestampFallback
	now      func() time.Time
}

// NewExtractor creates an Extractor selecting the GPS5 stream and concatenating devices
func NewExtractor(options ...func(*Extractor)) *Extractor {
	e := Extractor{
		stream:   StreamGPS5,
		policy:   PolicyConcatenate,
		fallback: FallbackNone,
		now:      time.Now,
	}

	for _, option := range options {
		option(&e)
	}

	return &e
}

// Stream returns the key of the stream the extractor reads
func (e *Extractor) Stream() string {
	return e.stream
}

// Extract converts the selected stream of every device into points. Samples with
// fewer than four positional components, or with non-finite or out of range
// coordinates, are dropped. An empty result is not an error.
func (e *Extractor) Extract(devices Devices) ([]geo.GeoPoint, ExtractStats) {
	var stats ExtractStats

	perDevice := make([][]geo.GeoPoint, 0, len(devices))
	for _, device := range devices {
		stream := device.Stream(e.stream)
		if stream == nil {
			continue
		}

		stats.Devices++
		stats.Samples += len(stream.Samples)

		points := make([]geo.GeoPoint, 0, len(stream.Samples))
		for _, sample := range stream.Samples {
			c, ok := newCandidate(device.ID, sample)
			if !ok {
				stats.Dropped++
				continue
			}
			points = append(points, c.point())
		}
		perDevice = append(perDevice, points)
	}

	var points []geo.GeoPoint
	switch e.policy {
	case PolicyTimeMerge:
		points = mergeByTime(perDevice)

	default:
		points = concatenate(perDevice)
	}

	stats.Accepted = len(points)

	// labeling happens after ordering so wall-clock time never affects it
	var now *int64
	for i := range points {
		if points[i].HasTime() {
			continue
		}

		stats.Untimed++
		if e.fallback != FallbackWallClock {
			continue
		}
		if now == nil {
			now = geo.Millis(e.now().UnixMilli())
		}
		points[i].Time = geo.Millis(*now)
	}

	return points, stats
}

func concatenate(perDevice [][]geo.GeoPoint) []geo.GeoPoint {
	var n int
	for _, points := range perDevice {
		n += len(points)
	}

	out := make([]geo.GeoPoint, 0, n)
	for _, points := range perDevice {
		out = append(out, points...)
	}
	return out
}
