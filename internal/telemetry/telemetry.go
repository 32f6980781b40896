package telemetry

import (
	"time"
)

const (
	// StreamGPS5 is the key of the five-component positional stream:
	// latitude, longitude, altitude, 2D speed and 3D speed
	StreamGPS5 = "GPS5"

	// MinPositionalComponents is the minimum length of a usable positional vector
	MinPositionalComponents = 4
)

// Sample is a single decoded telemetry sample
type Sample struct {
	CTS   *int64     // Capture time relative to the start of the video in milliseconds
	Date  *time.Time // Absolute capture time, if the device reported one
	Value []float64  // Scaled sample components
}

// Stream is an ordered sequence of samples of one kind
type Stream struct {
	Key     string   // FourCC of the stream, e.g. GPS5
	Name    string   // Human-readable stream name
	Units   []string // Units of the sample components, if reported
	Samples []Sample // Samples in stream order
}

// Device is a telemetry source embedded in the video, e.g. the camera itself
// or a connected sensor
type Device struct {
	ID      string             // Device identifier
	Name    string             // Device name
	Streams map[string]*Stream // Streams keyed by stream key
}

// Stream returns the stream with the given key or nil
func (d *Device) Stream(key string) *Stream {
	if d == nil || d.Streams == nil {
		return nil
	}
	return d.Streams[key]
}

// Devices is the decoded telemetry of one video. Order is the order in which
// the decoder encountered the devices and is treated as authoritative.
type Devices []*Device

// SampleCount returns the number of samples of the given stream across all devices
func (ds Devices) SampleCount(key string) int {
	var n int
	for _, d := range ds {
		if s := d.Stream(key); s != nil {
			n += len(s.Samples)
		}
	}
	return n
}

// Payload describes the position of one telemetry payload inside a raw track
// and the time range it covers
type Payload struct {
	Offset   int           // Byte offset into RawTrack.Data
	Size     int           // Payload size in bytes
	Start    time.Duration // Presentation time of the payload
	Duration time.Duration // Time span covered by the payload
}

// RawTrack is the undecoded telemetry track extracted from a video container
// together with the timing hints needed to timestamp its samples
type RawTrack struct {
	Data      []byte    // Concatenated payloads
	Payloads  []Payload // Per-payload timing, may be empty
	Duration  time.Duration
	CreatedAt *time.Time // Container creation time, if tagged
}
