package track

import (
	"github.com/roman-kulish/gpstrack/internal/geo"
)

// Stats summarises a filtered track
type Stats struct {
	Points        int           // Number of points in the track
	TotalDistance float64       // Sum of DistanceFromPrevious in meters
	Start         *geo.GeoPoint // First point, nil for an empty track
	End           *geo.GeoPoint // Last point, nil for an empty track
}

// Duration returns the elapsed capture time between the first and the last point
// in milliseconds. It returns false if either end has no timestamp.
func (s Stats) Duration() (int64, bool) {
	if s.Start == nil || s.End == nil || !s.Start.HasTime() || !s.End.HasTime() {
		return 0, false
	}
	return *s.End.Time - *s.Start.Time, true
}

// ComputeStats calculates track statistics for a filtered sequence
func ComputeStats(points []geo.GeoPoint) Stats {
	s := Stats{Points: len(points)}
	if len(points) == 0 {
		return s
	}

	for _, p := range points {
		s.TotalDistance += p.DistanceFromPrevious
	}

	start, end := points[0], points[len(points)-1]
	s.Start, s.End = &start, &end

	return s
}
