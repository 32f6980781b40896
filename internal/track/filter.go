package track

import (
	"github.com/roman-kulish/gpstrack/internal/geo"
)

// DefaultMinDistance is the default downsampling threshold in meters
const DefaultMinDistance = 50.0

// Filter reduces an ordered point sequence so that consecutive retained points
// are at least minDistance meters apart. The first point is always retained with
// a zero distance, and the last input point is always the last output point, even
// when it is closer than minDistance to its predecessor.
//
// Distances are measured between raw coordinates, while the emitted points carry
// coordinates rounded to geo.CoordinatePrecision. The input slice is not modified.
func Filter(points []geo.GeoPoint, minDistance float64) []geo.GeoPoint {
	if len(points) == 0 {
		return []geo.GeoPoint{}
	}

	filtered := make([]geo.GeoPoint, 0, min(len(points), 64))

	first := points[0].Rounded()
	first.DistanceFromPrevious = 0
	filtered = append(filtered, first)

	lastRetained, lastIndex := points[0], 0
	for i := 1; i < len(points); i++ {
		p := points[i]

		d := geo.Haversine(lastRetained, p)
		if d < minDistance {
			continue
		}

		kept := p.Rounded()
		kept.DistanceFromPrevious = d
		filtered = append(filtered, kept)

		lastRetained, lastIndex = p, i
	}

	if end := len(points) - 1; lastIndex != end {
		kept := points[end].Rounded()
		kept.DistanceFromPrevious = geo.Haversine(lastRetained, points[end])
		filtered = append(filtered, kept)
	}

	return filtered
}
