package telemetry

import (
	"github.com/roman-kulish/gpstrack/internal/geo"
)

// mergeByTime performs a stable k-way merge of per-device point sequences keyed
// by capture time. Each input is assumed to be ordered already. A point without
// a capture time is emitted as soon as it reaches the head of its sequence, and
// ties are resolved in device order.
func mergeByTime(perDevice [][]geo.GeoPoint) []geo.GeoPoint {
	heads := make([]int, len(perDevice))

	var n int
	for _, points := range perDevice {
		n += len(points)
	}

	out := make([]geo.GeoPoint, 0, n)
	for len(out) < n {
		next := -1
		for i, points := range perDevice {
			if heads[i] >= len(points) {
				continue
			}

			head := points[heads[i]]
			if !head.HasTime() {
				next = i
				break
			}

			if next == -1 || *head.Time < *perDevice[next][heads[next]].Time {
				next = i
			}
		}

		out = append(out, perDevice[next][heads[next]])
		heads[next]++
	}

	return out
}
