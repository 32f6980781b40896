package telemetry

import (
	"math"

	"github.com/roman-kulish/gpstrack/internal/geo"
)

// candidate is a validated positional sample. It is the only place where the
// loosely shaped decoder output is turned into typed values.
type candidate struct {
	device string
	time   *int64
	lat    float64
	lon    float64
	alt    float64
	speed  float64
}

func newCandidate(deviceID string, s Sample) (candidate, bool) {
	if len(s.Value) < MinPositionalComponents {
		return candidate{}, false
	}

	for _, v := range s.Value[:MinPositionalComponents] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return candidate{}, false
		}
	}

	c := candidate{
		device: deviceID,
		lat:    s.Value[0],
		lon:    s.Value[1],
		alt:    s.Value[2],
		speed:  s.Value[3],
	}
	if !geo.ValidCoordinates(c.lat, c.lon) {
		return candidate{}, false
	}

	switch {
	case s.CTS != nil:
		c.time = geo.Millis(*s.CTS)
	case s.Date != nil:
		c.time = geo.Millis(s.Date.UnixMilli())
	}

	return c, true
}

func (c candidate) point() geo.GeoPoint {
	return geo.GeoPoint{
		Time:   c.time,
		Lat:    c.lat,
		Lon:    c.lon,
		Alt:    c.alt,
		Speed:  c.speed,
		Device: c.device,
	}
}
