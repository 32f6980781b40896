package geo

import (
	"math"
)

const (
	// EarthRadius is the mean Earth radius in meters used for great-circle distances
	EarthRadius = 6_371_000

	// CoordinatePrecision is the number of decimal places coordinates are rounded to
	CoordinatePrecision = 8
)

// GeoPoint is a single positional observation recovered from a telemetry stream
type GeoPoint struct {
	Time                 *int64  // Capture time in milliseconds, nil if unknown
	Lat                  float64 // Latitude in degrees
	Lon                  float64 // Longitude in degrees
	Alt                  float64 // Altitude in meters
	Speed                float64 // 2D ground speed in m/s
	DistanceFromPrevious float64 // Distance from the previously retained point in meters
	Device               string  // Source device identifier
}

// HasTime reports whether the point carries a capture timestamp
func (p GeoPoint) HasTime() bool {
	return p.Time != nil
}

// Valid reports whether the coordinates are finite and within the WGS84 range
func (p GeoPoint) Valid() bool {
	return ValidCoordinates(p.Lat, p.Lon)
}

// ValidCoordinates reports whether lat/lon are finite and inside [-90,90] and [-180,180]
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Haversine returns the great-circle distance in meters between two points
func Haversine(a, b GeoPoint) float64 {
	return HaversineDistance(a.Lat, a.Lon, b.Lat, b.Lon)
}

// HaversineDistance returns the great-circle distance in meters between two coordinate pairs
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Round rounds v to the given number of decimal places, half away from zero
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Rounded returns a copy of p with coordinates rounded to CoordinatePrecision
func (p GeoPoint) Rounded() GeoPoint {
	p.Lat = Round(p.Lat, CoordinatePrecision)
	p.Lon = Round(p.Lon, CoordinatePrecision)
	return p
}

// Millis is a helper returning a pointer to the given timestamp
func Millis(ms int64) *int64 {
	return &ms
}
