// Package geo provides great-circle distance math for geofence checks.
package geo

import "math"

const (
	// earthRadiusMiles is the mean Earth radius on the spherical approximation.
	earthRadiusMiles = 3963.0
	feetPerMile      = 5280.0
)

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both coordinates are real numbers.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude)
}

// DistanceFeet returns the haversine great-circle distance between two
// coordinates in feet. Pure and total; NaN inputs propagate as NaN.
func DistanceFeet(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c * feetPerMile
}

// Distance returns the distance in feet between two points.
func Distance(a, b Point) float64 {
	return DistanceFeet(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
