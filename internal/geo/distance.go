package geo

import (
	"math"
	"time"
)

// EarthRadiusKm is Earth's mean radius in kilometres for the Haversine calculation.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is a finite coordinate pair within range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance calculates the great-circle distance between two points
// on Earth in kilometres using the Haversine formula.
func Distance(p1, p2 Point) float64 {
	const degToRad = math.Pi / 180
	dLat := (p2.Lat - p1.Lat) * degToRad
	dLng := (p2.Lng - p1.Lng) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(p1.Lat*degToRad)*math.Cos(p2.Lat*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push a slightly above 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// TravelTime returns how long covering distanceKm takes at speedKps.
// A non-positive speed yields zero.
func TravelTime(distanceKm, speedKps float64) time.Duration {
	if speedKps <= 0 || distanceKm <= 0 {
		return 0
	}
	return time.Duration(distanceKm / speedKps * float64(time.Second))
}
