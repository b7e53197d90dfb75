// Package geo contains pure geographic computation helpers and the ride search.
package geo

import (
	"math"

	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

const (
	earthRadiusKm = 6371.0
	// kmPerDegreeLat is the length of one degree of latitude.
	kmPerDegreeLat = 111.0
)

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BoundingBox returns the lat/lng rectangle enclosing a circle of radiusKm
// around center. Near the poles, or when the box would wrap the antimeridian,
// the longitude range widens to the whole globe.
func BoundingBox(center types.Point, radiusKm float64) ride.Bounds {
	dLat := radiusKm / kmPerDegreeLat
	b := ride.Bounds{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}
	cos := math.Cos(degreesToRadians(center.Lat))
	if cos < 1e-6 {
		return b
	}
	dLng := radiusKm / (kmPerDegreeLat * cos)
	if center.Lng-dLng < -180 || center.Lng+dLng > 180 {
		return b
	}
	b.MinLng = center.Lng - dLng
	b.MaxLng = center.Lng + dLng
	return b
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
