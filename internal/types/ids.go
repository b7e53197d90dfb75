// README: Identifier and geographic value objects shared by all modules.
package types

import "github.com/google/uuid"

type ID string

// NewID returns a random UUIDv4 string identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point is inside the WGS84 range and not the zero value.
func (p Point) Valid() bool {
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Place is a human-readable address with its resolved coordinates.
type Place struct {
	Address string `json:"address"`
	Point   Point  `json:"point"`
}
