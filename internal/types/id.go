// README: Shared identifier and coordinate value objects used across modules.
package types

import "github.com/google/uuid"

// ID is an opaque identifier (tenant, technician, appointment, route, connection).
type ID string

// NewID returns a random UUID-based identifier.
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
