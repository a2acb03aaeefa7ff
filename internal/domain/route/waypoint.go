package route

import (
	"fmt"
	"math"
)

// Waypoint is an immutable geographic coordinate in (latitude, longitude) order.
type Waypoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// NewWaypoint creates a Waypoint, rejecting non-finite or out-of-range coordinates.
func NewWaypoint(lat, lng float64) (Waypoint, error) {
	wp := Waypoint{Latitude: lat, Longitude: lng}
	if err := wp.check("waypoint"); err != nil {
		return Waypoint{}, err
	}
	return wp, nil
}

// IsValid returns true if both coordinates are finite and within range.
func (w Waypoint) IsValid() bool {
	return w.check("waypoint") == nil
}

// String renders the waypoint as "lat,lng".
func (w Waypoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", w.Latitude, w.Longitude)
}

func (w Waypoint) check(field string) error {
	if math.IsNaN(w.Latitude) || math.IsInf(w.Latitude, 0) ||
		math.IsNaN(w.Longitude) || math.IsInf(w.Longitude, 0) {
		return &ValidationError{Field: field, Reason: "coordinates must be finite numbers"}
	}
	if w.Latitude < -90 || w.Latitude > 90 || w.Longitude < -180 || w.Longitude > 180 {
		return &ValidationError{Field: field, Reason: "coordinates out of range"}
	}
	return nil
}

// CheckEndpoints reports why an (origin, destination) pair cannot be routed, or nil if it can.
func CheckEndpoints(origin, destination *Waypoint) error {
	if origin == nil {
		return &ValidationError{Field: "origin", Reason: "origin is required"}
	}
	if destination == nil {
		return &ValidationError{Field: "destination", Reason: "destination is required"}
	}
	if err := origin.check("origin"); err != nil {
		return err
	}
	return destination.check("destination")
}

// Validate gates the routing pipeline: false means no request may be issued for the pair.
func Validate(origin, destination *Waypoint) bool {
	return CheckEndpoints(origin, destination) == nil
}

// RouteRequest is one issued fetch, tagged with the coordinator generation it belongs to.
type RouteRequest struct {
	Origin      Waypoint
	Destination Waypoint
	Generation  uint64
}

// SameEndpoints returns true if the request was issued for exactly this pair.
func (r RouteRequest) SameEndpoints(origin, destination Waypoint) bool {
	return r.Origin == origin && r.Destination == destination
}
