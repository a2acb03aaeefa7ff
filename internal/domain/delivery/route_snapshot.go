package delivery

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/service-delivery/internal/domain/route"
)

// RouteSnapshot is the latest published route for a delivery.
type RouteSnapshot struct {
	DeliveryID  uuid.UUID        `json:"delivery_id"`
	Origin      route.Waypoint   `json:"origin"`
	Destination route.Waypoint   `json:"destination"`
	Path        []route.Waypoint `json:"path"`
	DistanceKm  float64          `json:"distance_km"`
	DurationMin float64          `json:"duration_min"`
	Generation  uint64           `json:"generation"`
	ComputedAt  time.Time        `json:"computed_at"`
}

// NewRouteSnapshot captures a published route result.
func NewRouteSnapshot(deliveryID uuid.UUID, origin, destination route.Waypoint, result route.RouteResult, generation uint64) *RouteSnapshot {
	return &RouteSnapshot{
		DeliveryID:  deliveryID,
		Origin:      origin,
		Destination: destination,
		Path:        result.Path,
		DistanceKm:  result.DistanceKm,
		DurationMin: result.DurationMin,
		Generation:  generation,
		ComputedAt:  time.Now().UTC(),
	}
}

// Result returns the route result carried by the snapshot.
func (s *RouteSnapshot) Result() route.RouteResult {
	return route.RouteResult{Path: s.Path, DistanceKm: s.DistanceKm, DurationMin: s.DurationMin}
}

// ETA estimates the arrival time from when the route was computed.
func (s *RouteSnapshot) ETA() time.Time {
	return s.ComputedAt.Add(time.Duration(s.DurationMin * float64(time.Minute)))
}
