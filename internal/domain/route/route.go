package route

import (
	"context"
	"math"
)

// RawRouteResponse is the first candidate route returned by the routing service.
// Geometry pairs are in the service's (longitude, latitude) order.
type RawRouteResponse struct {
	Geometry        [][2]float64 `json:"geometry"`
	DistanceMeters  float64      `json:"distance_m"`
	DurationSeconds float64      `json:"duration_s"`
}

// RouteResult is the renderable route published to callers.
type RouteResult struct {
	Path        []Waypoint `json:"path"`
	DistanceKm  float64    `json:"distance_km"`
	DurationMin float64    `json:"duration_min"`
}

// Metrics holds distance and duration in display units.
type Metrics struct {
	DistanceKm  float64
	DurationMin float64
}

// Fetcher retrieves a driving route between two points from an external service.
type Fetcher interface {
	FetchRoute(ctx context.Context, origin, destination Waypoint) (*RawRouteResponse, error)
}

// DeriveMetrics converts meters and seconds into kilometers and minutes. No rounding is applied.
func DeriveMetrics(distanceMeters, durationSeconds float64) (Metrics, error) {
	if !isNonNegativeFinite(distanceMeters) {
		return Metrics{}, &InvalidMetricError{Field: "distance", Value: distanceMeters}
	}
	if !isNonNegativeFinite(durationSeconds) {
		return Metrics{}, &InvalidMetricError{Field: "duration", Value: durationSeconds}
	}
	return Metrics{
		DistanceKm:  distanceMeters / 1000,
		DurationMin: durationSeconds / 60,
	}, nil
}

// BuildResult turns a raw service response into a RouteResult.
func BuildResult(raw *RawRouteResponse) (RouteResult, error) {
	if raw == nil {
		return RouteResult{}, &RouteUnavailableError{Code: "NoRoute", Message: "empty response"}
	}
	metrics, err := DeriveMetrics(raw.DistanceMeters, raw.DurationSeconds)
	if err != nil {
		return RouteResult{}, err
	}
	return RouteResult{
		Path:        ToPath(raw.Geometry),
		DistanceKm:  metrics.DistanceKm,
		DurationMin: metrics.DurationMin,
	}, nil
}

func isNonNegativeFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
