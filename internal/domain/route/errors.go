package route

import "fmt"

// ValidationError is returned for incomplete or malformed endpoints. It is recovered
// locally: no request is issued and no callback fires.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RouteFetchError is a transport-level failure talking to the routing service.
type RouteFetchError struct {
	StatusCode int
	Cause      error
}

func (e *RouteFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("route fetch failed with HTTP %d: %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("route fetch failed: %v", e.Cause)
}

// Unwrap exposes the underlying transport error.
func (e *RouteFetchError) Unwrap() error { return e.Cause }

// RouteUnavailableError means the service answered but reported no usable route.
type RouteUnavailableError struct {
	// Code is the status sentinel reported by the service, e.g. "NoRoute".
	Code    string
	Message string
}

func (e *RouteUnavailableError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("route unavailable: %s", e.Code)
	}
	return fmt.Sprintf("route unavailable (%s): %s", e.Code, e.Message)
}

// InvalidMetricError is a boundary-check failure on a numeric field received from the service.
type InvalidMetricError struct {
	Field string
	Value float64
}

func (e *InvalidMetricError) Error() string {
	return fmt.Sprintf("invalid %s from routing service: %v", e.Field, e.Value)
}
