package route

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToPath converts service geometry, ordered (longitude, latitude) pairs, into travel-ordered
// waypoints. Coordinates are not range-checked; empty input yields an empty path.
func ToPath(geometry [][2]float64) []Waypoint {
	path := make([]Waypoint, len(geometry))
	for i, pair := range geometry {
		path[i] = Waypoint{Latitude: pair[1], Longitude: pair[0]}
	}
	return path
}

// LineString renders a path for map surfaces. orb points are (lon, lat).
func LineString(path []Waypoint) orb.LineString {
	ls := make(orb.LineString, len(path))
	for i, wp := range path {
		ls[i] = orb.Point{wp.Longitude, wp.Latitude}
	}
	return ls
}

// Feature wraps a route result as a GeoJSON LineString feature carrying its metrics.
func Feature(result RouteResult) *geojson.Feature {
	f := geojson.NewFeature(LineString(result.Path))
	f.Properties["distance_km"] = result.DistanceKm
	f.Properties["duration_min"] = result.DurationMin
	return f
}
