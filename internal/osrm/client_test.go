package osrm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain/route"
)

var (
	origin      = route.Waypoint{Latitude: 10.0, Longitude: 106.0}
	destination = route.Waypoint{Latitude: 10.05, Longitude: 106.05}
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, zap.NewNop())
}

func TestFetchRoute_Success(t *testing.T) {
	var gotPath, gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": "Ok",
			"routes": [
				{"distance": 4200, "duration": 480,
				 "geometry": {"type": "LineString", "coordinates": [[106.0,10.0],[106.02,10.02],[106.05,10.05]]}},
				{"distance": 9999, "duration": 999,
				 "geometry": {"type": "LineString", "coordinates": [[1,1]]}}
			]
		}`))
	})

	raw, err := client.FetchRoute(context.Background(), origin, destination)
	require.NoError(t, err)

	assert.Equal(t, "/route/v1/driving/106.000000,10.000000;106.050000,10.050000", gotPath)
	assert.Contains(t, gotQuery, "overview=full")
	assert.Contains(t, gotQuery, "geometries=geojson")

	assert.Equal(t, 4200.0, raw.DistanceMeters)
	assert.Equal(t, 480.0, raw.DurationSeconds)
	assert.Equal(t, [][2]float64{{106.0, 10.0}, {106.02, 10.02}, {106.05, 10.05}}, raw.Geometry)
}

func TestFetchRoute_StatusSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"NoSegment","message":"Could not find a matching segment"}`))
	})

	_, err := client.FetchRoute(context.Background(), origin, destination)
	var unavailable *route.RouteUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "NoSegment", unavailable.Code)
}

func TestFetchRoute_ZeroRoutes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[]}`))
	})

	_, err := client.FetchRoute(context.Background(), origin, destination)
	var unavailable *route.RouteUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Contains(t, unavailable.Error(), "no route found")
}

func TestFetchRoute_Non2xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.FetchRoute(context.Background(), origin, destination)
	var fetchErr *route.RouteFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
}

func TestFetchRoute_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := client.FetchRoute(context.Background(), origin, destination)
	var fetchErr *route.RouteFetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestFetchRoute_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, zap.NewNop())

	_, err := client.FetchRoute(context.Background(), origin, destination)
	var fetchErr *route.RouteFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.NotNil(t, errors.Unwrap(err))
}

func TestFetchRoute_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client := NewClient(Config{BaseURL: baseURL}, zap.NewNop())
	_, err := client.FetchRoute(context.Background(), origin, destination)
	var fetchErr *route.RouteFetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestRouteURL_CustomProfile(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://router.local/", Profile: "car"}, zap.NewNop())
	u := client.RouteURL(origin, destination)
	assert.Equal(t, "http://router.local/route/v1/car/106.000000,10.000000;106.050000,10.050000?geometries=geojson&overview=full", u)
}
