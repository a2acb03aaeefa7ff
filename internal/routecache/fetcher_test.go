package routecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain/route"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*route.RawRouteResponse
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*route.RawRouteResponse)}
}

func (m *memoryStore) Get(_ context.Context, key string) (*route.RawRouteResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	raw, ok := m.entries[key]
	return raw, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key string, raw *route.RawRouteResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = raw
	m.lastTTL = ttl
	return nil
}

type countingFetcher struct {
	calls int
	raw   *route.RawRouteResponse
	err   error
}

func (f *countingFetcher) FetchRoute(context.Context, route.Waypoint, route.Waypoint) (*route.RawRouteResponse, error) {
	f.calls++
	return f.raw, f.err
}

var (
	origin      = route.Waypoint{Latitude: 10.0, Longitude: 106.0}
	destination = route.Waypoint{Latitude: 10.05, Longitude: 106.05}
)

func TestCachingFetcher_ReadThrough(t *testing.T) {
	next := &countingFetcher{raw: &route.RawRouteResponse{Geometry: [][2]float64{{106, 10}}, DistanceMeters: 4200, DurationSeconds: 480}}
	store := newMemoryStore()
	f := NewCachingFetcher(next, store, time.Minute, 0, zap.NewNop())
	ctx := context.Background()

	first, err := f.FetchRoute(ctx, origin, destination)
	require.NoError(t, err)
	second, err := f.FetchRoute(ctx, origin, destination)
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Minute, store.lastTTL)
}

func TestCachingFetcher_RoundsNearbyPoints(t *testing.T) {
	f := NewCachingFetcher(&countingFetcher{}, newMemoryStore(), 0, 4, zap.NewNop())

	jittered := route.Waypoint{Latitude: 10.000012, Longitude: 105.999996}
	assert.Equal(t, f.Key(origin, destination), f.Key(jittered, destination))
	assert.Equal(t, "route:v1:10.0000,106.0000;10.0500,106.0500", f.Key(origin, destination))
	assert.NotEqual(t, f.Key(origin, destination), f.Key(route.Waypoint{Latitude: 10.001, Longitude: 106}, destination))
}

func TestCachingFetcher_DoesNotCacheFailures(t *testing.T) {
	next := &countingFetcher{err: &route.RouteUnavailableError{Code: "NoRoute"}}
	store := newMemoryStore()
	f := NewCachingFetcher(next, store, 0, 0, zap.NewNop())

	_, err := f.FetchRoute(context.Background(), origin, destination)
	var unavailable *route.RouteUnavailableError
	assert.True(t, errors.As(err, &unavailable))
	assert.Empty(t, store.entries)
}

func TestCachingFetcher_DegradesOnStoreErrors(t *testing.T) {
	next := &countingFetcher{raw: &route.RawRouteResponse{DistanceMeters: 1}}
	store := newMemoryStore()
	store.getErr = errors.New("connection refused")
	store.setErr = errors.New("connection refused")
	f := NewCachingFetcher(next, store, 0, 0, zap.NewNop())

	raw, err := f.FetchRoute(context.Background(), origin, destination)
	require.NoError(t, err)
	assert.Equal(t, 1.0, raw.DistanceMeters)
	assert.Equal(t, 1, next.calls)
}
