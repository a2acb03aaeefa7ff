package routecache

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain/route"
)

const (
	keyPrefix = "route:v1:"

	// DefaultPrecision rounds coordinates to 4 decimals, roughly 11 m.
	DefaultPrecision = 4
	DefaultTTL       = 10 * time.Minute
)

// CachingFetcher wraps a route.Fetcher with a read-through cache. Only successful
// responses are stored; failures always reach the caller.
type CachingFetcher struct {
	next      route.Fetcher
	store     Store
	ttl       time.Duration
	precision int
	logger    *zap.Logger
}

// NewCachingFetcher creates a CachingFetcher. Zero ttl or precision select the defaults.
func NewCachingFetcher(next route.Fetcher, store Store, ttl time.Duration, precision int, logger *zap.Logger) *CachingFetcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return &CachingFetcher{next: next, store: store, ttl: ttl, precision: precision, logger: logger}
}

// FetchRoute serves from the cache when possible. Cache errors degrade to a direct fetch.
func (f *CachingFetcher) FetchRoute(ctx context.Context, origin, destination route.Waypoint) (*route.RawRouteResponse, error) {
	key := f.Key(origin, destination)

	raw, ok, err := f.store.Get(ctx, key)
	if err != nil {
		f.logger.Warn("route cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		f.logger.Debug("route cache hit", zap.String("key", key))
		return raw, nil
	}

	raw, err = f.next.FetchRoute(ctx, origin, destination)
	if err != nil {
		return nil, err
	}

	if err := f.store.Set(ctx, key, raw, f.ttl); err != nil {
		f.logger.Warn("route cache write failed", zap.String("key", key), zap.Error(err))
	}
	return raw, nil
}

// Key is the cache key for the pair after rounding both endpoints.
func (f *CachingFetcher) Key(origin, destination route.Waypoint) string {
	scale := math.Pow10(f.precision)
	round := func(v float64) float64 { return math.Round(v*scale) / scale }
	return fmt.Sprintf("%s%.*f,%.*f;%.*f,%.*f", keyPrefix,
		f.precision, round(origin.Latitude), f.precision, round(origin.Longitude),
		f.precision, round(destination.Latitude), f.precision, round(destination.Longitude),
	)
}
