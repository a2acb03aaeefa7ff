// Package routecache caches routing service responses keyed by rounded endpoints.
package routecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bloodlink/service-delivery/internal/domain/route"
)

// Store persists raw route responses.
type Store interface {
	// Get returns the cached response, or ok=false on a miss.
	Get(ctx context.Context, key string) (raw *route.RawRouteResponse, ok bool, err error)
	Set(ctx context.Context, key string, raw *route.RawRouteResponse, ttl time.Duration) error
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisStore is a Store backed by Redis string keys holding JSON.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

type cachedRoute struct {
	Geometry        [][2]float64 `json:"g"`
	DistanceMeters  float64      `json:"d"`
	DurationSeconds float64      `json:"t"`
}

// Get returns the cached response for key.
func (s *RedisStore) Get(ctx context.Context, key string) (*route.RawRouteResponse, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read route cache: %w", err)
	}

	var c cachedRoute
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached route: %w", err)
	}
	return &route.RawRouteResponse{
		Geometry:        c.Geometry,
		DistanceMeters:  c.DistanceMeters,
		DurationSeconds: c.DurationSeconds,
	}, true, nil
}

// Set stores raw under key for ttl.
func (s *RedisStore) Set(ctx context.Context, key string, raw *route.RawRouteResponse, ttl time.Duration) error {
	data, err := json.Marshal(cachedRoute{
		Geometry:        raw.Geometry,
		DistanceMeters:  raw.DistanceMeters,
		DurationSeconds: raw.DurationSeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to encode route: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write route cache: %w", err)
	}
	return nil
}
