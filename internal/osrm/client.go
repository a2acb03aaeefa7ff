// Package osrm is a client for OSRM-compatible routing services.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain/route"
)

const (
	// StatusOK is the service's success sentinel in the response envelope.
	StatusOK = "Ok"

	DefaultProfile = "driving"
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 8 << 20
)

// Config holds the routing service connection settings.
type Config struct {
	BaseURL string
	Profile string
	Timeout time.Duration
}

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	} `json:"geometry"`
}

// Client fetches driving routes. It implements route.Fetcher.
type Client struct {
	baseURL    string
	profile    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Client. The timeout bounds each round trip.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	profile := cfg.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		profile: profile,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// RouteURL builds the request URL for the pair. Coordinates are longitude first and the
// geometry is requested in full, as GeoJSON.
func (c *Client) RouteURL(origin, destination route.Waypoint) string {
	q := url.Values{
		"overview":   {"full"},
		"geometries": {"geojson"},
	}
	return fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?%s",
		c.baseURL, c.profile,
		origin.Longitude, origin.Latitude,
		destination.Longitude, destination.Latitude,
		q.Encode(),
	)
}

// FetchRoute performs one round trip to the routing service and returns its first route.
func (c *Client) FetchRoute(ctx context.Context, origin, destination route.Waypoint) (*route.RawRouteResponse, error) {
	reqURL := c.RouteURL(origin, destination)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &route.RouteFetchError{Cause: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &route.RouteFetchError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &route.RouteFetchError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Debug("routing service responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("origin", origin.String()),
		zap.String("destination", destination.String()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &route.RouteFetchError{
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("routing service returned status %d: %s", resp.StatusCode, truncate(body, 256)),
		}
	}

	var envelope osrmResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &route.RouteFetchError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("error decoding response: %w", err)}
	}

	if envelope.Code != StatusOK {
		return nil, &route.RouteUnavailableError{Code: envelope.Code, Message: envelope.Message}
	}
	if len(envelope.Routes) == 0 {
		return nil, &route.RouteUnavailableError{Code: envelope.Code, Message: "no route found"}
	}

	first := envelope.Routes[0]
	geometry := first.Geometry.Coordinates
	if geometry == nil {
		geometry = [][2]float64{}
	}
	return &route.RawRouteResponse{
		Geometry:        geometry,
		DistanceMeters:  first.Distance,
		DurationSeconds: first.Duration,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
