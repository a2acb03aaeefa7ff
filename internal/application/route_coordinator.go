package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain/route"
)

// CoordinatorState is the lifecycle state of a RouteCoordinator.
type CoordinatorState string

const (
	StateIdle     CoordinatorState = "idle"
	StateFetching CoordinatorState = "fetching"
)

// ErrCoordinatorStopped is returned by ObserveEndpoints once Run has returned.
var ErrCoordinatorStopped = errors.New("route coordinator stopped")

// PathRenderer is the surface that paints the latest accepted path.
type PathRenderer interface {
	RenderPath(path []route.Waypoint)
}

// CoordinatorOptions configures a RouteCoordinator. OnRouteReady and OnRouteError are
// invoked on the coordinator goroutine, in generation order, and must not call back into
// the same coordinator.
type CoordinatorOptions struct {
	OnRouteReady func(result route.RouteResult)
	OnRouteError func(err error)
	Renderer     PathRenderer

	// Debounce delays issuing a request until endpoints have been stable for this long.
	Debounce time.Duration
	// CancelSuperseded cancels the in-flight fetch when a newer one is issued.
	CancelSuperseded bool
}

type endpoints struct {
	origin      *route.Waypoint
	destination *route.Waypoint
	force       bool
}

type completion struct {
	generation uint64
	result     route.RouteResult
	err        error
}

// RouteCoordinator recomputes the route whenever the tracked endpoints change and publishes
// only the result of the most recently issued request. All mutable state below the channel
// fields is owned by the Run goroutine.
type RouteCoordinator struct {
	fetcher route.Fetcher
	opts    CoordinatorOptions
	logger  *zap.Logger

	inbox   chan endpoints
	results chan completion
	stopped chan struct{}

	lastIssued     *route.RouteRequest
	pending        *endpoints
	inflightCancel context.CancelFunc

	generation    atomic.Uint64
	staleDiscards atomic.Uint64
	state         atomic.Value
	issued        atomic.Pointer[route.RouteRequest]

	mu         sync.RWMutex
	lastResult *route.RouteResult
}

// NewRouteCoordinator creates a coordinator. Call Run to start it.
func NewRouteCoordinator(fetcher route.Fetcher, opts CoordinatorOptions, logger *zap.Logger) *RouteCoordinator {
	c := &RouteCoordinator{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		inbox:   make(chan endpoints),
		results: make(chan completion),
		stopped: make(chan struct{}),
	}
	c.state.Store(StateIdle)
	return c
}

// ObserveEndpoints reports the current origin and destination. Either may be nil while the
// caller's state is incomplete, in which case nothing is issued.
func (c *RouteCoordinator) ObserveEndpoints(ctx context.Context, origin, destination *route.Waypoint) error {
	return c.send(ctx, endpoints{origin: copyWaypoint(origin), destination: copyWaypoint(destination)})
}

// Retry re-issues the last requested pair under a new generation.
func (c *RouteCoordinator) Retry(ctx context.Context) error {
	return c.send(ctx, endpoints{force: true})
}

func (c *RouteCoordinator) send(ctx context.Context, ep endpoints) error {
	select {
	case c.inbox <- ep:
		return nil
	case <-c.stopped:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generation returns the generation of the most recently issued request.
func (c *RouteCoordinator) Generation() uint64 { return c.generation.Load() }

// LastRequest returns the most recently issued request, or nil. Inside OnRouteReady and
// OnRouteError it is the request whose completion is being published.
func (c *RouteCoordinator) LastRequest() *route.RouteRequest { return c.issued.Load() }

// StaleDiscards returns how many completed responses were dropped as superseded.
func (c *RouteCoordinator) StaleDiscards() uint64 { return c.staleDiscards.Load() }

// State returns the current lifecycle state.
func (c *RouteCoordinator) State() CoordinatorState { return c.state.Load().(CoordinatorState) }

// LastResult returns the most recently published route, or nil.
func (c *RouteCoordinator) LastResult() *route.RouteResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastResult
}

// Run processes endpoint changes and fetch completions until ctx is done.
func (c *RouteCoordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer func() {
		if c.inflightCancel != nil {
			c.inflightCancel()
		}
	}()

	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ep := <-c.inbox:
			if ep.force {
				c.retry(ctx)
				continue
			}
			if !route.Validate(ep.origin, ep.destination) {
				c.logger.Debug("endpoints incomplete, skipping route request")
				continue
			}
			if c.opts.Debounce <= 0 {
				c.issue(ctx, *ep.origin, *ep.destination)
				continue
			}
			c.pending = &ep
			if debounce == nil {
				debounce = time.NewTimer(c.opts.Debounce)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(c.opts.Debounce)
			}
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if c.pending != nil {
				ep := c.pending
				c.pending = nil
				c.issue(ctx, *ep.origin, *ep.destination)
			}

		case done := <-c.results:
			c.complete(done)
		}
	}
}

func (c *RouteCoordinator) retry(ctx context.Context) {
	if c.lastIssued == nil {
		return
	}
	req := *c.lastIssued
	c.lastIssued = nil
	c.issue(ctx, req.Origin, req.Destination)
}

func (c *RouteCoordinator) issue(ctx context.Context, origin, destination route.Waypoint) {
	if c.lastIssued != nil && c.lastIssued.SameEndpoints(origin, destination) {
		return
	}

	if c.opts.CancelSuperseded && c.inflightCancel != nil {
		c.inflightCancel()
	}

	req := route.RouteRequest{
		Origin:      origin,
		Destination: destination,
		Generation:  c.generation.Add(1),
	}
	c.lastIssued = &req
	c.issued.Store(&req)
	c.state.Store(StateFetching)

	fetchCtx, cancel := context.WithCancel(ctx)
	c.inflightCancel = cancel

	c.logger.Debug("issuing route request",
		zap.Uint64("generation", req.Generation),
		zap.String("origin", origin.String()),
		zap.String("destination", destination.String()),
	)

	go func() {
		defer cancel()
		done := completion{generation: req.Generation}
		raw, err := c.fetcher.FetchRoute(fetchCtx, req.Origin, req.Destination)
		if err == nil {
			done.result, err = route.BuildResult(raw)
		}
		done.err = err

		select {
		case c.results <- done:
		case <-ctx.Done():
		}
	}()
}

func (c *RouteCoordinator) complete(done completion) {
	current := c.generation.Load()
	if done.generation < current {
		c.staleDiscards.Add(1)
		c.logger.Debug("discarding stale route response",
			zap.Uint64("generation", done.generation),
			zap.Uint64("current", current),
		)
		return
	}

	c.inflightCancel = nil
	c.state.Store(StateIdle)

	if done.err != nil {
		c.logger.Warn("route computation failed",
			zap.Uint64("generation", done.generation),
			zap.Error(done.err),
		)
		if c.opts.OnRouteError != nil {
			c.opts.OnRouteError(done.err)
		}
		return
	}

	result := done.result
	c.mu.Lock()
	c.lastResult = &result
	c.mu.Unlock()

	if c.opts.Renderer != nil {
		c.opts.Renderer.RenderPath(result.Path)
	}
	if c.opts.OnRouteReady != nil {
		c.opts.OnRouteReady(result)
	}
}

func copyWaypoint(wp *route.Waypoint) *route.Waypoint {
	if wp == nil {
		return nil
	}
	v := *wp
	return &v
}
