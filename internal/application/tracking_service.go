package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain"
	"github.com/bloodlink/service-delivery/internal/domain/delivery"
	"github.com/bloodlink/service-delivery/internal/domain/route"
	"github.com/bloodlink/service-delivery/internal/events"
	"github.com/bloodlink/service-delivery/internal/realtime"
)

const persistTimeout = 5 * time.Second

// RouteDTO is the response representation of a computed route.
type RouteDTO struct {
	DeliveryID  *uuid.UUID         `json:"delivery_id,omitempty"`
	Origin      route.Waypoint     `json:"origin"`
	Destination route.Waypoint     `json:"destination"`
	Path        []route.Waypoint   `json:"path"`
	DistanceKm  float64            `json:"distance_km"`
	DurationMin float64            `json:"duration_min"`
	Generation  uint64             `json:"generation,omitempty"`
	ComputedAt  time.Time          `json:"computed_at"`
	ETA         time.Time          `json:"eta"`
	Tracking    *TrackingStatusDTO `json:"tracking,omitempty"`
}

// Result returns the route result carried by the DTO.
func (r *RouteDTO) Result() route.RouteResult {
	return route.RouteResult{Path: r.Path, DistanceKm: r.DistanceKm, DurationMin: r.DurationMin}
}

// TrackingStatusDTO describes the live coordinator of a tracked delivery.
type TrackingStatusDTO struct {
	State         CoordinatorState `json:"state"`
	Generation    uint64           `json:"generation"`
	StaleDiscards uint64           `json:"stale_discards"`
}

// TrackingConfig tunes the per-delivery route coordinators.
type TrackingConfig struct {
	Debounce         time.Duration
	CancelSuperseded bool
	EventsTopic      string
}

type tracker struct {
	deliveryID  uuid.UUID
	coordinator *RouteCoordinator
	cancel      context.CancelFunc

	mu          sync.Mutex
	origin      *route.Waypoint
	destination *route.Waypoint
}

// observe updates the tracked endpoints and hands the pair to the coordinator. The lock keeps
// observations in the order the endpoints changed.
func (t *tracker) observe(ctx context.Context, origin, destination *route.Waypoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if origin != nil {
		t.origin = origin
	}
	if destination != nil {
		t.destination = destination
	}
	return t.coordinator.ObserveEndpoints(ctx, t.origin, t.destination)
}

// seed fills endpoints that no caller has reported yet.
func (t *tracker) seed(ctx context.Context, origin, destination *route.Waypoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.origin == nil {
		t.origin = origin
	}
	if t.destination == nil {
		t.destination = destination
	}
	return t.coordinator.ObserveEndpoints(ctx, t.origin, t.destination)
}

// TrackingService keeps one RouteCoordinator per delivery on the road and fans its results
// out to storage, the event bus and live subscribers.
type TrackingService struct {
	fetcher    route.Fetcher
	deliveries delivery.Repository
	snapshots  delivery.RouteSnapshotRepository
	publisher  events.Publisher
	live       realtime.Broadcaster
	cfg        TrackingConfig
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	trackers map[uuid.UUID]*tracker
}

// NewTrackingService creates a new TrackingService.
func NewTrackingService(
	fetcher route.Fetcher,
	deliveries delivery.Repository,
	snapshots delivery.RouteSnapshotRepository,
	publisher events.Publisher,
	live realtime.Broadcaster,
	cfg TrackingConfig,
	logger *zap.Logger,
) *TrackingService {
	if cfg.EventsTopic == "" {
		cfg.EventsTopic = events.TopicDeliveryEvents
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TrackingService{
		fetcher:    fetcher,
		deliveries: deliveries,
		snapshots:  snapshots,
		publisher:  publisher,
		live:       live,
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		trackers:   make(map[uuid.UUID]*tracker),
	}
}

// UpdateCourierLocation moves the origin of the courier's tracked deliveries. With a nil
// deliveryID every active delivery of the courier is updated.
func (s *TrackingService) UpdateCourierLocation(ctx context.Context, courierID uuid.UUID, deliveryID *uuid.UUID, position route.Waypoint) error {
	if !position.IsValid() {
		return domain.NewValidationError("courier position is out of range")
	}

	var targets []*delivery.Delivery
	if deliveryID != nil {
		d, err := s.deliveries.FindByID(ctx, *deliveryID)
		if err != nil {
			return err
		}
		if !d.IsAssignedTo(courierID) {
			return domain.NewForbiddenError("delivery is not assigned to this courier")
		}
		if !d.Status().IsTracked() {
			return domain.NewInvalidStateError(string(d.Status()), "tracked")
		}
		targets = append(targets, d)
	} else {
		active, err := s.deliveries.FindActiveByCourier(ctx, courierID)
		if err != nil {
			return fmt.Errorf("failed to find active deliveries: %w", err)
		}
		targets = active
	}

	for _, d := range targets {
		t, err := s.ensureTracker(ctx, d)
		if err != nil {
			return err
		}
		pos := position
		if err := t.observe(ctx, &pos, nil); err != nil {
			if errors.Is(err, ErrCoordinatorStopped) {
				continue
			}
			return fmt.Errorf("failed to observe courier location: %w", err)
		}
	}

	s.logger.Debug("courier location updated",
		zap.String("courier_id", courierID.String()),
		zap.Int("deliveries", len(targets)),
	)
	return nil
}

// DestinationChanged re-targets the delivery's route after a status change. Deliveries that
// are no longer on the road stop being tracked.
func (s *TrackingService) DestinationChanged(ctx context.Context, d *delivery.Delivery) error {
	if !d.Status().IsTracked() {
		s.StopTracking(ctx, d.ID())
		return nil
	}

	dest, err := d.TrackingDestination()
	if err != nil {
		return err
	}
	t, err := s.ensureTracker(ctx, d)
	if err != nil {
		return err
	}
	if err := t.observe(ctx, nil, &dest); err != nil {
		return fmt.Errorf("failed to observe destination: %w", err)
	}
	return nil
}

// StopTracking shuts the delivery's coordinator down. The last stored route is kept.
func (s *TrackingService) StopTracking(_ context.Context, deliveryID uuid.UUID) {
	s.mu.Lock()
	t, ok := s.trackers[deliveryID]
	delete(s.trackers, deliveryID)
	s.mu.Unlock()

	if ok {
		t.cancel()
		s.logger.Info("route tracking stopped", zap.String("delivery_id", deliveryID.String()))
	}
}

// Retry re-issues the last route request of a tracked delivery.
func (s *TrackingService) Retry(ctx context.Context, deliveryID uuid.UUID) error {
	s.mu.Lock()
	t, ok := s.trackers[deliveryID]
	s.mu.Unlock()
	if ok {
		return t.coordinator.Retry(ctx)
	}

	// Not tracked in this process yet: rebuilding the tracker issues a fresh request.
	d, err := s.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	if !d.Status().IsTracked() {
		return domain.NewInvalidStateError(string(d.Status()), "tracked")
	}
	return s.DestinationChanged(ctx, d)
}

// CurrentRoute returns the latest stored route of a delivery with its live tracking status.
func (s *TrackingService) CurrentRoute(ctx context.Context, deliveryID uuid.UUID) (*RouteDTO, error) {
	snapshot, err := s.snapshots.FindByDeliveryID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	dto := toRouteDTO(snapshot)
	dto.Tracking = s.TrackingStatus(deliveryID)
	return dto, nil
}

// TrackingStatus returns the coordinator status of a tracked delivery, or nil.
func (s *TrackingService) TrackingStatus(deliveryID uuid.UUID) *TrackingStatusDTO {
	s.mu.Lock()
	t, ok := s.trackers[deliveryID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return &TrackingStatusDTO{
		State:         t.coordinator.State(),
		Generation:    t.coordinator.Generation(),
		StaleDiscards: t.coordinator.StaleDiscards(),
	}
}

// PreviewRoute computes a one-off route between two points.
func (s *TrackingService) PreviewRoute(ctx context.Context, origin, destination *route.Waypoint) (*RouteDTO, error) {
	if err := route.CheckEndpoints(origin, destination); err != nil {
		return nil, err
	}

	raw, err := s.fetcher.FetchRoute(ctx, *origin, *destination)
	if err != nil {
		return nil, err
	}
	result, err := route.BuildResult(raw)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &RouteDTO{
		Origin:      *origin,
		Destination: *destination,
		Path:        result.Path,
		DistanceKm:  result.DistanceKm,
		DurationMin: result.DurationMin,
		ComputedAt:  now,
		ETA:         now.Add(time.Duration(result.DurationMin * float64(time.Minute))),
	}, nil
}

// Tracked returns the number of deliveries currently tracked.
func (s *TrackingService) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trackers)
}

// Shutdown stops every coordinator and waits for them to exit.
func (s *TrackingService) Shutdown() {
	s.cancel()
	s.mu.Lock()
	s.trackers = make(map[uuid.UUID]*tracker)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *TrackingService) ensureTracker(ctx context.Context, d *delivery.Delivery) (*tracker, error) {
	s.mu.Lock()
	if t, ok := s.trackers[d.ID()]; ok {
		s.mu.Unlock()
		return t, nil
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil, ErrCoordinatorStopped
	}

	deliveryID := d.ID()
	runCtx, cancel := context.WithCancel(s.ctx)
	t := &tracker{deliveryID: deliveryID, cancel: cancel}
	t.coordinator = NewRouteCoordinator(s.fetcher, CoordinatorOptions{
		OnRouteReady:     func(result route.RouteResult) { s.routeReady(t, result) },
		OnRouteError:     func(err error) { s.routeFailed(t, err) },
		Renderer:         realtime.NewDeliveryRenderer(s.live, deliveryID),
		Debounce:         s.cfg.Debounce,
		CancelSuperseded: s.cfg.CancelSuperseded,
	}, s.logger.With(zap.String("delivery_id", deliveryID.String())))

	s.trackers[deliveryID] = t
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := t.coordinator.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("route coordinator exited", zap.String("delivery_id", deliveryID.String()), zap.Error(err))
		}
	}()

	s.logger.Info("route tracking started", zap.String("delivery_id", deliveryID.String()))

	// Seed the tracker so a restarted process resumes from the last known courier position.
	var origin *route.Waypoint
	if snapshot, err := s.snapshots.FindByDeliveryID(ctx, deliveryID); err == nil {
		o := snapshot.Origin
		origin = &o
	} else if !domain.IsNotFound(err) {
		s.logger.Warn("failed to load route snapshot", zap.String("delivery_id", deliveryID.String()), zap.Error(err))
	}
	dest, err := d.TrackingDestination()
	if err != nil {
		return nil, err
	}
	if err := t.seed(ctx, origin, &dest); err != nil {
		return nil, fmt.Errorf("failed to seed route tracker: %w", err)
	}
	return t, nil
}

// routeReady runs on the coordinator goroutine of t.
func (s *TrackingService) routeReady(t *tracker, result route.RouteResult) {
	req := t.coordinator.LastRequest()
	if req == nil {
		return
	}
	snapshot := delivery.NewRouteSnapshot(t.deliveryID, req.Origin, req.Destination, result, req.Generation)

	ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
	defer cancel()

	if err := s.snapshots.Upsert(ctx, snapshot); err != nil {
		s.logger.Error("failed to store route snapshot",
			zap.String("delivery_id", t.deliveryID.String()),
			zap.Error(err),
		)
	}

	path := make([][2]float64, len(result.Path))
	for i, p := range result.Path {
		path[i] = [2]float64{p.Latitude, p.Longitude}
	}
	evt := events.RouteUpdatedEvent{
		DeliveryID:  t.deliveryID,
		Generation:  req.Generation,
		OriginLat:   req.Origin.Latitude,
		OriginLng:   req.Origin.Longitude,
		DestLat:     req.Destination.Latitude,
		DestLng:     req.Destination.Longitude,
		DistanceKm:  result.DistanceKm,
		DurationMin: result.DurationMin,
		Path:        path,
		ETA:         snapshot.ETA(),
		OccurredAt:  snapshot.ComputedAt,
	}
	s.publishEvent(ctx, events.RouteUpdated, t.deliveryID, evt)

	s.live.Broadcast(t.deliveryID, realtime.RouteFrame(t.deliveryID, result, snapshot.ETA()))

	s.logger.Info("route updated",
		zap.String("delivery_id", t.deliveryID.String()),
		zap.Uint64("generation", req.Generation),
		zap.Float64("distance_km", result.DistanceKm),
		zap.Float64("duration_min", result.DurationMin),
	)
}

// routeFailed runs on the coordinator goroutine of t.
func (s *TrackingService) routeFailed(t *tracker, err error) {
	ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
	defer cancel()

	s.publishEvent(ctx, events.RouteFailed, t.deliveryID, events.RouteFailedEvent{
		DeliveryID: t.deliveryID,
		Reason:     err.Error(),
		OccurredAt: time.Now().UTC(),
	})
	s.live.Broadcast(t.deliveryID, realtime.ErrorFrame(t.deliveryID, err))
}

func (s *TrackingService) publishEvent(ctx context.Context, eventType string, deliveryID uuid.UUID, data any) {
	ce, err := events.NewCloudEvent(serviceName, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	ce.WithSubject(deliveryID.String())

	if err := s.publisher.PublishEvent(ctx, s.cfg.EventsTopic, ce); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("topic", s.cfg.EventsTopic),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func toRouteDTO(s *delivery.RouteSnapshot) *RouteDTO {
	id := s.DeliveryID
	return &RouteDTO{
		DeliveryID:  &id,
		Origin:      s.Origin,
		Destination: s.Destination,
		Path:        s.Path,
		DistanceKm:  s.DistanceKm,
		DurationMin: s.DurationMin,
		Generation:  s.Generation,
		ComputedAt:  s.ComputedAt,
		ETA:         s.ETA(),
	}
}
