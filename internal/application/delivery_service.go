package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain"
	"github.com/bloodlink/service-delivery/internal/domain/delivery"
	"github.com/bloodlink/service-delivery/internal/domain/route"
	"github.com/bloodlink/service-delivery/internal/events"
)

const serviceName = "service-delivery"

// RouteTracker follows the destination of deliveries on the road.
type RouteTracker interface {
	DestinationChanged(ctx context.Context, d *delivery.Delivery) error
	StopTracking(ctx context.Context, deliveryID uuid.UUID)
}

// LocationRequest is a facility position in a request body.
type LocationRequest struct {
	FacilityID   string  `json:"facility_id"`
	FacilityName string  `json:"facility_name" binding:"required"`
	Address      string  `json:"address"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lng"`
}

func (l LocationRequest) toLocation() delivery.Location {
	return delivery.Location{
		FacilityID:   l.FacilityID,
		FacilityName: l.FacilityName,
		Address:      l.Address,
		Point:        route.Waypoint{Latitude: l.Latitude, Longitude: l.Longitude},
	}
}

// CreateDeliveryRequest holds the data needed to create a new delivery.
type CreateDeliveryRequest struct {
	RequestID *uuid.UUID      `json:"request_id"`
	BloodType string          `json:"blood_type" binding:"required"`
	Units     int             `json:"units" binding:"required,min=1"`
	Priority  string          `json:"priority" binding:"omitempty,oneof=routine urgent emergency"`
	Pickup    LocationRequest `json:"pickup" binding:"required"`
	Dropoff   LocationRequest `json:"dropoff" binding:"required"`
	Notes     string          `json:"notes"`
}

// DeliveryDTO is the response representation of a delivery.
type DeliveryDTO struct {
	ID             uuid.UUID         `json:"id"`
	DeliveryNumber string            `json:"delivery_number"`
	RequestID      *uuid.UUID        `json:"request_id,omitempty"`
	RequesterID    uuid.UUID         `json:"requester_id"`
	CourierID      *uuid.UUID        `json:"courier_id,omitempty"`
	Status         string            `json:"status"`
	BloodType      string            `json:"blood_type"`
	Units          int               `json:"units"`
	Priority       string            `json:"priority"`
	Pickup         delivery.Location `json:"pickup"`
	Dropoff        delivery.Location `json:"dropoff"`
	DispatchedAt   *time.Time        `json:"dispatched_at,omitempty"`
	PickedUpAt     *time.Time        `json:"picked_up_at,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	CancelledAt    *time.Time        `json:"cancelled_at,omitempty"`
	CancelNote     string            `json:"cancel_note,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// PaginatedResult is one page of a listing.
type PaginatedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginatedResult builds a page, deriving the page count from total and limit.
func NewPaginatedResult[T any](items []T, total int64, page, limit int) PaginatedResult[T] {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PaginatedResult[T]{Items: items, Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// DeliveryStatsDTO holds delivery statistics for the admin dashboard.
type DeliveryStatsDTO struct {
	TotalDeliveries int64            `json:"total_deliveries"`
	ByStatus        map[string]int64 `json:"by_status"`
	TrackedNow      int              `json:"tracked_now"`
}

// DeliveryService is the application service orchestrating delivery use cases.
type DeliveryService struct {
	repo        delivery.Repository
	tracker     RouteTracker
	publisher   events.Publisher
	eventsTopic string
	logger      *zap.Logger
}

// NewDeliveryService creates a new DeliveryService.
func NewDeliveryService(
	repo delivery.Repository,
	tracker RouteTracker,
	publisher events.Publisher,
	eventsTopic string,
	logger *zap.Logger,
) *DeliveryService {
	if eventsTopic == "" {
		eventsTopic = events.TopicDeliveryEvents
	}
	return &DeliveryService{
		repo:        repo,
		tracker:     tracker,
		publisher:   publisher,
		eventsTopic: eventsTopic,
		logger:      logger,
	}
}

// CreateDelivery registers a new delivery for the requester.
func (s *DeliveryService) CreateDelivery(ctx context.Context, requesterID uuid.UUID, req CreateDeliveryRequest) (*DeliveryDTO, error) {
	d, err := delivery.NewDelivery(delivery.NewDeliveryParams{
		RequestID:   req.RequestID,
		RequesterID: requesterID,
		BloodType:   delivery.BloodType(req.BloodType),
		Units:       req.Units,
		Priority:    delivery.Priority(req.Priority),
		Pickup:      req.Pickup.toLocation(),
		Dropoff:     req.Dropoff.toLocation(),
		Notes:       req.Notes,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save delivery: %w", err)
	}

	s.publishEvent(ctx, events.DeliveryCreated, d.ID(), events.DeliveryCreatedEvent{
		DeliveryID:     d.ID(),
		DeliveryNumber: d.DeliveryNumber(),
		RequesterID:    d.RequesterID(),
		BloodType:      string(d.BloodType()),
		Units:          d.Units(),
		Priority:       string(d.Priority()),
		PickupLat:      d.Pickup().Point.Latitude,
		PickupLng:      d.Pickup().Point.Longitude,
		DropoffLat:     d.Dropoff().Point.Latitude,
		DropoffLng:     d.Dropoff().Point.Longitude,
		OccurredAt:     time.Now().UTC(),
	})

	s.logger.Info("delivery created",
		zap.String("delivery_id", d.ID().String()),
		zap.String("delivery_number", d.DeliveryNumber()),
		zap.String("priority", string(d.Priority())),
	)

	result := toDeliveryDTO(d)
	return &result, nil
}

// DispatchDelivery assigns a courier. Route tracking starts toward the pickup facility.
func (s *DeliveryService) DispatchDelivery(ctx context.Context, deliveryID, courierID uuid.UUID) (*DeliveryDTO, error) {
	d, err := s.transition(ctx, deliveryID, events.DeliveryDispatched, func(d *delivery.Delivery) error {
		return d.Dispatch(courierID)
	})
	if err != nil {
		return nil, err
	}
	s.retarget(ctx, d)
	result := toDeliveryDTO(d)
	return &result, nil
}

// PickUpDelivery records collection by the assigned courier. The route switches to the dropoff.
func (s *DeliveryService) PickUpDelivery(ctx context.Context, deliveryID, courierID uuid.UUID) (*DeliveryDTO, error) {
	d, err := s.transition(ctx, deliveryID, events.DeliveryPickedUp, func(d *delivery.Delivery) error {
		if !d.IsAssignedTo(courierID) {
			return domain.NewForbiddenError("delivery is not assigned to this courier")
		}
		return d.PickUp()
	})
	if err != nil {
		return nil, err
	}
	s.retarget(ctx, d)
	result := toDeliveryDTO(d)
	return &result, nil
}

// ConfirmDelivery marks the units as handed over at the dropoff facility.
func (s *DeliveryService) ConfirmDelivery(ctx context.Context, deliveryID, courierID uuid.UUID) (*DeliveryDTO, error) {
	d, err := s.transition(ctx, deliveryID, events.DeliveryDelivered, func(d *delivery.Delivery) error {
		if !d.IsAssignedTo(courierID) {
			return domain.NewForbiddenError("delivery is not assigned to this courier")
		}
		return d.ConfirmDelivery()
	})
	if err != nil {
		return nil, err
	}
	s.tracker.StopTracking(ctx, d.ID())
	result := toDeliveryDTO(d)
	return &result, nil
}

// CancelDelivery cancels a delivery that is not yet in a terminal state.
func (s *DeliveryService) CancelDelivery(ctx context.Context, deliveryID, cancelledBy uuid.UUID, reason string) (*DeliveryDTO, error) {
	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := d.Cancel(reason); err != nil {
		return nil, err
	}
	d.IncrementVersion()
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.DeliveryCancelled, d.ID(), events.DeliveryCancelledEvent{
		DeliveryID:     d.ID(),
		DeliveryNumber: d.DeliveryNumber(),
		CancelledBy:    cancelledBy,
		Reason:         reason,
		OccurredAt:     time.Now().UTC(),
	})
	s.tracker.StopTracking(ctx, d.ID())

	result := toDeliveryDTO(d)
	return &result, nil
}

// GetDelivery retrieves a single delivery by ID.
func (s *DeliveryService) GetDelivery(ctx context.Context, deliveryID uuid.UUID) (*DeliveryDTO, error) {
	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	result := toDeliveryDTO(d)
	return &result, nil
}

// GetDeliveryByNumber retrieves a single delivery by its delivery number.
func (s *DeliveryService) GetDeliveryByNumber(ctx context.Context, number string) (*DeliveryDTO, error) {
	d, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	result := toDeliveryDTO(d)
	return &result, nil
}

// ListDeliveries retrieves a filtered page of deliveries.
func (s *DeliveryService) ListDeliveries(ctx context.Context, filter delivery.ListFilter, page, limit int) (*PaginatedResult[DeliveryDTO], error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid status filter: %s", filter.Status))
	}
	deliveries, total, err := s.repo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, err
	}

	dtos := make([]DeliveryDTO, len(deliveries))
	for i, d := range deliveries {
		dtos[i] = toDeliveryDTO(d)
	}
	result := NewPaginatedResult(dtos, total, page, limit)
	return &result, nil
}

// GetDeliveryStats returns aggregate delivery statistics (admin).
func (s *DeliveryService) GetDeliveryStats(ctx context.Context, trackedNow int) (*DeliveryStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	return &DeliveryStatsDTO{
		TotalDeliveries: total,
		ByStatus:        counts,
		TrackedNow:      trackedNow,
	}, nil
}

// --- Helpers ---

// transition loads the delivery, applies change, saves it and publishes a status event.
func (s *DeliveryService) transition(ctx context.Context, deliveryID uuid.UUID, eventType string, change func(d *delivery.Delivery) error) (*delivery.Delivery, error) {
	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := change(d); err != nil {
		return nil, err
	}
	d.IncrementVersion()
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, eventType, d.ID(), events.DeliveryStatusChangedEvent{
		DeliveryID:     d.ID(),
		DeliveryNumber: d.DeliveryNumber(),
		CourierID:      d.CourierID(),
		Status:         string(d.Status()),
		OccurredAt:     time.Now().UTC(),
	})
	s.logger.Info("delivery status changed",
		zap.String("delivery_id", d.ID().String()),
		zap.String("status", string(d.Status())),
	)
	return d, nil
}

// retarget tells the tracker about a new destination. The transition is already stored, so a
// tracking failure is logged rather than returned.
func (s *DeliveryService) retarget(ctx context.Context, d *delivery.Delivery) {
	if err := s.tracker.DestinationChanged(ctx, d); err != nil {
		s.logger.Warn("failed to update route tracking",
			zap.String("delivery_id", d.ID().String()),
			zap.Error(err),
		)
	}
}

func toDeliveryDTO(d *delivery.Delivery) DeliveryDTO {
	return DeliveryDTO{
		ID:             d.ID(),
		DeliveryNumber: d.DeliveryNumber(),
		RequestID:      d.RequestID(),
		RequesterID:    d.RequesterID(),
		CourierID:      d.CourierID(),
		Status:         string(d.Status()),
		BloodType:      string(d.BloodType()),
		Units:          d.Units(),
		Priority:       string(d.Priority()),
		Pickup:         d.Pickup(),
		Dropoff:        d.Dropoff(),
		DispatchedAt:   d.DispatchedAt(),
		PickedUpAt:     d.PickedUpAt(),
		DeliveredAt:    d.DeliveredAt(),
		CancelledAt:    d.CancelledAt(),
		CancelNote:     d.CancelNote(),
		Notes:          d.Notes(),
		Version:        d.Version(),
		CreatedAt:      d.CreatedAt(),
		UpdatedAt:      d.UpdatedAt(),
	}
}

func (s *DeliveryService) publishEvent(ctx context.Context, eventType string, deliveryID uuid.UUID, data any) {
	ce, err := events.NewCloudEvent(serviceName, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	ce.WithSubject(deliveryID.String())

	if err := s.publisher.PublishEvent(ctx, s.eventsTopic, ce); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("topic", s.eventsTopic),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
