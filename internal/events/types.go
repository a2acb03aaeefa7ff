package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicDeliveryEvents   = "delivery.events"
	TopicCourierLocations = "courier.locations"
)

// Event types published on TopicDeliveryEvents.
const (
	DeliveryCreated    = "delivery.created"
	DeliveryDispatched = "delivery.dispatched"
	DeliveryPickedUp   = "delivery.picked_up"
	DeliveryDelivered  = "delivery.delivered"
	DeliveryCancelled  = "delivery.cancelled"
	RouteUpdated       = "delivery.route.updated"
	RouteFailed        = "delivery.route.failed"
)

// CourierLocationReported is consumed from TopicCourierLocations.
const CourierLocationReported = "courier.location.reported"

// DeliveryCreatedEvent is published when a delivery is requested.
type DeliveryCreatedEvent struct {
	DeliveryID     uuid.UUID `json:"delivery_id"`
	DeliveryNumber string    `json:"delivery_number"`
	RequesterID    uuid.UUID `json:"requester_id"`
	BloodType      string    `json:"blood_type"`
	Units          int       `json:"units"`
	Priority       string    `json:"priority"`
	PickupLat      float64   `json:"pickup_lat"`
	PickupLng      float64   `json:"pickup_lng"`
	DropoffLat     float64   `json:"dropoff_lat"`
	DropoffLng     float64   `json:"dropoff_lng"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// DeliveryStatusChangedEvent is published on dispatch, pickup and arrival.
type DeliveryStatusChangedEvent struct {
	DeliveryID     uuid.UUID  `json:"delivery_id"`
	DeliveryNumber string     `json:"delivery_number"`
	CourierID      *uuid.UUID `json:"courier_id,omitempty"`
	Status         string     `json:"status"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// DeliveryCancelledEvent is published when a delivery is cancelled.
type DeliveryCancelledEvent struct {
	DeliveryID     uuid.UUID `json:"delivery_id"`
	DeliveryNumber string    `json:"delivery_number"`
	CancelledBy    uuid.UUID `json:"cancelled_by"`
	Reason         string    `json:"reason"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// RouteUpdatedEvent carries a freshly published route. Path holds [lat, lng] pairs.
type RouteUpdatedEvent struct {
	DeliveryID  uuid.UUID    `json:"delivery_id"`
	Generation  uint64       `json:"generation"`
	OriginLat   float64      `json:"origin_lat"`
	OriginLng   float64      `json:"origin_lng"`
	DestLat     float64      `json:"dest_lat"`
	DestLng     float64      `json:"dest_lng"`
	DistanceKm  float64      `json:"distance_km"`
	DurationMin float64      `json:"duration_min"`
	Path        [][2]float64 `json:"path"`
	ETA         time.Time    `json:"eta"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// RouteFailedEvent reports a failed route refresh. The previous route stays valid.
type RouteFailedEvent struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CourierLocationReportedEvent is a courier GPS fix. DeliveryID is optional; without it the
// fix applies to every active delivery of the courier.
type CourierLocationReportedEvent struct {
	CourierID  uuid.UUID  `json:"courier_id"`
	DeliveryID *uuid.UUID `json:"delivery_id,omitempty"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	AccuracyM  float64    `json:"accuracy_m,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}
