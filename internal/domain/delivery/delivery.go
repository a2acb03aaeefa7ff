package delivery

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/service-delivery/internal/domain"
	"github.com/bloodlink/service-delivery/internal/domain/route"
)

const deliveryNumberChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// MaxUnits bounds the number of blood units a single courier can carry.
const MaxUnits = 50

// Delivery is the aggregate root for a blood unit transfer between two facilities.
type Delivery struct {
	id             uuid.UUID
	deliveryNumber string
	requestID      *uuid.UUID
	requesterID    uuid.UUID
	courierID      *uuid.UUID
	status         DeliveryStatus
	bloodType      BloodType
	units          int
	priority       Priority
	pickup         Location
	dropoff        Location

	dispatchedAt *time.Time
	pickedUpAt   *time.Time
	deliveredAt  *time.Time
	cancelledAt  *time.Time
	cancelNote   string
	notes        string

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewDeliveryParams holds the input for NewDelivery.
type NewDeliveryParams struct {
	RequestID   *uuid.UUID
	RequesterID uuid.UUID
	BloodType   BloodType
	Units       int
	Priority    Priority
	Pickup      Location
	Dropoff     Location
	Notes       string
}

// generateDeliveryNumber creates a delivery number in the format "DL-XXXXXX".
func generateDeliveryNumber() (string, error) {
	result := make([]byte, 6)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(deliveryNumberChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate delivery number: %w", err)
		}
		result[i] = deliveryNumberChars[n.Int64()]
	}
	return "DL-" + string(result), nil
}

// NewDelivery creates a new Delivery aggregate with status=pending.
func NewDelivery(p NewDeliveryParams) (*Delivery, error) {
	if p.RequesterID == uuid.Nil {
		return nil, domain.NewValidationError("requester ID is required")
	}
	if !p.BloodType.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid blood type: %s", p.BloodType))
	}
	if p.Units <= 0 || p.Units > MaxUnits {
		return nil, domain.NewValidationError(fmt.Sprintf("units must be between 1 and %d", MaxUnits))
	}
	if p.Priority == "" {
		p.Priority = PriorityRoutine
	}
	if !p.Priority.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid priority: %s", p.Priority))
	}
	if err := checkLocation("pickup", p.Pickup); err != nil {
		return nil, err
	}
	if err := checkLocation("dropoff", p.Dropoff); err != nil {
		return nil, err
	}

	number, err := generateDeliveryNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Delivery{
		id:             uuid.New(),
		deliveryNumber: number,
		requestID:      p.RequestID,
		requesterID:    p.RequesterID,
		status:         StatusPending,
		bloodType:      p.BloodType,
		units:          p.Units,
		priority:       p.Priority,
		pickup:         p.Pickup,
		dropoff:        p.Dropoff,
		notes:          p.Notes,
		version:        1,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

func checkLocation(field string, loc Location) error {
	if loc.FacilityName == "" {
		return domain.NewValidationError(field + " facility name is required")
	}
	if !loc.Point.IsValid() {
		return domain.NewValidationError(field + " coordinates are out of range")
	}
	return nil
}

// ReconstructParams carries persisted state into ReconstructDelivery.
type ReconstructParams struct {
	ID             uuid.UUID
	DeliveryNumber string
	RequestID      *uuid.UUID
	RequesterID    uuid.UUID
	CourierID      *uuid.UUID
	Status         DeliveryStatus
	BloodType      BloodType
	Units          int
	Priority       Priority
	Pickup         Location
	Dropoff        Location
	DispatchedAt   *time.Time
	PickedUpAt     *time.Time
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
	CancelNote     string
	Notes          string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReconstructDelivery rebuilds a Delivery from persistence data (no validation).
func ReconstructDelivery(p ReconstructParams) *Delivery {
	return &Delivery{
		id:             p.ID,
		deliveryNumber: p.DeliveryNumber,
		requestID:      p.RequestID,
		requesterID:    p.RequesterID,
		courierID:      p.CourierID,
		status:         p.Status,
		bloodType:      p.BloodType,
		units:          p.Units,
		priority:       p.Priority,
		pickup:         p.Pickup,
		dropoff:        p.Dropoff,
		dispatchedAt:   p.DispatchedAt,
		pickedUpAt:     p.PickedUpAt,
		deliveredAt:    p.DeliveredAt,
		cancelledAt:    p.CancelledAt,
		cancelNote:     p.CancelNote,
		notes:          p.Notes,
		version:        p.Version,
		createdAt:      p.CreatedAt,
		updatedAt:      p.UpdatedAt,
	}
}

// --- Getters ---

func (d *Delivery) ID() uuid.UUID { return d.id }
func (d *Delivery) DeliveryNumber() string { return d.deliveryNumber }
func (d *Delivery) RequestID() *uuid.UUID { return d.requestID }
func (d *Delivery) RequesterID() uuid.UUID { return d.requesterID }
func (d *Delivery) CourierID() *uuid.UUID { return d.courierID }
func (d *Delivery) Status() DeliveryStatus { return d.status }
func (d *Delivery) BloodType() BloodType { return d.bloodType }
func (d *Delivery) Units() int { return d.units }
func (d *Delivery) Priority() Priority { return d.priority }
func (d *Delivery) Pickup() Location { return d.pickup }
func (d *Delivery) Dropoff() Location { return d.dropoff }
func (d *Delivery) DispatchedAt() *time.Time { return d.dispatchedAt }
func (d *Delivery) PickedUpAt() *time.Time { return d.pickedUpAt }
func (d *Delivery) DeliveredAt() *time.Time { return d.deliveredAt }
func (d *Delivery) CancelledAt() *time.Time { return d.cancelledAt }
func (d *Delivery) CancelNote() string { return d.cancelNote }
func (d *Delivery) Notes() string { return d.notes }
func (d *Delivery) Version() int64 { return d.version }
func (d *Delivery) CreatedAt() time.Time { return d.createdAt }
func (d *Delivery) UpdatedAt() time.Time { return d.updatedAt }

// IsAssignedTo reports whether the courier is the one carrying this delivery.
func (d *Delivery) IsAssignedTo(courierID uuid.UUID) bool {
	return d.courierID != nil && *d.courierID == courierID
}

// TrackingDestination is where the courier is currently heading: the pickup facility
// until the units are collected, then the dropoff facility.
func (d *Delivery) TrackingDestination() (route.Waypoint, error) {
	switch d.status {
	case StatusDispatched:
		return d.pickup.Point, nil
	case StatusInTransit:
		return d.dropoff.Point, nil
	default:
		return route.Waypoint{}, domain.NewInvalidStateError(string(d.status), "tracked")
	}
}

// --- Behavior ---

// Dispatch assigns a courier and moves the delivery from pending to dispatched.
func (d *Delivery) Dispatch(courierID uuid.UUID) error {
	if !d.status.CanTransitionTo(StatusDispatched) {
		return domain.NewInvalidStateError(string(d.status), string(StatusDispatched))
	}
	if courierID == uuid.Nil {
		return domain.NewValidationError("courier ID is required")
	}
	now := time.Now().UTC()
	d.courierID = &courierID
	d.status = StatusDispatched
	d.dispatchedAt = &now
	d.updatedAt = now
	return nil
}

// PickUp records that the courier collected the units at the pickup facility.
func (d *Delivery) PickUp() error {
	if !d.status.CanTransitionTo(StatusInTransit) {
		return domain.NewInvalidStateError(string(d.status), string(StatusInTransit))
	}
	now := time.Now().UTC()
	d.status = StatusInTransit
	d.pickedUpAt = &now
	d.updatedAt = now
	return nil
}

// ConfirmDelivery transitions the delivery from in_transit to delivered.
func (d *Delivery) ConfirmDelivery() error {
	if !d.status.CanTransitionTo(StatusDelivered) {
		return domain.NewInvalidStateError(string(d.status), string(StatusDelivered))
	}
	now := time.Now().UTC()
	d.status = StatusDelivered
	d.deliveredAt = &now
	d.updatedAt = now
	return nil
}

// Cancel transitions the delivery to cancelled if it is not in a terminal state.
func (d *Delivery) Cancel(reason string) error {
	if !d.status.CanBeCancelled() {
		return domain.NewInvalidStateError(string(d.status), string(StatusCancelled))
	}
	now := time.Now().UTC()
	d.status = StatusCancelled
	d.cancelNote = reason
	d.cancelledAt = &now
	d.updatedAt = now
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (d *Delivery) IncrementVersion() {
	d.version++
	d.updatedAt = time.Now().UTC()
}
