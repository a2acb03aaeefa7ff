package delivery

import "fmt"

// DeliveryStatus represents the current state of a delivery in its lifecycle.
type DeliveryStatus string

const (
	StatusPending    DeliveryStatus = "pending"
	StatusDispatched DeliveryStatus = "dispatched"
	StatusInTransit  DeliveryStatus = "in_transit"
	StatusDelivered  DeliveryStatus = "delivered"
	StatusCancelled  DeliveryStatus = "cancelled"
)

var validTransitions = map[DeliveryStatus][]DeliveryStatus{
	StatusPending:    {StatusDispatched, StatusCancelled},
	StatusDispatched: {StatusInTransit, StatusCancelled},
	StatusInTransit:  {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// IsValid returns true if the status is a recognized delivery status.
func (s DeliveryStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s DeliveryStatus) CanTransitionTo(target DeliveryStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s DeliveryStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// CanBeCancelled returns true if the delivery can be cancelled from this status.
func (s DeliveryStatus) CanBeCancelled() bool {
	return s.CanTransitionTo(StatusCancelled)
}

// IsTracked reports whether a courier is on the road in this status.
func (s DeliveryStatus) IsTracked() bool {
	return s == StatusDispatched || s == StatusInTransit
}

func (s DeliveryStatus) String() string {
	return string(s)
}

// ParseDeliveryStatus converts a string to a DeliveryStatus, returning an error if invalid.
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	status := DeliveryStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid delivery status: %s", s)
	}
	return status, nil
}

// Priority is the clinical urgency of a delivery.
type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// IsValid returns true if the priority is recognized.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityRoutine, PriorityUrgent, PriorityEmergency:
		return true
	}
	return false
}

// BloodType is an ABO/Rh blood group.
type BloodType string

var bloodTypes = map[BloodType]struct{}{
	"A+": {}, "A-": {}, "B+": {}, "B-": {},
	"AB+": {}, "AB-": {}, "O+": {}, "O-": {},
}

// IsValid returns true if the blood type is one of the eight ABO/Rh groups.
func (b BloodType) IsValid() bool {
	_, ok := bloodTypes[b]
	return ok
}
