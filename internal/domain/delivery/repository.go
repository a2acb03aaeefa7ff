package delivery

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows a delivery listing. Zero values match everything.
type ListFilter struct {
	Status      DeliveryStatus
	CourierID   *uuid.UUID
	RequesterID *uuid.UUID
}

// Repository defines the persistence contract for delivery aggregates.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Delivery, error)
	FindByNumber(ctx context.Context, number string) (*Delivery, error)

	// FindActiveByCourier returns the courier's dispatched or in-transit deliveries.
	FindActiveByCourier(ctx context.Context, courierID uuid.UUID) ([]*Delivery, error)

	// List retrieves deliveries matching the filter with pagination.
	List(ctx context.Context, filter ListFilter, page, limit int) ([]*Delivery, int64, error)

	// CountByStatus returns delivery counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)

	Save(ctx context.Context, d *Delivery) error

	// Update persists changes to an existing delivery with optimistic locking.
	Update(ctx context.Context, d *Delivery) error
}

// RouteSnapshotRepository stores the latest route per delivery.
type RouteSnapshotRepository interface {
	// Upsert stores the snapshot, replacing any previous one for the delivery.
	Upsert(ctx context.Context, snapshot *RouteSnapshot) error
	FindByDeliveryID(ctx context.Context, deliveryID uuid.UUID) (*RouteSnapshot, error)
	DeleteByDeliveryID(ctx context.Context, deliveryID uuid.UUID) error
}
