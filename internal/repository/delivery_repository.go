package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloodlink/service-delivery/internal/domain"
	"github.com/bloodlink/service-delivery/internal/domain/delivery"
)

// DeliveryModel is the GORM model for the deliveries table.
type DeliveryModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	DeliveryNumber string          `gorm:"uniqueIndex;not null;size:20"`
	RequestID      *uuid.UUID      `gorm:"type:uuid;index"`
	RequesterID    uuid.UUID       `gorm:"type:uuid;index;not null"`
	CourierID      *uuid.UUID      `gorm:"type:uuid;index"`
	Status         string          `gorm:"not null;size:30;index"`
	BloodType      string          `gorm:"not null;size:3"`
	Units          int             `gorm:"not null"`
	Priority       string          `gorm:"not null;size:20"`
	Pickup         json.RawMessage `gorm:"type:jsonb;not null"`
	Dropoff        json.RawMessage `gorm:"type:jsonb;not null"`
	DispatchedAt   *time.Time
	PickedUpAt     *time.Time
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
	CancelNote     string    `gorm:"size:500"`
	Notes          string    `gorm:"size:1000"`
	Version        int64     `gorm:"not null;default:1"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (DeliveryModel) TableName() string {
	return "deliveries"
}

// GormDeliveryRepository is the GORM-based implementation of delivery.Repository.
type GormDeliveryRepository struct {
	db *gorm.DB
}

// NewGormDeliveryRepository creates a new GormDeliveryRepository.
func NewGormDeliveryRepository(db *gorm.DB) *GormDeliveryRepository {
	return &GormDeliveryRepository{db: db}
}

// FindByID retrieves a delivery by its unique identifier.
func (r *GormDeliveryRepository) FindByID(ctx context.Context, id uuid.UUID) (*delivery.Delivery, error) {
	var model DeliveryModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Delivery", id.String())
		}
		return nil, fmt.Errorf("failed to find delivery by ID: %w", err)
	}
	return toDomainDelivery(&model)
}

// FindByNumber retrieves a delivery by its delivery number.
func (r *GormDeliveryRepository) FindByNumber(ctx context.Context, number string) (*delivery.Delivery, error) {
	var model DeliveryModel
	if err := r.db.WithContext(ctx).Where("delivery_number = ?", number).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Delivery", number)
		}
		return nil, fmt.Errorf("failed to find delivery by number: %w", err)
	}
	return toDomainDelivery(&model)
}

// FindActiveByCourier returns the courier's dispatched or in-transit deliveries.
func (r *GormDeliveryRepository) FindActiveByCourier(ctx context.Context, courierID uuid.UUID) ([]*delivery.Delivery, error) {
	var models []DeliveryModel
	if err := r.db.WithContext(ctx).
		Where("courier_id = ? AND status IN ?", courierID, []string{
			string(delivery.StatusDispatched),
			string(delivery.StatusInTransit),
		}).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find active courier deliveries: %w", err)
	}
	return toDomainDeliveries(models)
}

// List retrieves deliveries matching the filter with pagination.
func (r *GormDeliveryRepository) List(ctx context.Context, filter delivery.ListFilter, page, limit int) ([]*delivery.Delivery, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.CourierID != nil {
		query = query.Where("courier_id = ?", *filter.CourierID)
	}
	if filter.RequesterID != nil {
		query = query.Where("requester_id = ?", *filter.RequesterID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count deliveries: %w", err)
	}

	var models []DeliveryModel
	offset := (page - 1) * limit
	if err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list deliveries: %w", err)
	}

	deliveries, err := toDomainDeliveries(models)
	if err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// CountByStatus returns delivery counts grouped by status (admin).
func (r *GormDeliveryRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&DeliveryModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64, len(results))
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// Save persists a new delivery.
func (r *GormDeliveryRepository) Save(ctx context.Context, d *delivery.Delivery) error {
	model, err := toDeliveryModel(d)
	if err != nil {
		return fmt.Errorf("failed to convert delivery to model: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save delivery: %w", err)
	}
	return nil
}

// Update persists changes to an existing delivery with optimistic locking.
func (r *GormDeliveryRepository) Update(ctx context.Context, d *delivery.Delivery) error {
	model, err := toDeliveryModel(d)
	if err != nil {
		return fmt.Errorf("failed to convert delivery to model: %w", err)
	}

	// IncrementVersion has already run, so the stored row carries the previous version.
	expectedVersion := d.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"courier_id":    model.CourierID,
			"status":        model.Status,
			"pickup":        model.Pickup,
			"dropoff":       model.Dropoff,
			"dispatched_at": model.DispatchedAt,
			"picked_up_at":  model.PickedUpAt,
			"delivered_at":  model.DeliveredAt,
			"cancelled_at":  model.CancelledAt,
			"cancel_note":   model.CancelNote,
			"notes":         model.Notes,
			"version":       model.Version,
			"updated_at":    model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update delivery: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("delivery was modified by another transaction")
	}
	return nil
}

// --- Conversion Helpers ---

func toDeliveryModel(d *delivery.Delivery) (*DeliveryModel, error) {
	pickupJSON, err := json.Marshal(d.Pickup())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pickup location: %w", err)
	}
	dropoffJSON, err := json.Marshal(d.Dropoff())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dropoff location: %w", err)
	}

	return &DeliveryModel{
		ID:             d.ID(),
		DeliveryNumber: d.DeliveryNumber(),
		RequestID:      d.RequestID(),
		RequesterID:    d.RequesterID(),
		CourierID:      d.CourierID(),
		Status:         string(d.Status()),
		BloodType:      string(d.BloodType()),
		Units:          d.Units(),
		Priority:       string(d.Priority()),
		Pickup:         pickupJSON,
		Dropoff:        dropoffJSON,
		DispatchedAt:   d.DispatchedAt(),
		PickedUpAt:     d.PickedUpAt(),
		DeliveredAt:    d.DeliveredAt(),
		CancelledAt:    d.CancelledAt(),
		CancelNote:     d.CancelNote(),
		Notes:          d.Notes(),
		Version:        d.Version(),
		CreatedAt:      d.CreatedAt(),
		UpdatedAt:      d.UpdatedAt(),
	}, nil
}

func toDomainDelivery(m *DeliveryModel) (*delivery.Delivery, error) {
	var pickup, dropoff delivery.Location
	if err := json.Unmarshal(m.Pickup, &pickup); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pickup location: %w", err)
	}
	if err := json.Unmarshal(m.Dropoff, &dropoff); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dropoff location: %w", err)
	}

	status, err := delivery.ParseDeliveryStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return delivery.ReconstructDelivery(delivery.ReconstructParams{
		ID:             m.ID,
		DeliveryNumber: m.DeliveryNumber,
		RequestID:      m.RequestID,
		RequesterID:    m.RequesterID,
		CourierID:      m.CourierID,
		Status:         status,
		BloodType:      delivery.BloodType(m.BloodType),
		Units:          m.Units,
		Priority:       delivery.Priority(m.Priority),
		Pickup:         pickup,
		Dropoff:        dropoff,
		DispatchedAt:   m.DispatchedAt,
		PickedUpAt:     m.PickedUpAt,
		DeliveredAt:    m.DeliveredAt,
		CancelledAt:    m.CancelledAt,
		CancelNote:     m.CancelNote,
		Notes:          m.Notes,
		Version:        m.Version,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}), nil
}

func toDomainDeliveries(models []DeliveryModel) ([]*delivery.Delivery, error) {
	deliveries := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := toDomainDelivery(&models[i])
		if err != nil {
			return nil, err
		}
		deliveries[i] = d
	}
	return deliveries, nil
}
