package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bloodlink/service-delivery/internal/domain"
	"github.com/bloodlink/service-delivery/internal/domain/delivery"
	"github.com/bloodlink/service-delivery/internal/domain/route"
)

// RouteSnapshotModel is the GORM model for the route_snapshots table. One row per delivery.
type RouteSnapshotModel struct {
	DeliveryID  uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OriginLat   float64         `gorm:"not null"`
	OriginLng   float64         `gorm:"not null"`
	DestLat     float64         `gorm:"not null"`
	DestLng     float64         `gorm:"not null"`
	Path        json.RawMessage `gorm:"type:jsonb;not null"`
	DistanceKm  float64         `gorm:"not null"`
	DurationMin float64         `gorm:"not null"`
	Generation  int64           `gorm:"not null"`
	ComputedAt  time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (RouteSnapshotModel) TableName() string {
	return "route_snapshots"
}

// GormRouteSnapshotRepository is the GORM-based implementation of delivery.RouteSnapshotRepository.
type GormRouteSnapshotRepository struct {
	db *gorm.DB
}

// NewGormRouteSnapshotRepository creates a new GormRouteSnapshotRepository.
func NewGormRouteSnapshotRepository(db *gorm.DB) *GormRouteSnapshotRepository {
	return &GormRouteSnapshotRepository{db: db}
}

// Upsert stores the snapshot, replacing any previous one for the delivery.
func (r *GormRouteSnapshotRepository) Upsert(ctx context.Context, s *delivery.RouteSnapshot) error {
	model, err := toSnapshotModel(s)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "delivery_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to upsert route snapshot: %w", err)
	}
	return nil
}

// FindByDeliveryID returns the latest route for the delivery.
func (r *GormRouteSnapshotRepository) FindByDeliveryID(ctx context.Context, deliveryID uuid.UUID) (*delivery.RouteSnapshot, error) {
	var model RouteSnapshotModel
	if err := r.db.WithContext(ctx).Where("delivery_id = ?", deliveryID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Route", deliveryID.String())
		}
		return nil, fmt.Errorf("failed to find route snapshot: %w", err)
	}
	return toDomainSnapshot(&model)
}

// DeleteByDeliveryID removes the stored route, if any.
func (r *GormRouteSnapshotRepository) DeleteByDeliveryID(ctx context.Context, deliveryID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("delivery_id = ?", deliveryID).Delete(&RouteSnapshotModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete route snapshot: %w", err)
	}
	return nil
}

func toSnapshotModel(s *delivery.RouteSnapshot) (*RouteSnapshotModel, error) {
	path := s.Path
	if path == nil {
		path = []route.Waypoint{}
	}
	pathJSON, err := json.Marshal(path)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal route path: %w", err)
	}
	return &RouteSnapshotModel{
		DeliveryID:  s.DeliveryID,
		OriginLat:   s.Origin.Latitude,
		OriginLng:   s.Origin.Longitude,
		DestLat:     s.Destination.Latitude,
		DestLng:     s.Destination.Longitude,
		Path:        pathJSON,
		DistanceKm:  s.DistanceKm,
		DurationMin: s.DurationMin,
		Generation:  int64(s.Generation),
		ComputedAt:  s.ComputedAt,
	}, nil
}

func toDomainSnapshot(m *RouteSnapshotModel) (*delivery.RouteSnapshot, error) {
	var path []route.Waypoint
	if err := json.Unmarshal(m.Path, &path); err != nil {
		return nil, fmt.Errorf("failed to unmarshal route path: %w", err)
	}
	return &delivery.RouteSnapshot{
		DeliveryID:  m.DeliveryID,
		Origin:      route.Waypoint{Latitude: m.OriginLat, Longitude: m.OriginLng},
		Destination: route.Waypoint{Latitude: m.DestLat, Longitude: m.DestLng},
		Path:        path,
		DistanceKm:  m.DistanceKm,
		DurationMin: m.DurationMin,
		Generation:  uint64(m.Generation),
		ComputedAt:  m.ComputedAt,
	}, nil
}
