package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain/route"
)

// LocationUpdater receives courier position fixes.
type LocationUpdater interface {
	UpdateCourierLocation(ctx context.Context, courierID uuid.UUID, deliveryID *uuid.UUID, position route.Waypoint) error
}

// CourierLocationConsumer feeds courier GPS fixes into route tracking.
type CourierLocationConsumer struct {
	consumer *Consumer
	updater  LocationUpdater
	logger   *zap.Logger
}

// NewCourierLocationConsumer creates a new CourierLocationConsumer.
func NewCourierLocationConsumer(
	brokers []string,
	groupID string,
	topic string,
	updater LocationUpdater,
	logger *zap.Logger,
) *CourierLocationConsumer {
	return &CourierLocationConsumer{
		consumer: NewConsumer(brokers, groupID, topic, logger),
		updater:  updater,
		logger:   logger,
	}
}

// Start begins consuming location events. This blocks until the context is cancelled.
func (c *CourierLocationConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *CourierLocationConsumer) Close() error {
	return c.consumer.Close()
}

func (c *CourierLocationConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	ce, err := ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from location topic",
			zap.Error(err),
			zap.ByteString("raw", msg.Value),
		)
		return nil
	}

	switch ce.Type {
	case CourierLocationReported:
		return c.handleLocationReported(ctx, ce)
	default:
		c.logger.Debug("ignoring unhandled location event type", zap.String("type", ce.Type))
		return nil
	}
}

func (c *CourierLocationConsumer) handleLocationReported(ctx context.Context, ce *CloudEvent) error {
	var evt CourierLocationReportedEvent
	if err := ce.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse CourierLocationReportedEvent data", zap.Error(err))
		return nil
	}

	position, err := route.NewWaypoint(evt.Latitude, evt.Longitude)
	if err != nil || evt.CourierID == uuid.Nil {
		c.logger.Warn("dropping invalid courier location",
			zap.String("courier_id", evt.CourierID.String()),
			zap.Float64("lat", evt.Latitude),
			zap.Float64("lng", evt.Longitude),
		)
		return nil
	}

	if err := c.updater.UpdateCourierLocation(ctx, evt.CourierID, evt.DeliveryID, position); err != nil {
		return fmt.Errorf("failed to update courier %s location: %w", evt.CourierID, err)
	}
	return nil
}
