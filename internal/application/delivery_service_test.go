package application

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain"
	"github.com/bloodlink/service-delivery/internal/domain/delivery"
	"github.com/bloodlink/service-delivery/internal/events"
)

func newTestDeliveryService() (*DeliveryService, *memoryDeliveryRepo, *recordingTracker, *recordingPublisher) {
	repo := newMemoryDeliveryRepo()
	tracker := &recordingTracker{}
	pub := &recordingPublisher{}
	return NewDeliveryService(repo, tracker, pub, "", zap.NewNop()), repo, tracker, pub
}

func createRequest() CreateDeliveryRequest {
	return CreateDeliveryRequest{
		BloodType: "O+",
		Units:     3,
		Priority:  "urgent",
		Pickup:    LocationRequest{FacilityName: "Central Blood Bank", Latitude: 10.0, Longitude: 106.0},
		Dropoff:   LocationRequest{FacilityName: "Children's Hospital", Latitude: 10.05, Longitude: 106.05},
	}
}

func TestDeliveryService_Lifecycle(t *testing.T) {
	svc, _, tracker, pub := newTestDeliveryService()
	ctx := context.Background()
	courier := uuid.New()

	created, err := svc.CreateDelivery(ctx, uuid.New(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "urgent", created.Priority)

	dispatched, err := svc.DispatchDelivery(ctx, created.ID, courier)
	require.NoError(t, err)
	assert.Equal(t, "dispatched", dispatched.Status)
	assert.Equal(t, &courier, dispatched.CourierID)

	picked, err := svc.PickUpDelivery(ctx, created.ID, courier)
	require.NoError(t, err)
	assert.Equal(t, "in_transit", picked.Status)

	done, err := svc.ConfirmDelivery(ctx, created.ID, courier)
	require.NoError(t, err)
	assert.Equal(t, "delivered", done.Status)
	assert.Equal(t, int64(4), done.Version)

	assert.Equal(t, []delivery.DeliveryStatus{delivery.StatusDispatched, delivery.StatusInTransit}, tracker.changed)
	assert.Equal(t, []uuid.UUID{created.ID}, tracker.stopped)
	assert.Equal(t, []string{
		events.DeliveryCreated,
		events.DeliveryDispatched,
		events.DeliveryPickedUp,
		events.DeliveryDelivered,
	}, pub.types())
	for _, ce := range pub.events {
		assert.Equal(t, created.ID.String(), ce.Subject)
		assert.Equal(t, "service-delivery", ce.Source)
	}
}

func TestDeliveryService_CreateRejectsInvalidInput(t *testing.T) {
	svc, _, _, pub := newTestDeliveryService()
	req := createRequest()
	req.BloodType = "Z"

	_, err := svc.CreateDelivery(context.Background(), uuid.New(), req)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Empty(t, pub.types())
}

func TestDeliveryService_OnlyAssignedCourierMayPickUp(t *testing.T) {
	svc, _, tracker, _ := newTestDeliveryService()
	ctx := context.Background()

	created, err := svc.CreateDelivery(ctx, uuid.New(), createRequest())
	require.NoError(t, err)
	_, err = svc.DispatchDelivery(ctx, created.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.PickUpDelivery(ctx, created.ID, uuid.New())
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
	assert.Len(t, tracker.changed, 1)
}

func TestDeliveryService_CancelStopsTracking(t *testing.T) {
	svc, _, tracker, pub := newTestDeliveryService()
	ctx := context.Background()

	created, err := svc.CreateDelivery(ctx, uuid.New(), createRequest())
	require.NoError(t, err)
	_, err = svc.DispatchDelivery(ctx, created.ID, uuid.New())
	require.NoError(t, err)

	cancelled, err := svc.CancelDelivery(ctx, created.ID, uuid.New(), "patient transferred")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "patient transferred", cancelled.CancelNote)
	assert.Equal(t, []uuid.UUID{created.ID}, tracker.stopped)
	assert.Equal(t, 1, pub.count(events.DeliveryCancelled))

	_, err = svc.CancelDelivery(ctx, created.ID, uuid.New(), "again")
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))
}

func TestDeliveryService_GetUnknown(t *testing.T) {
	svc, _, _, _ := newTestDeliveryService()
	_, err := svc.GetDelivery(context.Background(), uuid.New())
	assert.True(t, domain.IsNotFound(err))
}

func TestDeliveryService_ListAndStats(t *testing.T) {
	svc, _, _, _ := newTestDeliveryService()
	ctx := context.Background()

	first, err := svc.CreateDelivery(ctx, uuid.New(), createRequest())
	require.NoError(t, err)
	_, err = svc.CreateDelivery(ctx, uuid.New(), createRequest())
	require.NoError(t, err)
	_, err = svc.DispatchDelivery(ctx, first.ID, uuid.New())
	require.NoError(t, err)

	page, err := svc.ListDeliveries(ctx, delivery.ListFilter{Status: delivery.StatusPending}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.TotalPages)

	_, err = svc.ListDeliveries(ctx, delivery.ListFilter{Status: "lost"}, 1, 20)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	stats, err := svc.GetDeliveryStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalDeliveries)
	assert.Equal(t, int64(1), stats.ByStatus["dispatched"])
	assert.Equal(t, 1, stats.TrackedNow)
}

func TestNewPaginatedResult(t *testing.T) {
	assert.Equal(t, 3, NewPaginatedResult([]int{1}, 41, 1, 20).TotalPages)
	assert.Equal(t, 0, NewPaginatedResult([]int{}, 0, 1, 20).TotalPages)
}
