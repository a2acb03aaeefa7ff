package application

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/bloodlink/service-delivery/internal/domain"
	"github.com/bloodlink/service-delivery/internal/domain/delivery"
	"github.com/bloodlink/service-delivery/internal/events"
	"github.com/bloodlink/service-delivery/internal/realtime"
)

type memoryDeliveryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*delivery.Delivery
}

func newMemoryDeliveryRepo() *memoryDeliveryRepo {
	return &memoryDeliveryRepo{items: make(map[uuid.UUID]*delivery.Delivery)}
}

func (r *memoryDeliveryRepo) FindByID(_ context.Context, id uuid.UUID) (*delivery.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, domain.NewNotFoundError("Delivery", id.String())
	}
	return d, nil
}

func (r *memoryDeliveryRepo) FindByNumber(_ context.Context, number string) (*delivery.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.items {
		if d.DeliveryNumber() == number {
			return d, nil
		}
	}
	return nil, domain.NewNotFoundError("Delivery", number)
}

func (r *memoryDeliveryRepo) FindActiveByCourier(_ context.Context, courierID uuid.UUID) ([]*delivery.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*delivery.Delivery
	for _, d := range r.items {
		if d.IsAssignedTo(courierID) && d.Status().IsTracked() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memoryDeliveryRepo) List(_ context.Context, filter delivery.ListFilter, _, _ int) ([]*delivery.Delivery, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*delivery.Delivery
	for _, d := range r.items {
		if filter.Status != "" && d.Status() != filter.Status {
			continue
		}
		out = append(out, d)
	}
	return out, int64(len(out)), nil
}

func (r *memoryDeliveryRepo) CountByStatus(context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, d := range r.items {
		counts[string(d.Status())]++
	}
	return counts, nil
}

func (r *memoryDeliveryRepo) Save(_ context.Context, d *delivery.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[d.ID()] = d
	return nil
}

func (r *memoryDeliveryRepo) Update(_ context.Context, d *delivery.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[d.ID()]; !ok {
		return domain.NewNotFoundError("Delivery", d.ID().String())
	}
	r.items[d.ID()] = d
	return nil
}

type memorySnapshotRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*delivery.RouteSnapshot
}

func newMemorySnapshotRepo() *memorySnapshotRepo {
	return &memorySnapshotRepo{items: make(map[uuid.UUID]*delivery.RouteSnapshot)}
}

func (r *memorySnapshotRepo) Upsert(_ context.Context, s *delivery.RouteSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.DeliveryID] = s
	return nil
}

func (r *memorySnapshotRepo) FindByDeliveryID(_ context.Context, id uuid.UUID) (*delivery.RouteSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return nil, domain.NewNotFoundError("Route", id.String())
	}
	return s, nil
}

func (r *memorySnapshotRepo) DeleteByDeliveryID(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *memorySnapshotRepo) get(id uuid.UUID) *delivery.RouteSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.CloudEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, ce *events.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ce)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) count(eventType string) int {
	n := 0
	for _, t := range p.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	frames []realtime.Frame
}

func (b *recordingBroadcaster) Broadcast(_ uuid.UUID, frame realtime.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
}

func (b *recordingBroadcaster) count(frameType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.frames {
		if f.Type == frameType {
			n++
		}
	}
	return n
}

type recordingTracker struct {
	mu      sync.Mutex
	changed []delivery.DeliveryStatus
	stopped []uuid.UUID
}

func (t *recordingTracker) DestinationChanged(_ context.Context, d *delivery.Delivery) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changed = append(t.changed, d.Status())
	return nil
}

func (t *recordingTracker) StopTracking(_ context.Context, id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = append(t.stopped, id)
}
