// Package realtime streams route frames to websocket subscribers of a delivery.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/domain/route"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Frame types.
const (
	FramePath       = "path"
	FrameRoute      = "route"
	FrameRouteError = "route_error"
)

// Frame is one message sent to subscribers.
type Frame struct {
	Type        string            `json:"type"`
	DeliveryID  uuid.UUID         `json:"delivery_id"`
	Path        *geojson.Geometry `json:"path,omitempty"`
	DistanceKm  *float64          `json:"distance_km,omitempty"`
	DurationMin *float64          `json:"duration_min,omitempty"`
	ETA         *time.Time        `json:"eta,omitempty"`
	Error       string            `json:"error,omitempty"`
	SentAt      time.Time         `json:"sent_at"`
}

// PathFrame renders a path as a GeoJSON LineString frame.
func PathFrame(deliveryID uuid.UUID, path []route.Waypoint) Frame {
	return Frame{
		Type:       FramePath,
		DeliveryID: deliveryID,
		Path:       geojson.NewGeometry(route.LineString(path)),
		SentAt:     time.Now().UTC(),
	}
}

// RouteFrame carries the metrics of a published route.
func RouteFrame(deliveryID uuid.UUID, result route.RouteResult, eta time.Time) Frame {
	distance, duration := result.DistanceKm, result.DurationMin
	return Frame{
		Type:        FrameRoute,
		DeliveryID:  deliveryID,
		DistanceKm:  &distance,
		DurationMin: &duration,
		ETA:         &eta,
		SentAt:      time.Now().UTC(),
	}
}

// ErrorFrame reports a failed route refresh.
func ErrorFrame(deliveryID uuid.UUID, err error) Frame {
	return Frame{
		Type:       FrameRouteError,
		DeliveryID: deliveryID,
		Error:      err.Error(),
		SentAt:     time.Now().UTC(),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans frames out to the subscribers of each delivery.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*client]struct{}
	closed bool
	logger *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[*client]struct{}),
		logger: logger,
	}
}

// ServeConn registers conn as a subscriber of the delivery and blocks until the peer goes
// away or the hub is closed. initial, when set, is sent before any broadcast.
func (h *Hub) ServeConn(deliveryID uuid.UUID, conn *websocket.Conn, initial *Frame) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			c.send <- data
		}
	}
	if !h.register(deliveryID, c) {
		_ = conn.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()
	h.readPump(c)

	h.unregister(deliveryID, c)
	<-done
}

func (h *Hub) register(deliveryID uuid.UUID, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.subs[deliveryID]
	if !ok {
		set = make(map[*client]struct{})
		h.subs[deliveryID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug("route subscriber joined",
		zap.String("delivery_id", deliveryID.String()),
		zap.Int("subscribers", len(set)),
	)
	return true
}

func (h *Hub) unregister(deliveryID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[deliveryID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, deliveryID)
		}
	}
	c.close()
}

// Broadcast sends the frame to every subscriber of the delivery. Subscribers that cannot
// keep up are disconnected.
func (h *Hub) Broadcast(deliveryID uuid.UUID, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to encode frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[deliveryID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow route subscriber", zap.String("delivery_id", deliveryID.String()))
			_ = c.conn.Close()
		}
	}
}

// Subscribers returns the number of live subscribers of the delivery.
func (h *Hub) Subscribers(deliveryID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[deliveryID])
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.subs {
		for c := range set {
			_ = c.conn.Close()
		}
	}
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("route subscriber read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcaster delivers frames to the subscribers of a delivery. *Hub implements it.
type Broadcaster interface {
	Broadcast(deliveryID uuid.UUID, frame Frame)
}

// DeliveryRenderer paints a delivery's accepted path onto its subscribers.
type DeliveryRenderer struct {
	out        Broadcaster
	deliveryID uuid.UUID
}

// NewDeliveryRenderer creates the rendering surface for one delivery.
func NewDeliveryRenderer(out Broadcaster, deliveryID uuid.UUID) *DeliveryRenderer {
	return &DeliveryRenderer{out: out, deliveryID: deliveryID}
}

// RenderPath broadcasts the path as a GeoJSON LineString frame.
func (r *DeliveryRenderer) RenderPath(path []route.Waypoint) {
	r.out.Broadcast(r.deliveryID, PathFrame(r.deliveryID, path))
}
