package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/bloodlink/service-delivery/internal/application"
	"github.com/bloodlink/service-delivery/internal/auth"
	"github.com/bloodlink/service-delivery/internal/domain"
	"github.com/bloodlink/service-delivery/internal/domain/route"
	"github.com/bloodlink/service-delivery/internal/middleware"
	"github.com/bloodlink/service-delivery/internal/realtime"
	"github.com/bloodlink/service-delivery/internal/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are enforced by the CORS middleware and the access token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RouteHandler serves computed routes and the live route stream.
type RouteHandler struct {
	deliveries *application.DeliveryService
	tracking   *application.TrackingService
	hub        *realtime.Hub
	logger     *zap.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(
	deliveries *application.DeliveryService,
	tracking *application.TrackingService,
	hub *realtime.Hub,
	logger *zap.Logger,
) *RouteHandler {
	return &RouteHandler{deliveries: deliveries, tracking: tracking, hub: hub, logger: logger}
}

// PreviewRouteRequest asks for a one-off route between two points.
type PreviewRouteRequest struct {
	Origin      *route.Waypoint `json:"origin" binding:"required"`
	Destination *route.Waypoint `json:"destination" binding:"required"`
}

// RegisterRoutes registers route endpoints on the given router group.
func (h *RouteHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	routes := r.Group("/api/v1/routes")
	routes.Use(authMW)
	{
		routes.POST("/preview", h.PreviewRoute)
	}

	deliveries := r.Group("/api/v1/deliveries")
	deliveries.Use(authMW)
	{
		deliveries.GET("/:id/route", h.GetRoute)
		deliveries.GET("/:id/route/geojson", h.GetRouteGeoJSON)
		deliveries.POST("/:id/route/retry", middleware.RequireRole(auth.RoleCourier, auth.RoleDispatcher, auth.RoleAdmin), h.RetryRoute)
		deliveries.GET("/:id/route/live", h.LiveRoute)
	}
}

// PreviewRoute handles POST /api/v1/routes/preview.
func (h *RouteHandler) PreviewRoute(c *gin.Context) {
	var req PreviewRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.tracking.PreviewRoute(c.Request.Context(), req.Origin, req.Destination)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetRoute handles GET /api/v1/deliveries/:id/route.
func (h *RouteHandler) GetRoute(c *gin.Context) {
	deliveryID, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.tracking.CurrentRoute(c.Request.Context(), deliveryID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetRouteGeoJSON handles GET /api/v1/deliveries/:id/route/geojson and returns a bare
// GeoJSON feature for map clients.
func (h *RouteHandler) GetRouteGeoJSON(c *gin.Context) {
	deliveryID, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.tracking.CurrentRoute(c.Request.Context(), deliveryID)
	if err != nil {
		response.Error(c, err)
		return
	}

	feature := route.Feature(result.Result())
	feature.ID = deliveryID.String()
	feature.Properties["eta"] = result.ETA
	feature.Properties["computed_at"] = result.ComputedAt

	data, err := feature.MarshalJSON()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// RetryRoute handles POST /api/v1/deliveries/:id/route/retry.
func (h *RouteHandler) RetryRoute(c *gin.Context) {
	deliveryID, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.tracking.Retry(c.Request.Context(), deliveryID); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusAccepted, response.Envelope{Success: true, Data: h.tracking.TrackingStatus(deliveryID)})
}

// LiveRoute handles GET /api/v1/deliveries/:id/route/live by upgrading to a websocket that
// receives path, route and route_error frames for the delivery.
func (h *RouteHandler) LiveRoute(c *gin.Context) {
	deliveryID, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.deliveries.GetDelivery(c.Request.Context(), deliveryID); err != nil {
		response.Error(c, err)
		return
	}

	var initial *realtime.Frame
	current, err := h.tracking.CurrentRoute(c.Request.Context(), deliveryID)
	switch {
	case err == nil:
		frame := realtime.RouteFrame(deliveryID, current.Result(), current.ETA)
		frame.Path = geojson.NewGeometry(route.LineString(current.Path))
		initial = &frame
	case !domain.IsNotFound(err):
		response.Error(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("delivery_id", deliveryID.String()),
			zap.Error(err),
		)
		return
	}

	h.logger.Debug("live route subscriber connected",
		zap.String("delivery_id", deliveryID.String()),
		zap.String("remote_addr", c.Request.RemoteAddr),
	)
	h.hub.ServeConn(deliveryID, conn, initial)
}
