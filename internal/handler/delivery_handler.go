package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bloodlink/service-delivery/internal/application"
	"github.com/bloodlink/service-delivery/internal/auth"
	"github.com/bloodlink/service-delivery/internal/domain/delivery"
	"github.com/bloodlink/service-delivery/internal/domain/route"
	"github.com/bloodlink/service-delivery/internal/middleware"
	"github.com/bloodlink/service-delivery/internal/response"
)

// DeliveryHandler handles HTTP requests for delivery operations.
type DeliveryHandler struct {
	service  *application.DeliveryService
	tracking *application.TrackingService
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(service *application.DeliveryService, tracking *application.TrackingService) *DeliveryHandler {
	return &DeliveryHandler{service: service, tracking: tracking}
}

// CourierLocationRequest is a courier position report.
type CourierLocationRequest struct {
	Latitude  *float64 `json:"lat" binding:"required"`
	Longitude *float64 `json:"lng" binding:"required"`
}

func (r CourierLocationRequest) waypoint() route.Waypoint {
	return route.Waypoint{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

// RegisterRoutes registers all delivery routes on the given router group.
func (h *DeliveryHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	courierOnly := middleware.RequireRole(auth.RoleCourier)

	deliveries := r.Group("/api/v1/deliveries")
	deliveries.Use(authMW)
	{
		deliveries.POST("", middleware.RequireRole(auth.RoleHospital, auth.RoleDispatcher), h.CreateDelivery)
		deliveries.GET("", h.ListDeliveries)
		deliveries.GET("/number/:number", h.GetDeliveryByNumber)
		deliveries.GET("/:id", h.GetDelivery)
		deliveries.POST("/:id/dispatch", middleware.RequireRole(auth.RoleDispatcher, auth.RoleAdmin), h.DispatchDelivery)
		deliveries.POST("/:id/pickup", courierOnly, h.PickUpDelivery)
		deliveries.POST("/:id/deliver", courierOnly, h.ConfirmDelivery)
		deliveries.POST("/:id/cancel", h.CancelDelivery)
		deliveries.PUT("/:id/location", courierOnly, h.UpdateDeliveryLocation)
	}

	couriers := r.Group("/api/v1/couriers")
	couriers.Use(authMW, courierOnly)
	{
		couriers.PUT("/me/location", h.UpdateCourierLocation)
	}
}

// CreateDelivery handles POST /api/v1/deliveries.
func (h *DeliveryHandler) CreateDelivery(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateDelivery(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListDeliveries handles GET /api/v1/deliveries. Hospitals see their own requests, couriers
// their assignments, dispatchers and admins everything.
func (h *DeliveryHandler) ListDeliveries(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}
	role, _ := middleware.GetUserRole(c)

	var filter delivery.ListFilter
	if raw := c.Query("status"); raw != "" {
		status, err := delivery.ParseDeliveryStatus(raw)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		filter.Status = status
	}
	switch role {
	case auth.RoleHospital:
		filter.RequesterID = &userID
	case auth.RoleCourier:
		filter.CourierID = &userID
	}

	page, limit := parsePagination(c)
	result, err := h.service.ListDeliveries(c.Request.Context(), filter, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetDelivery handles GET /api/v1/deliveries/:id.
func (h *DeliveryHandler) GetDelivery(c *gin.Context) {
	deliveryID, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.service.GetDelivery(c.Request.Context(), deliveryID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetDeliveryByNumber handles GET /api/v1/deliveries/number/:number.
func (h *DeliveryHandler) GetDeliveryByNumber(c *gin.Context) {
	result, err := h.service.GetDeliveryByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// DispatchDelivery handles POST /api/v1/deliveries/:id/dispatch.
func (h *DeliveryHandler) DispatchDelivery(c *gin.Context) {
	deliveryID, ok := parseID(c)
	if !ok {
		return
	}

	var body struct {
		CourierID uuid.UUID `json:"courier_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.DispatchDelivery(c.Request.Context(), deliveryID, body.CourierID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// PickUpDelivery handles POST /api/v1/deliveries/:id/pickup.
func (h *DeliveryHandler) PickUpDelivery(c *gin.Context) {
	h.courierTransition(c, h.service.PickUpDelivery)
}

// ConfirmDelivery handles POST /api/v1/deliveries/:id/deliver.
func (h *DeliveryHandler) ConfirmDelivery(c *gin.Context) {
	h.courierTransition(c, h.service.ConfirmDelivery)
}

func (h *DeliveryHandler) courierTransition(c *gin.Context, fn func(ctx context.Context, deliveryID, courierID uuid.UUID) (*application.DeliveryDTO, error)) {
	deliveryID, ok := parseID(c)
	if !ok {
		return
	}
	courierID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	result, err := fn(c.Request.Context(), deliveryID, courierID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CancelDelivery handles POST /api/v1/deliveries/:id/cancel.
func (h *DeliveryHandler) CancelDelivery(c *gin.Context) {
	deliveryID, ok := parseID(c)
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	result, err := h.service.CancelDelivery(c.Request.Context(), deliveryID, userID, body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateDeliveryLocation handles PUT /api/v1/deliveries/:id/location.
func (h *DeliveryHandler) UpdateDeliveryLocation(c *gin.Context) {
	deliveryID, ok := parseID(c)
	if !ok {
		return
	}
	h.updateLocation(c, &deliveryID)
}

// UpdateCourierLocation handles PUT /api/v1/couriers/me/location. The position is applied
// to every active delivery of the courier.
func (h *DeliveryHandler) UpdateCourierLocation(c *gin.Context) {
	h.updateLocation(c, nil)
}

func (h *DeliveryHandler) updateLocation(c *gin.Context, deliveryID *uuid.UUID) {
	courierID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req CourierLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.tracking.UpdateCourierLocation(c.Request.Context(), courierID, deliveryID, req.waypoint()); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusAccepted, response.Envelope{Success: true})
}
