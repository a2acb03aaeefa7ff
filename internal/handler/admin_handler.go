package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bloodlink/service-delivery/internal/application"
	"github.com/bloodlink/service-delivery/internal/auth"
	"github.com/bloodlink/service-delivery/internal/domain/delivery"
	"github.com/bloodlink/service-delivery/internal/middleware"
	"github.com/bloodlink/service-delivery/internal/response"
)

// AdminHandler handles admin HTTP requests for delivery management.
type AdminHandler struct {
	service  *application.DeliveryService
	tracking *application.TrackingService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service *application.DeliveryService, tracking *application.TrackingService) *AdminHandler {
	return &AdminHandler{service: service, tracking: tracking}
}

// RegisterRoutes registers admin delivery routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/api/v1/admin")
	admin.Use(authMW, adminRole)
	{
		admin.GET("/deliveries", h.ListDeliveries)
		admin.GET("/stats/deliveries", h.DeliveryStats)
	}
}

// ListDeliveries handles GET /api/v1/admin/deliveries.
func (h *AdminHandler) ListDeliveries(c *gin.Context) {
	page, limit := parsePagination(c)

	result, err := h.service.ListDeliveries(c.Request.Context(), delivery.ListFilter{}, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// DeliveryStats handles GET /api/v1/admin/stats/deliveries.
func (h *AdminHandler) DeliveryStats(c *gin.Context) {
	stats, err := h.service.GetDeliveryStats(c.Request.Context(), h.tracking.Tracked())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}
