// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

// Handler serves /health and /health/ready.
type Handler struct {
	db      *gorm.DB
	service string
	checks  map[string]CheckFunc
}

// NewHandler creates a Handler. The database is always checked for readiness.
func NewHandler(db *gorm.DB, service string) *Handler {
	return &Handler{db: db, service: service, checks: make(map[string]CheckFunc)}
}

// AddCheck registers an extra readiness check.
func (h *Handler) AddCheck(name string, check CheckFunc) *Handler {
	h.checks[name] = check
	return h
}

// RegisterRoutes registers the probe routes on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Live)
	r.GET("/health/ready", h.Ready)
}

// Live handles GET /health.
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": h.service})
}

// Ready handles GET /health/ready.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks)+1)
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			results[name] = err.Error()
			healthy = false
			return
		}
		results[name] = "ok"
	}

	if h.db != nil {
		record("database", h.pingDB(ctx))
	}
	for name, check := range h.checks {
		record(name, check(ctx))
	}

	status, label := http.StatusOK, "ready"
	if !healthy {
		status, label = http.StatusServiceUnavailable, "not_ready"
	}
	c.JSON(status, gin.H{"status": label, "service": h.service, "checks": results})
}

func (h *Handler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
