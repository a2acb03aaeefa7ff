// Package response writes the service's JSON envelopes.
package response

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bloodlink/service-delivery/internal/domain"
	"github.com/bloodlink/service-delivery/internal/domain/route"
)

// ErrorBody is the error part of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope wraps every response body.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// Success writes 200 with data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes 201 with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Page is the data of a paginated listing.
type Page struct {
	Items      any   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// Paginated writes 200 with one page of items.
func Paginated(c *gin.Context, items any, total int64, page, limit int) {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	Success(c, Page{Items: items, Total: total, Page: page, Limit: limit, TotalPages: pages})
}

// BadRequest writes 400 with message.
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized writes 401 with message.
func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden writes 403 with message.
func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, "FORBIDDEN", message)
}

// Fail aborts the request with an error envelope.
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

// Error maps err onto a status code and writes it. Unclassified errors become a generic 500.
func Error(c *gin.Context, err error) {
	status, code := Classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	_ = c.Error(err)
	Fail(c, status, code, message)
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case domain.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case domain.KindConflict:
		return http.StatusConflict, "CONFLICT"
	case domain.KindInvalidState:
		return http.StatusUnprocessableEntity, "INVALID_STATE"
	case domain.KindForbidden:
		return http.StatusForbidden, "FORBIDDEN"
	}

	var (
		validationErr  *route.ValidationError
		unavailableErr *route.RouteUnavailableError
		metricErr      *route.InvalidMetricError
		fetchErr       *route.RouteFetchError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.As(err, &unavailableErr):
		return http.StatusUnprocessableEntity, "ROUTE_UNAVAILABLE"
	case errors.As(err, &metricErr):
		return http.StatusBadGateway, "ROUTE_INVALID"
	case errors.As(err, &fetchErr):
		if isTimeout(fetchErr) {
			return http.StatusGatewayTimeout, "ROUTE_TIMEOUT"
		}
		return http.StatusBadGateway, "ROUTE_FETCH_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
