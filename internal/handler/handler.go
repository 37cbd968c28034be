// Package handler exposes the portal's services over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/middleware"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DateLayout is the wire format of date-only fields.
const DateLayout = "2006-01-02"

// Handler serves the HTTP API.
type Handler struct {
	svc            *service.Services
	db             *gorm.DB
	callbackSecret string
}

// New creates the API handlers. callbackSecret authenticates mobile-money
// callbacks; when empty every callback is refused.
func New(svc *service.Services, db *gorm.DB, callbackSecret string) *Handler {
	return &Handler{svc: svc, db: db, callbackSecret: callbackSecret}
}

var errUnauthenticated = errors.New("unauthenticated")

// actor returns the authenticated caller.
func actor(c echo.Context) (policy.Actor, error) {
	a, ok := middleware.ActorFromContext(c)
	if !ok {
		return policy.Actor{}, errUnauthenticated
	}
	return a, nil
}

func parseID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid " + name)
	}
	return uint(id), nil
}

func queryID(c echo.Context, name string) (uint, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequest("invalid " + name)
	}
	return uint(id), nil
}

func queryBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, badRequest("invalid " + name)
	}
	return &v, nil
}

func queryDate(c echo.Context, name string) (time.Time, error) {
	return parseDate(name, c.QueryParam(name))
}

// parseDate reads a YYYY-MM-DD value; empty yields the zero time.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, badRequest(field + " must be a date formatted as " + DateLayout)
	}
	return t, nil
}

func parseDatePtr(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := parseDate(field, *raw)
	if err != nil {
		return nil, err
	}
	if t.IsZero() {
		return nil, badRequest(field + " cannot be empty")
	}
	return &t, nil
}

// bind decodes and validates the request body.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return badRequest("invalid request data")
	}
	if err := c.Validate(req); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

// requestError is a client error raised by the HTTP layer itself.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

// respond maps a handler or service error onto a JSON error response.
// Unexpected errors are logged and hidden from the caller.
func respond(c echo.Context, log *zap.Logger, err error, action string) error {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		log.Warn("Rejected request", zap.String("action", action), zap.String("reason", reqErr.msg))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": reqErr.msg})
	case errors.Is(err, errUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error("Failed to "+action, zap.Error(err))
		return c.JSON(status, echo.Map{"error": "Failed to " + action})
	}
	log.Warn("Request refused",
		zap.String("action", action),
		zap.Int("status", status),
		zap.Error(err))
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInactive):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
