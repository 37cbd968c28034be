package handler

import (
	"net/http"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RegisterRequest represents the sign-up payload
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone"`
	Role      string `json:"role" validate:"omitempty,oneof=landlord manager tenant"`
}

// LoginRequest represents the login payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileRequest edits the caller's own account
type ProfileRequest struct {
	FirstName       *string `json:"first_name"`
	LastName        *string `json:"last_name"`
	Phone           *string `json:"phone"`
	Password        *string `json:"password" validate:"omitempty,min=8"`
	CurrentPassword string  `json:"current_password"`
}

// Register handles self-service sign-up
func (h *Handler) Register(c echo.Context) error {
	log := logger.FromContext(c)
	log.Info("Processing registration request")

	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "register user")
	}

	user, err := h.svc.Users.Register(c.Request().Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      model.Role(req.Role),
	})
	if err != nil {
		return respond(c, log, err, "register user")
	}

	log.Info("User registered successfully",
		zap.Uint("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return c.JSON(http.StatusCreated, user)
}

// Login handles user login and JWT generation
func (h *Handler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	log.Info("Processing login request")

	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "log in")
	}

	result, err := h.svc.Users.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return respond(c, log, err, "log in")
	}

	log.Info("User logged in successfully",
		zap.Uint("user_id", result.User.ID),
		zap.String("role", string(result.User.Role)))
	return c.JSON(http.StatusOK, result)
}

// GetProfile returns the caller's account
func (h *Handler) GetProfile(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "load profile")
	}

	user, err := h.svc.Users.Profile(c.Request().Context(), a)
	if err != nil {
		return respond(c, log, err, "load profile")
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile edits the caller's account
func (h *Handler) UpdateProfile(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "update profile")
	}

	var req ProfileRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "update profile")
	}

	user, err := h.svc.Users.UpdateProfile(c.Request().Context(), a, service.ProfileInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
		Password:        req.Password,
		CurrentPassword: req.CurrentPassword,
	})
	if err != nil {
		return respond(c, log, err, "update profile")
	}

	log.Info("Profile updated", zap.Bool("password_changed", req.Password != nil))
	return c.JSON(http.StatusOK, user)
}

// Permissions lists what the caller's role may do
func (h *Handler) Permissions(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "load permissions")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"role":        a.Role,
		"permissions": h.svc.Users.Permissions(a),
	})
}
