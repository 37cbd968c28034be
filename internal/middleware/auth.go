package middleware

import (
	"net/http"
	"strings"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/pkg/jwtutil"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Context keys set by the auth middleware.
const (
	UserIDKey   = "user_id"
	EmailKey    = "email"
	UserRoleKey = "user_role"
)

// Auth validates the bearer JWT and stores the caller on the context.
func Auth(jwt *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwt.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			role := model.Role(claims.Role)
			if !role.Valid() {
				log.Warn("JWT token carries an unknown role", zap.String("role", claims.Role))
				prometheus.RecordAuthError("invalid_role")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(EmailKey, claims.Email)
			c.Set(UserRoleKey, role)

			authed := log.With(zap.Uint("user_id", claims.UserID), zap.String("role", claims.Role))
			c.Set("logger", authed)
			c.SetRequest(c.Request().WithContext(logger.WithContext(c.Request().Context(), authed)))

			return next(c)
		}
	}
}

// ActorFromContext returns the caller stored by Auth.
func ActorFromContext(c echo.Context) (policy.Actor, bool) {
	userID, ok := c.Get(UserIDKey).(uint)
	if !ok {
		return policy.Actor{}, false
	}
	role, ok := c.Get(UserRoleKey).(model.Role)
	if !ok {
		return policy.Actor{}, false
	}
	email, _ := c.Get(EmailKey).(string)
	return policy.Actor{UserID: userID, Role: role, Email: email}, true
}
