// Package server assembles the HTTP API.
package server

import (
	"github.com/Go-ku/landlord-app-sub001/internal/handler"
	"github.com/Go-ku/landlord-app-sub001/internal/middleware"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/jwtutil"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/Go-ku/landlord-app-sub001/pkg/validator"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the API is built from.
type Deps struct {
	DB       *gorm.DB
	Services *service.Services
	JWT      *jwtutil.JWTUtil
	Logger   *zap.Logger
	// AllowedOrigins feeds the CORS middleware; empty allows any origin.
	AllowedOrigins []string
	// CallbackSecret authenticates mobile-money provider callbacks.
	CallbackSecret string
}

// New builds the Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: d.AllowedOrigins,
	}))
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(middleware.MetricsMiddleware)

	h := handler.New(d.Services, d.DB, d.CallbackSecret)

	// Public routes - no authentication required
	e.GET("/health", h.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	auth := e.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)

	// Provider callbacks carry a shared secret instead of a user token
	e.POST("/api/payments/callback", h.MobileMoneyCallback)

	// API routes - all require authentication
	api := e.Group("/api", middleware.Auth(d.JWT))

	users := api.Group("/users")
	users.GET("/profile", h.GetProfile)
	users.PATCH("/profile", h.UpdateProfile)
	users.GET("/permissions", h.Permissions)

	tenants := api.Group("/tenants")
	tenants.GET("", h.ListTenants)
	tenants.POST("", h.CreateTenant)
	tenants.GET("/:id", h.GetTenant)
	tenants.PUT("/:id", h.UpdateTenant)
	tenants.DELETE("/:id", h.DeleteTenant)

	properties := api.Group("/properties")
	properties.GET("", h.ListProperties)
	properties.POST("", h.CreateProperty)
	properties.GET("/:id", h.GetProperty)
	properties.PUT("/:id", h.UpdateProperty)
	properties.DELETE("/:id", h.DeleteProperty)

	leases := api.Group("/leases")
	leases.GET("", h.ListLeases)
	leases.POST("", h.CreateLease)
	leases.GET("/:id", h.GetLease)
	leases.PUT("/:id", h.UpdateLease)
	leases.DELETE("/:id", h.DeleteLease)
	leases.POST("/:id/activate", h.ActivateLease)
	leases.POST("/:id/terminate", h.TerminateLease)
	leases.GET("/:id/reminder", h.LeaseReminder)

	invoices := api.Group("/invoices")
	invoices.GET("", h.ListInvoices)
	invoices.POST("", h.CreateInvoice)
	invoices.POST("/generate", h.GenerateInvoice)
	invoices.GET("/:id", h.GetInvoice)
	invoices.PUT("/:id", h.UpdateInvoice)
	invoices.DELETE("/:id", h.DeleteInvoice)
	invoices.POST("/:id/send", h.SendInvoice)
	invoices.POST("/:id/cancel", h.CancelInvoice)
	invoices.GET("/:id/share", h.ShareInvoice)

	payments := api.Group("/payments")
	payments.GET("", h.ListPayments)
	payments.POST("", h.RecordPayment)
	payments.POST("/mobile-money", h.InitiateMobileMoney)
	payments.GET("/:id", h.GetPayment)
	payments.POST("/:id/verify", h.VerifyPayment)
	payments.POST("/:id/reject", h.RejectPayment)

	maintenance := api.Group("/maintenance")
	maintenance.GET("", h.ListMaintenance)
	maintenance.POST("", h.CreateMaintenance)
	maintenance.GET("/:id", h.GetMaintenance)
	maintenance.PUT("/:id", h.UpdateMaintenance)
	maintenance.DELETE("/:id", h.DeleteMaintenance)
	maintenance.POST("/:id/status", h.UpdateMaintenanceStatus)

	reports := api.Group("/reports")
	reports.GET("/:name", h.GetReport)
	reports.GET("/:name/export", h.ExportReport)

	api.GET("/dashboard", h.Dashboard)

	return e
}
