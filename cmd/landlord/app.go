package main

import (
	"fmt"

	"github.com/Go-ku/landlord-app-sub001/internal/mobilemoney"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/config"
	"github.com/Go-ku/landlord-app-sub001/pkg/database"
	"github.com/Go-ku/landlord-app-sub001/pkg/jwtutil"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds what every subcommand needs.
type app struct {
	cfg         *config.Config
	log         *zap.Logger
	db          *gorm.DB
	policy      *policy.Engine
	jwt         *jwtutil.JWTUtil
	mobileMoney *mobilemoney.Client
	svc         *service.Services
}

// bootstrap loads configuration, connects to the database and wires the
// services.
func bootstrap() (*app, error) {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if err := logger.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.Info("Configuration loaded", cfg.LogConfig()...)

	prometheus.InitMetrics(cfg.Metrics.Prefix)

	db, err := database.InitDB(&cfg.DB, log)
	if err != nil {
		return nil, err
	}

	engine := policy.Default()
	if cfg.Policy.File != "" {
		if engine, err = policy.LoadFile(cfg.Policy.File); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("load policy: %w", err)
		}
		log.Info("Policy loaded", zap.String("path", cfg.Policy.File))
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		policy: engine,
		jwt: jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
			SigningKey:      cfg.JWT.SigningKey,
			ExpirationHours: cfg.JWT.ExpirationHours,
		}),
	}

	opts := service.Options{
		Currency:    cfg.Payment.Currency,
		CountryCode: cfg.Contact.CountryCode,
		PortalURL:   cfg.Contact.PortalURL,
		JWT:         a.jwt,
	}
	if cfg.Payment.MobileMoneyEnabled() {
		a.mobileMoney = mobilemoney.NewClient(&cfg.Payment, log)
		opts.MobileMoney = a.mobileMoney
		log.Info("Mobile money enabled", zap.String("provider", a.mobileMoney.BaseURL))
	}
	a.svc = service.New(db, engine, opts)
	return a, nil
}

func (a *app) close() {
	if err := database.Close(a.db); err != nil {
		a.log.Warn("Failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}
