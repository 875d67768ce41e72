// Package app wires repositories, services, handlers and the router.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/care-access/internal/config"
	auditHandler "github.com/jwalitptl/care-access/internal/handler/audit"
	consentHandler "github.com/jwalitptl/care-access/internal/handler/consent"
	"github.com/jwalitptl/care-access/internal/handler/doctor"
	"github.com/jwalitptl/care-access/internal/handler/health"
	"github.com/jwalitptl/care-access/internal/handler/pharmacy"
	"github.com/jwalitptl/care-access/internal/handler/prometheus"
	shareTokenHandler "github.com/jwalitptl/care-access/internal/handler/sharetoken"
	"github.com/jwalitptl/care-access/internal/middleware"
	"github.com/jwalitptl/care-access/internal/repository"
	"github.com/jwalitptl/care-access/internal/repository/memory"
	"github.com/jwalitptl/care-access/internal/repository/postgres"
	"github.com/jwalitptl/care-access/internal/router"
	auditService "github.com/jwalitptl/care-access/internal/service/audit"
	consentService "github.com/jwalitptl/care-access/internal/service/consent"
	dispenseService "github.com/jwalitptl/care-access/internal/service/dispense"
	eventService "github.com/jwalitptl/care-access/internal/service/event"
	prescriptionService "github.com/jwalitptl/care-access/internal/service/prescription"
	recordService "github.com/jwalitptl/care-access/internal/service/record"
	shareTokenService "github.com/jwalitptl/care-access/internal/service/sharetoken"
	"github.com/jwalitptl/care-access/pkg/auth"
	"github.com/jwalitptl/care-access/pkg/clock"
	"github.com/jwalitptl/care-access/pkg/metrics"
	"github.com/jwalitptl/care-access/pkg/security"
)

// Stores is the persistence the API runs on.
type Stores struct {
	Consents      repository.ConsentRepository
	ShareTokens   repository.ShareTokenRepository
	Sessions      repository.VerificationSessionRepository
	Prescriptions repository.PrescriptionRepository
	Records       repository.MedicalRecordRepository
	Audit         repository.AuditRepository
	Outbox        repository.OutboxRepository
	Health        health.Pinger
}

func PostgresStores(db *sqlx.DB) Stores {
	repos := postgres.NewRepositories(db)
	return Stores{
		Consents:      repos.Consents,
		ShareTokens:   repos.ShareTokens,
		Sessions:      repos.Sessions,
		Prescriptions: repos.Prescriptions,
		Records:       repos.Records,
		Audit:         repos.Audit,
		Outbox:        repos.Outbox,
		Health:        db,
	}
}

func MemoryStores(repos *memory.Repositories) Stores {
	return Stores{
		Consents:      repos.Consents,
		ShareTokens:   repos.ShareTokens,
		Sessions:      repos.Sessions,
		Prescriptions: repos.Prescriptions,
		Records:       repos.Records,
		Audit:         repos.Audit,
		Outbox:        repos.Outbox,
		Health: health.PingFunc(func(context.Context) error {
			return repos.Store.Ping()
		}),
	}
}

type App struct {
	Router  *router.Router
	Metrics *metrics.Metrics
	JWT     *auth.JWTService

	// Exposed for collaborators that seed data, such as tests.
	Consents      *consentService.Service
	Prescriptions *prescriptionService.Service
}

// New builds the HTTP application. The router is set up and ready to serve.
func New(cfg *config.Config, stores Stores, clk clock.Clock) (*App, error) {
	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create jwt service: %w", err)
	}
	hasher, err := security.NewShareCodeHasher(cfg.ShareToken.HashKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create share code hasher: %w", err)
	}

	prom := prometheus.New(cfg.Server.MetricsPrefix)
	m := metrics.NewMetrics(cfg.Server.MetricsPrefix, "core", prom.Registry())

	// Services
	auditSvc := auditService.NewService(stores.Audit, clk, m)
	events := eventService.NewEventService(stores.Outbox, clk, m)
	consentSvc := consentService.NewService(stores.Consents, auditSvc, clk, m)
	shareTokenSvc := shareTokenService.NewService(
		stores.ShareTokens,
		stores.Prescriptions,
		security.NewShareCodeGenerator(nil),
		hasher,
		auditSvc,
		events,
		clk,
		m,
		shareTokenService.Config{
			DefaultExpiryMinutes: cfg.ShareToken.DefaultExpiryMinutes,
			MinExpiryMinutes:     cfg.ShareToken.MinExpiryMinutes,
			MaxExpiryMinutes:     cfg.ShareToken.MaxExpiryMinutes,
			SessionLifetime:      cfg.ShareToken.SessionLifetime,
		},
	)
	dispenseSvc := dispenseService.NewService(stores.Sessions, stores.Prescriptions, auditSvc, events, clk, m)
	prescriptionSvc := prescriptionService.NewService(stores.Prescriptions, consentSvc, auditSvc, clk)
	recordSvc := recordService.NewService(stores.Records, consentSvc, auditSvc, clk)

	// Handlers
	handlers := router.Handlers{
		Health:     health.NewHandler(stores.Health),
		Metrics:    prom,
		Audit:      auditHandler.NewHandler(auditSvc),
		Consent:    consentHandler.NewHandler(consentSvc),
		ShareToken: shareTokenHandler.NewHandler(shareTokenSvc),
		Pharmacy:   pharmacy.NewHandler(shareTokenSvc, dispenseSvc),
		Doctor:     doctor.NewHandler(consentSvc, prescriptionSvc, recordSvc),
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.Server.AllowedOrigins

	r := router.NewRouter(middleware.NewAuthMiddleware(jwtService), handlers, router.RouterConfig{
		RateLimit:       rate.Limit(cfg.RateLimit.RPS),
		RateBurst:       cfg.RateLimit.Burst,
		VerifyPerMinute: cfg.RateLimit.VerifyPerMinute,
		CORSConfig:      cors,
		RequestTimeout:  cfg.Server.RequestTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	})
	r.Setup()

	return &App{
		Router:        r,
		Metrics:       m,
		JWT:           jwtService,
		Consents:      consentSvc,
		Prescriptions: prescriptionSvc,
	}, nil
}
