package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/care-access/internal/handler/audit"
	"github.com/jwalitptl/care-access/internal/handler/consent"
	"github.com/jwalitptl/care-access/internal/handler/doctor"
	"github.com/jwalitptl/care-access/internal/handler/health"
	"github.com/jwalitptl/care-access/internal/handler/pharmacy"
	"github.com/jwalitptl/care-access/internal/handler/prometheus"
	"github.com/jwalitptl/care-access/internal/handler/sharetoken"
	"github.com/jwalitptl/care-access/internal/middleware"
	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/pkg/validator"
)

// Handlers groups the HTTP handlers mounted under /api/v1.
type Handlers struct {
	Health     *health.Handler
	Metrics    *prometheus.Handler
	Audit      *audit.Handler
	Consent    *consent.Handler
	ShareToken *sharetoken.Handler
	Pharmacy   *pharmacy.Handler
	Doctor     *doctor.Handler
}

type RouterConfig struct {
	RateLimit       rate.Limit
	RateBurst       int
	VerifyPerMinute int
	CORSConfig      middleware.CORSConfig
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	verify   *middleware.ActorRateLimiter
}

func NewRouter(auth *middleware.AuthMiddleware, handlers Handlers, config RouterConfig) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		verify:   middleware.NewActorRateLimiter(config.VerifyPerMinute),
	}

	sizeLimit := middleware.DefaultSizeLimitConfig()
	if config.MaxBodyBytes > 0 {
		sizeLimit.MaxBodySize = config.MaxBodyBytes
	}
	timeout := middleware.DefaultTimeoutConfig()
	if config.RequestTimeout > 0 {
		timeout.Duration = config.RequestTimeout
	}

	validation := middleware.DefaultValidationConfig()
	validation.CustomValidators = validator.Rules()
	validation.CustomErrorMessages["scope"] = "must be a list of resource:action scopes"

	// Core middlewares. ErrorHandler wraps Validation so validation
	// failures are rendered before the generic error mapping.
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		handlers.Metrics.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(sizeLimit),
		middleware.Timeout(timeout),
	)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  config.RateLimit,
		Burst: config.RateBurst,
	})
	engine.Use(
		rateLimiter.RateLimit(),
		middleware.ErrorHandler(),
		middleware.Validation(validation),
	)

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	r.setupHealthCheck(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	r.handlers.Health.RegisterRoutes(rg)
	rg.GET("/health/metrics", r.handlers.Metrics.Handler())
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	patient := rg.Group("", r.auth.RequireRole(model.RolePatient))
	r.handlers.Consent.RegisterRoutes(patient)
	r.handlers.ShareToken.RegisterRoutes(patient)
	r.handlers.Audit.RegisterPatientRoutes(patient)

	doctor := rg.Group("", r.auth.RequireRole(model.RoleDoctor))
	r.handlers.Doctor.RegisterRoutes(doctor)

	pharmacy := rg.Group("", r.auth.RequireRole(model.RolePharmacy))
	r.handlers.Pharmacy.RegisterRoutes(pharmacy, r.verify.Limit())

	admin := rg.Group("/admin", r.auth.RequireRole(model.RoleAdmin))
	r.handlers.Audit.RegisterAdminRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
