package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/pkg/auth"
	apperrors "github.com/jwalitptl/care-access/pkg/errors"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWT(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(testSecret, "")
	require.NoError(t, err)
	return svc
}

func bearer(t *testing.T, svc *auth.JWTService, actor model.Actor) string {
	t.Helper()
	token, err := svc.Sign(actor, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	jwtSvc := newJWT(t)
	m := NewAuthMiddleware(jwtSvc)

	r := gin.New()
	r.GET("/pharmacy", m.Authenticate(), m.RequireRole(model.RolePharmacy), func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, actor.UserID.String())
	})

	pharmacy := model.Actor{UserID: uuid.New(), Role: model.RolePharmacy}
	doctor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", bearer(t, jwtSvc, doctor), http.StatusForbidden},
		{"allowed", bearer(t, jwtSvc, pharmacy), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/pharmacy", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, pharmacy.UserID.String(), w.Body.String())
			}
		})
	}
}

func TestActorRateLimiter(t *testing.T) {
	jwtSvc := newJWT(t)
	m := NewAuthMiddleware(jwtSvc)
	limiter := NewActorRateLimiter(3)

	r := gin.New()
	r.POST("/verify", m.Authenticate(), limiter.Limit(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	first := bearer(t, jwtSvc, model.Actor{UserID: uuid.New(), Role: model.RolePharmacy})
	second := bearer(t, jwtSvc, model.Actor{UserID: uuid.New(), Role: model.RolePharmacy})

	call := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/verify", nil)
		req.Header.Set("Authorization", header)
		return serve(r, req).Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, call(first))
	}
	assert.Equal(t, http.StatusTooManyRequests, call(first))
	assert.Equal(t, http.StatusOK, call(second))
}

func TestErrorHandlerMapsAppErrors(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler())
	r.GET("/denied", func(c *gin.Context) { _ = c.Error(apperrors.ConsentDenied) })
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("pq: relation missing")) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/denied", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "consent denied")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "relation")
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
}

func TestValidationReportsFields(t *testing.T) {
	type body struct {
		DoctorID string `json:"doctor_id" binding:"required"`
	}

	r := gin.New()
	r.Use(ErrorHandler(), Validation(DefaultValidationConfig()))
	r.POST("/consents", func(c *gin.Context) {
		var b body
		if err := c.ShouldBindJSON(&b); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/consents", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"doctor_id"`)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(DefaultSecurityConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 16, MaxHeaderSize: 1 << 10}))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDReplacesInvalid(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "trace-42")
	assert.Equal(t, "trace-42", serve(r, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, strings.Repeat("a", 100))
	got := serve(r, req).Body.String()
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://portal.example"}
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://portal.example")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
