package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-access/internal/config"
	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository/memory"
	"github.com/jwalitptl/care-access/pkg/clock"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type fieldErrors struct {
	Errors []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

type testServer struct {
	t     *testing.T
	app   *App
	repos *memory.Repositories
	clock *clock.Fake

	patient  model.Actor
	doctor   model.Actor
	pharmacy model.Actor
	admin    model.Actor
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
			MetricsPrefix:  "care_access",
		},
		Database: config.DatabaseConfig{Driver: "memory"},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret-test-secret-test-secret!",
			Issuer:    "care-identity",
		},
		ShareToken: config.ShareTokenConfig{
			HashKey:              "share-code-pepper",
			DefaultExpiryMinutes: 10,
			MinExpiryMinutes:     1,
			MaxExpiryMinutes:     60,
			SessionLifetime:      15 * time.Minute,
		},
		RateLimit: config.RateLimitConfig{
			RPS:             1000,
			Burst:           1000,
			VerifyPerMinute: 100,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	repos := memory.NewRepositories()
	clk := clock.NewFake(time.Now().UTC())
	a, err := New(cfg, MemoryStores(repos), clk)
	require.NoError(t, err)

	return &testServer{
		t:        t,
		app:      a,
		repos:    repos,
		clock:    clk,
		patient:  model.Actor{UserID: uuid.New(), Role: model.RolePatient, Name: "Pat Lee"},
		doctor:   model.Actor{UserID: uuid.New(), Role: model.RoleDoctor, Name: "Dr. Rivera"},
		pharmacy: model.Actor{UserID: uuid.New(), Role: model.RolePharmacy, Name: "Corner Pharmacy"},
		admin:    model.Actor{UserID: uuid.New(), Role: model.RoleAdmin, Name: "Ops"},
	}
}

func (s *testServer) do(actor *model.Actor, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		token, err := s.app.JWT.Sign(*actor, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.app.Router.Engine().ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestConsentToDispenseFlow(t *testing.T) {
	s := newTestServer(t, testConfig())
	patientPath := "/doctor/patients/" + s.patient.UserID.String()

	// No consent yet.
	w, _ := s.do(&s.doctor, http.MethodGet, patientPath+"/prescriptions", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(&s.patient, http.MethodPost, "/consents", map[string]interface{}{
		"doctor_id": s.doctor.UserID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)

	w, env = s.do(&s.doctor, http.MethodPost, patientPath+"/prescriptions", map[string]interface{}{
		"medication_name": "Amoxicillin",
		"dosage":          "500mg three times daily",
		"instructions":    "Take with food",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var prescription model.Prescription
	decode(t, env.Data, &prescription)
	assert.Equal(t, "Dr. Rivera", prescription.PrescriberName)

	w, env = s.do(&s.patient, http.MethodPost, "/share-tokens", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issued model.IssuedShareToken
	decode(t, env.Data, &issued)
	assert.Len(t, issued.Token, 10)
	assert.Equal(t, model.ScopePrescriptionsRead, issued.Scope)

	// A dashed code is not ten symbols and does not spend the token.
	dashed := issued.Token[:5] + "-" + issued.Token[5:]
	w, _ = s.do(&s.pharmacy, http.MethodPost, "/pharmacy/verify", map[string]string{"token": dashed})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Codes are trimmed and accepted in lower case.
	typed := "  " + strings.ToLower(issued.Token) + "\n"
	w, env = s.do(&s.pharmacy, http.MethodPost, "/pharmacy/verify", map[string]string{"token": typed})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result model.VerifyResult
	decode(t, env.Data, &result)
	require.Len(t, result.Prescriptions, 1)
	assert.Equal(t, prescription.ID, result.Prescriptions[0].ID)
	assert.Equal(t, "Dr. Rivera", result.Prescriptions[0].PrescribedBy)
	assert.NotContains(t, string(env.Data), s.patient.UserID.String())

	w, _ = s.do(&s.pharmacy, http.MethodPost, "/pharmacy/verify", map[string]string{"token": issued.Token})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	dispensePath := "/pharmacy/sessions/" + result.SessionID.String() + "/prescriptions/" + prescription.ID.String() + "/dispense"
	w, env = s.do(&s.pharmacy, http.MethodPost, dispensePath, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view model.LimitedPrescriptionView
	decode(t, env.Data, &view)
	assert.Equal(t, model.PrescriptionDispensed, view.Status)

	w, _ = s.do(&s.pharmacy, http.MethodPost, dispensePath, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Another pharmacy cannot ride on the session.
	other := model.Actor{UserID: uuid.New(), Role: model.RolePharmacy}
	w, _ = s.do(&other, http.MethodPost, dispensePath, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(&s.patient, http.MethodGet, "/share-tokens", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tokens []model.ShareTokenView
	decode(t, env.Data, &tokens)
	require.Len(t, tokens, 1)
	assert.Equal(t, model.ShareTokenConsumed, tokens[0].State)
	assert.NotContains(t, string(env.Data), issued.Token)

	assert.Equal(t, []string{
		model.AuditConsentAccessDenied,
		model.AuditConsentGranted,
		model.AuditPrescriptionCreated,
		model.AuditShareTokenCreated,
		model.AuditShareTokenVerified,
		model.AuditPrescriptionDispensed,
	}, s.repos.Audit.Actions())
	assert.Len(t, s.repos.Outbox.Events(), 2)

	w, env = s.do(&s.patient, http.MethodGet, "/audit/me?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data       []model.AuditEvent `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	decode(t, env.Data, &page)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 6, page.Pagination.Total)

	w, env = s.do(&s.admin, http.MethodGet, "/admin/audit?action="+model.AuditPrescriptionDispensed, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, env.Data, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, s.pharmacy.UserID, page.Data[0].ActorUserID)
}

func TestRevokedConsentBlocksDoctor(t *testing.T) {
	s := newTestServer(t, testConfig())
	patientPath := "/doctor/patients/" + s.patient.UserID.String()

	w, _ := s.do(&s.patient, http.MethodPost, "/consents", map[string]interface{}{"doctor_id": s.doctor.UserID})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := s.do(&s.doctor, http.MethodGet, "/doctor/patients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var grants []model.ConsentGrant
	decode(t, env.Data, &grants)
	require.Len(t, grants, 1)
	assert.Equal(t, s.patient.UserID, grants[0].PatientID)

	w, _ = s.do(&s.doctor, http.MethodGet, patientPath+"/records", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(&s.patient, http.MethodDelete, "/consents/doctors/"+s.doctor.UserID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Revoking again is idempotent.
	w, _ = s.do(&s.patient, http.MethodDelete, "/consents/doctors/"+s.doctor.UserID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(&s.doctor, http.MethodGet, patientPath+"/records", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(&s.patient, http.MethodGet, "/consents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var views []model.ConsentGrantView
	decode(t, env.Data, &views)
	require.Len(t, views, 1)
	assert.False(t, views[0].IsActive)

	w, _ = s.do(&s.patient, http.MethodDelete, "/consents/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExpiredShareTokenIsInvalid(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, env := s.do(&s.patient, http.MethodPost, "/share-tokens", map[string]interface{}{"expires_in_minutes": 5})
	require.Equal(t, http.StatusCreated, w.Code)
	var issued model.IssuedShareToken
	decode(t, env.Data, &issued)

	s.clock.Advance(5 * time.Minute)

	w, env = s.do(&s.pharmacy, http.MethodPost, "/pharmacy/verify", map[string]string{"token": issued.Token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid or expired token", env.Error.Message)
}

func TestRoleGating(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		actor  *model.Actor
		method string
		path   string
		want   int
	}{
		{"anonymous", nil, http.MethodGet, "/consents", http.StatusUnauthorized},
		{"pharmacy on patient route", &s.pharmacy, http.MethodGet, "/consents", http.StatusForbidden},
		{"patient on doctor route", &s.patient, http.MethodGet, "/doctor/patients", http.StatusForbidden},
		{"doctor on pharmacy route", &s.doctor, http.MethodPost, "/pharmacy/verify", http.StatusForbidden},
		{"patient on admin route", &s.patient, http.MethodGet, "/admin/audit", http.StatusForbidden},
		{"admin audit", &s.admin, http.MethodGet, "/admin/audit", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(tt.actor, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, env := s.do(&s.patient, http.MethodPost, "/consents", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var fe fieldErrors
	decode(t, env.Data, &fe)
	require.Len(t, fe.Errors, 1)
	assert.Equal(t, "doctor_id", fe.Errors[0].Field)

	w, env = s.do(&s.patient, http.MethodPost, "/share-tokens", map[string]interface{}{"scope": "everything please"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	fe = fieldErrors{}
	decode(t, env.Data, &fe)
	require.Len(t, fe.Errors, 1)
	assert.Equal(t, "scope", fe.Errors[0].Field)

	w, _ = s.do(&s.patient, http.MethodDelete, "/share-tokens/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyIsThrottledPerPharmacy(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.VerifyPerMinute = 3
	s := newTestServer(t, cfg)

	for i := 0; i < 3; i++ {
		w, _ := s.do(&s.pharmacy, http.MethodPost, "/pharmacy/verify", map[string]string{"token": "ABCDEFGHJK"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	w, _ := s.do(&s.pharmacy, http.MethodPost, "/pharmacy/verify", map[string]string{"token": "ABCDEFGHJK"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	other := model.Actor{UserID: uuid.New(), Role: model.RolePharmacy}
	w, _ = s.do(&other, http.MethodPost, "/pharmacy/verify", map[string]string{"token": "ABCDEFGHJK"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, _ := s.do(nil, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(&s.patient, http.MethodPost, "/share-tokens", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = s.do(nil, http.MethodGet, "/health/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "care_access_core_share_tokens_issued_total 1")
	assert.Contains(t, w.Body.String(), "care_access_http_requests_total")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
