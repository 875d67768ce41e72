package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-access/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"consent denied", errors.ConsentDenied, http.StatusForbidden, "consent denied"},
		{"token invalid", errors.TokenInvalid, http.StatusBadRequest, "invalid or expired token"},
		{"session invalid", errors.SessionInvalid, http.StatusForbidden, "session invalid or expired"},
		{"already dispensed", errors.AlreadyDispensed, http.StatusConflict, "prescription already dispensed"},
		{"not found", errors.NewNotFound("prescription", nil), http.StatusNotFound, "prescription not found"},
		{"wrapped", fmt.Errorf("dispense: %w", errors.AlreadyDispensed), http.StatusConflict, "prescription already dispensed"},
		{"internal", errors.NewInternal(fmt.Errorf("pq: connection reset")), http.StatusInternalServerError, "internal server error"},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, message := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, message)
		})
	}
}

func TestRespondWithErrorHidesCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("request_id", "req-1")

	RespondWithError(c, errors.NewInternal(fmt.Errorf("dial tcp 10.0.0.3:5432: refused")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.3")

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "req-1", resp.Error.RequestID)
}
