package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-access/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSignAndValidate(t *testing.T) {
	svc, err := NewJWTService(testSecret, "identity")
	require.NoError(t, err)

	actor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor, Name: "Dr. Mensah"}
	token, err := svc.Sign(actor, time.Hour)
	require.NoError(t, err)

	got, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestValidateRejects(t *testing.T) {
	svc, err := NewJWTService(testSecret, "identity")
	require.NoError(t, err)
	other, err := NewJWTService("ffffffffffffffffffffffffffffffff", "identity")
	require.NoError(t, err)
	wrongIssuer, err := NewJWTService(testSecret, "elsewhere")
	require.NoError(t, err)

	actor := model.Actor{UserID: uuid.New(), Role: model.RolePharmacy}
	expired, err := svc.Sign(actor, -time.Minute)
	require.NoError(t, err)
	foreign, err := other.Sign(actor, time.Hour)
	require.NoError(t, err)
	misissued, err := wrongIssuer.Sign(actor, time.Hour)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, model.Claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID.String(),
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, model.Claims{
		Role: model.RolePatient,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": foreign,
		"wrong issuer": misissued,
		"unknown role": badRole,
		"subject":      badSubject,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewJWTServiceRequiresLongSecret(t *testing.T) {
	_, err := NewJWTService("short", "")
	assert.Error(t, err)
}
