package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const ScopePrescriptionsRead = "prescriptions:read"

type ShareTokenState string

const (
	ShareTokenActive   ShareTokenState = "active"
	ShareTokenConsumed ShareTokenState = "consumed"
	ShareTokenExpired  ShareTokenState = "expired"
	ShareTokenRevoked  ShareTokenState = "revoked"
)

// ShareToken stores only the digest of the secret.
type ShareToken struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	TokenHash       string     `db:"token_hash" json:"-"`
	Scope           string     `db:"scope" json:"scope"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expires_at"`
	ConsumedAt      *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	RevokedAt       *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	CreatedByUserID uuid.UUID  `db:"created_by_user_id" json:"created_by_user_id"`
	PrescriptionID  *uuid.UUID `db:"prescription_id" json:"prescription_id,omitempty"`
}

// Verifiable mirrors the predicate of the consume statement.
func (t *ShareToken) Verifiable(now time.Time) bool {
	return t.RevokedAt == nil && t.ConsumedAt == nil && t.ExpiresAt.After(now)
}

func (t *ShareToken) State(now time.Time) ShareTokenState {
	switch {
	case t.RevokedAt != nil:
		return ShareTokenRevoked
	case t.ConsumedAt != nil:
		return ShareTokenConsumed
	case !t.ExpiresAt.After(now):
		return ShareTokenExpired
	default:
		return ShareTokenActive
	}
}

// HasScope reports whether the space or comma separated scope list
// contains s.
func (t *ShareToken) HasScope(s string) bool {
	parts := strings.FieldsFunc(t.Scope, func(r rune) bool { return r == ' ' || r == ',' })
	for _, part := range parts {
		if part == s {
			return true
		}
	}
	return false
}

// ShareTokenView is token metadata shown back to its patient.
type ShareTokenView struct {
	ID             uuid.UUID       `json:"id"`
	Scope          string          `json:"scope"`
	State          ShareTokenState `json:"state"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	ConsumedAt     *time.Time      `json:"consumed_at,omitempty"`
	RevokedAt      *time.Time      `json:"revoked_at,omitempty"`
	PrescriptionID *uuid.UUID      `json:"prescription_id,omitempty"`
}

func (t *ShareToken) View(now time.Time) ShareTokenView {
	return ShareTokenView{
		ID:             t.ID,
		Scope:          t.Scope,
		State:          t.State(now),
		CreatedAt:      t.CreatedAt,
		ExpiresAt:      t.ExpiresAt,
		ConsumedAt:     t.ConsumedAt,
		RevokedAt:      t.RevokedAt,
		PrescriptionID: t.PrescriptionID,
	}
}

type CreateShareTokenRequest struct {
	Scope            string     `json:"scope" binding:"omitempty,max=128,scope"`
	ExpiresInMinutes *int       `json:"expires_in_minutes"`
	PrescriptionID   *uuid.UUID `json:"prescription_id"`
}

// IssuedShareToken carries the plaintext code exactly once.
type IssuedShareToken struct {
	ID        uuid.UUID `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Scope     string    `json:"scope"`
}

type VerifyShareTokenRequest struct {
	Token string `json:"token" binding:"required,max=64"`
}
