package model

import (
	"time"

	"github.com/google/uuid"
)

// ConsentGrant is one patient authorizing one doctor. Rows are never
// deleted; revocation stamps RevokedAt.
type ConsentGrant struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID  uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	GrantedAt time.Time  `db:"granted_at" json:"granted_at"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// IsActive is computed against now and never persisted.
func (g *ConsentGrant) IsActive(now time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// ConsentGrantView is the patient's own listing row.
type ConsentGrantView struct {
	ConsentGrant
	IsActive bool `json:"is_active"`
}

type GrantConsentRequest struct {
	DoctorID  uuid.UUID  `json:"doctor_id" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}
