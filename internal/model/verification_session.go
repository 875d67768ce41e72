package model

import (
	"time"

	"github.com/google/uuid"
)

// VerificationSession is the short-lived elevation created by a successful
// share token verification.
type VerificationSession struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	ShareTokenID          uuid.UUID  `db:"share_token_id" json:"share_token_id"`
	PharmacyUserID        uuid.UUID  `db:"pharmacy_user_id" json:"pharmacy_user_id"`
	PatientUserID         uuid.UUID  `db:"patient_user_id" json:"patient_user_id"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt             time.Time  `db:"expires_at" json:"expires_at"`
	AllowedPrescriptionID *uuid.UUID `db:"allowed_prescription_id" json:"allowed_prescription_id,omitempty"`
}

func (s *VerificationSession) Usable(pharmacyUserID uuid.UUID, now time.Time) bool {
	return s.PharmacyUserID == pharmacyUserID && s.ExpiresAt.After(now)
}

// VerifyResult is what the pharmacy receives from a verification.
type VerifyResult struct {
	SessionID        uuid.UUID                 `json:"session_id"`
	SessionExpiresAt time.Time                 `json:"session_expires_at"`
	Prescriptions    []LimitedPrescriptionView `json:"prescriptions"`
}
