package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Outbox event types. Payloads carry identifiers only.
const (
	EventShareTokenVerified    = "share_token.verified"
	EventPrescriptionDispensed = "prescription.dispensed"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

type ShareTokenVerifiedPayload struct {
	ShareTokenID   uuid.UUID `json:"share_token_id"`
	SessionID      uuid.UUID `json:"session_id"`
	PatientUserID  uuid.UUID `json:"patient_user_id"`
	PharmacyUserID uuid.UUID `json:"pharmacy_user_id"`
	VerifiedAt     time.Time `json:"verified_at"`
}

type PrescriptionDispensedPayload struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	SessionID      uuid.UUID `json:"session_id"`
	PatientUserID  uuid.UUID `json:"patient_user_id"`
	PharmacyUserID uuid.UUID `json:"pharmacy_user_id"`
	DispensedAt    time.Time `json:"dispensed_at"`
}
