package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is an immutable security fact.
type AuditEvent struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
	Action        string          `json:"action" db:"action"`
	ActorUserID   uuid.UUID       `json:"actor_user_id" db:"actor_user_id"`
	ActorRole     Role            `json:"actor_role" db:"actor_role"`
	PatientUserID *uuid.UUID      `json:"patient_user_id,omitempty" db:"patient_user_id"`
	EntityType    *string         `json:"entity_type,omitempty" db:"entity_type"`
	EntityID      *uuid.UUID      `json:"entity_id,omitempty" db:"entity_id"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	SourceAddress *string         `json:"source_address,omitempty" db:"source_address"`
}

const (
	// Action types
	AuditConsentGranted        = "CONSENT_GRANTED"
	AuditConsentUpdated        = "CONSENT_UPDATED"
	AuditConsentRevoked        = "CONSENT_REVOKED"
	AuditConsentAccessDenied   = "CONSENT_ACCESS_DENIED"
	AuditShareTokenCreated     = "SHARE_TOKEN_CREATED"
	AuditShareTokenRevoked     = "SHARE_TOKEN_REVOKED"
	AuditShareTokenVerified    = "SHARE_TOKEN_VERIFIED"
	AuditPrescriptionDispensed = "PRESCRIPTION_DISPENSED"
	AuditPrescriptionCreated   = "PRESCRIPTION_CREATED"
	AuditMedicalRecordCreated  = "MEDICAL_RECORD_CREATED"

	// Entity types
	AuditEntityConsentGrant  = "consent_grant"
	AuditEntityShareToken    = "share_token"
	AuditEntityPrescription  = "prescription"
	AuditEntityMedicalRecord = "medical_record"
	AuditEntityPatient       = "patient"
)

// AuditFilter narrows the audit read projection. Zero values match all.
type AuditFilter struct {
	Action        string
	ActorUserID   *uuid.UUID
	PatientUserID *uuid.UUID
	From          *time.Time
	To            *time.Time
	Pagination
}
