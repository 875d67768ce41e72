package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

type MedicalRecord struct {
	Base
	PatientID   uuid.UUID       `db:"patient_id" json:"patient_id"`
	AuthorID    uuid.UUID       `db:"author_id" json:"author_id"`
	Type        string          `db:"type" json:"type"`
	Description string          `db:"description" json:"description"`
	Details     json.RawMessage `db:"details" json:"details,omitempty"`
}

type CreateMedicalRecordRequest struct {
	Type        string          `json:"type" binding:"required,oneof=note diagnosis lab_result allergy vitals"`
	Description string          `json:"description" binding:"required,max=4000"`
	Details     json.RawMessage `json:"details"`
}
