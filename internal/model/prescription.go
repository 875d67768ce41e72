package model

import (
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "ACTIVE"
	PrescriptionDispensed PrescriptionStatus = "DISPENSED"
	PrescriptionCancelled PrescriptionStatus = "CANCELLED"
)

type Prescription struct {
	Base
	PatientID                 uuid.UUID          `db:"patient_id" json:"patient_id"`
	DoctorID                  uuid.UUID          `db:"doctor_id" json:"doctor_id"`
	PrescriberName            string             `db:"prescriber_name" json:"prescriber_name"`
	MedicationName            string             `db:"medication_name" json:"medication_name"`
	Dosage                    string             `db:"dosage" json:"dosage"`
	Instructions              string             `db:"instructions" json:"instructions"`
	Status                    PrescriptionStatus `db:"status" json:"status"`
	DispensedAt               *time.Time         `db:"dispensed_at" json:"dispensed_at,omitempty"`
	DispensedByPharmacyUserID *uuid.UUID         `db:"dispensed_by_pharmacy_user_id" json:"dispensed_by_pharmacy_user_id,omitempty"`
}

// IsDispensed checks both the status and the timestamp.
func (p *Prescription) IsDispensed() bool {
	return p.Status == PrescriptionDispensed || p.DispensedAt != nil
}

// LimitedPrescriptionView is the minimized projection a pharmacy sees.
type LimitedPrescriptionView struct {
	ID             uuid.UUID          `json:"id"`
	MedicationName string             `json:"medication_name"`
	Dosage         string             `json:"dosage"`
	Instructions   string             `json:"instructions"`
	CreatedAt      time.Time          `json:"created_at"`
	PrescribedBy   string             `json:"prescribed_by"`
	Status         PrescriptionStatus `json:"status"`
}

func (p *Prescription) Limited() LimitedPrescriptionView {
	return LimitedPrescriptionView{
		ID:             p.ID,
		MedicationName: p.MedicationName,
		Dosage:         p.Dosage,
		Instructions:   p.Instructions,
		CreatedAt:      p.CreatedAt,
		PrescribedBy:   p.PrescriberName,
		Status:         p.Status,
	}
}

type CreatePrescriptionRequest struct {
	MedicationName string `json:"medication_name" binding:"required,max=200"`
	Dosage         string `json:"dosage" binding:"required,max=200"`
	Instructions   string `json:"instructions" binding:"max=2000"`
}
