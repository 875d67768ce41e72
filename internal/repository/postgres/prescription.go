package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
)

const prescriptionColumns = `id, patient_id, doctor_id, prescriber_name, medication_name, dosage,
		instructions, status, dispensed_at, dispensed_by_pharmacy_user_id, created_at, updated_at`

type prescriptionRepository struct {
	BaseRepository
}

func NewPrescriptionRepository(base BaseRepository) repository.PrescriptionRepository {
	return &prescriptionRepository{base}
}

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (
			id, patient_id, doctor_id, prescriber_name, medication_name,
			dosage, instructions, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.GetDB().ExecContext(ctx, query,
		p.ID,
		p.PatientID,
		p.DoctorID,
		p.PrescriberName,
		p.MedicationName,
		p.Dosage,
		p.Instructions,
		p.Status,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE id = $1`

	var p model.Prescription
	if err := r.GetDB().GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *prescriptionRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	query := `
		SELECT ` + prescriptionColumns + `
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`

	prescriptions := make([]*model.Prescription, 0)
	if err := r.GetDB().SelectContext(ctx, &prescriptions, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return prescriptions, nil
}

func (r *prescriptionRepository) MarkDispensed(ctx context.Context, id, pharmacyUserID uuid.UUID, now time.Time) (*model.Prescription, error) {
	query := `
		UPDATE prescriptions
		SET status = 'DISPENSED',
			dispensed_at = $3,
			dispensed_by_pharmacy_user_id = $2,
			updated_at = $3
		WHERE id = $1
		AND status = 'ACTIVE'
		AND dispensed_at IS NULL
		RETURNING ` + prescriptionColumns

	var p model.Prescription
	if err := r.GetDB().GetContext(ctx, &p, query, id, pharmacyUserID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoRowsAffected
		}
		return nil, fmt.Errorf("failed to dispense prescription: %w", err)
	}
	return &p, nil
}

type medicalRecordRepository struct {
	BaseRepository
}

func NewMedicalRecordRepository(base BaseRepository) repository.MedicalRecordRepository {
	return &medicalRecordRepository{base}
}

func (r *medicalRecordRepository) Create(ctx context.Context, record *model.MedicalRecord) error {
	query := `
		INSERT INTO medical_records (
			id, patient_id, author_id, type, description, details, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.GetDB().ExecContext(ctx, query,
		record.ID,
		record.PatientID,
		record.AuthorID,
		record.Type,
		record.Description,
		nullableJSON(record.Details),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create medical record: %w", err)
	}
	return nil
}

func (r *medicalRecordRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error) {
	query := `
		SELECT id, patient_id, author_id, type, description, details, created_at, updated_at
		FROM medical_records
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`

	records := make([]*model.MedicalRecord, 0)
	if err := r.GetDB().SelectContext(ctx, &records, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list medical records: %w", err)
	}
	return records, nil
}
