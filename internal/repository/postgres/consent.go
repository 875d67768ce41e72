package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
)

const consentColumns = `id, patient_id, doctor_id, granted_at, expires_at, revoked_at`

type consentRepository struct {
	BaseRepository
}

func NewConsentRepository(base BaseRepository) repository.ConsentRepository {
	return &consentRepository{base}
}

func (r *consentRepository) Upsert(ctx context.Context, grant *model.ConsentGrant) (*model.ConsentGrant, bool, error) {
	query := `
		INSERT INTO consent_grants (id, patient_id, doctor_id, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (patient_id, doctor_id) WHERE revoked_at IS NULL
		DO UPDATE SET expires_at = EXCLUDED.expires_at
		RETURNING ` + consentColumns + `, (xmax = 0) AS inserted
	`

	var row struct {
		model.ConsentGrant
		Inserted bool `db:"inserted"`
	}
	err := r.GetDB().GetContext(ctx, &row, query,
		grant.ID,
		grant.PatientID,
		grant.DoctorID,
		grant.GrantedAt,
		grant.ExpiresAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert consent grant: %w", err)
	}
	return &row.ConsentGrant, row.Inserted, nil
}

func (r *consentRepository) GetOpen(ctx context.Context, patientID, doctorID uuid.UUID) (*model.ConsentGrant, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consent_grants
		WHERE patient_id = $1 AND doctor_id = $2 AND revoked_at IS NULL
	`

	var grant model.ConsentGrant
	if err := r.GetDB().GetContext(ctx, &grant, query, patientID, doctorID); err != nil {
		return nil, notFound(err)
	}
	return &grant, nil
}

func (r *consentRepository) RevokeOpen(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) (*model.ConsentGrant, error) {
	query := `
		UPDATE consent_grants
		SET revoked_at = $3
		WHERE patient_id = $1 AND doctor_id = $2 AND revoked_at IS NULL
		RETURNING ` + consentColumns

	var grant model.ConsentGrant
	if err := r.GetDB().GetContext(ctx, &grant, query, patientID, doctorID, now); err != nil {
		return nil, notFound(err)
	}
	return &grant, nil
}

func (r *consentRepository) RevokeByID(ctx context.Context, patientID, grantID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE consent_grants
		SET revoked_at = $3
		WHERE id = $1 AND patient_id = $2 AND revoked_at IS NULL
	`

	result, err := r.GetDB().ExecContext(ctx, query, grantID, patientID, now)
	if err != nil {
		return false, fmt.Errorf("failed to revoke consent grant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	var exists bool
	err = r.GetDB().GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM consent_grants WHERE id = $1 AND patient_id = $2)`,
		grantID, patientID)
	if err != nil {
		return false, fmt.Errorf("failed to look up consent grant: %w", err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func (r *consentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ConsentGrant, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consent_grants
		WHERE patient_id = $1
		ORDER BY granted_at DESC
	`

	grants := make([]*model.ConsentGrant, 0)
	if err := r.GetDB().SelectContext(ctx, &grants, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list consent grants: %w", err)
	}
	return grants, nil
}

func (r *consentRepository) ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]*model.ConsentGrant, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consent_grants
		WHERE doctor_id = $1
		AND revoked_at IS NULL
		AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY granted_at DESC
	`

	grants := make([]*model.ConsentGrant, 0)
	if err := r.GetDB().SelectContext(ctx, &grants, query, doctorID, now); err != nil {
		return nil, fmt.Errorf("failed to list doctor consent grants: %w", err)
	}
	return grants, nil
}
