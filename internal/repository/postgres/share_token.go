package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
)

const shareTokenColumns = `id, patient_id, token_hash, scope, expires_at, consumed_at, revoked_at,
		created_at, created_by_user_id, prescription_id`

type shareTokenRepository struct {
	BaseRepository
}

func NewShareTokenRepository(base BaseRepository) repository.ShareTokenRepository {
	return &shareTokenRepository{base}
}

func (r *shareTokenRepository) Create(ctx context.Context, token *model.ShareToken) error {
	query := `
		INSERT INTO share_tokens (
			id, patient_id, token_hash, scope, expires_at,
			created_at, created_by_user_id, prescription_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.GetDB().ExecContext(ctx, query,
		token.ID,
		token.PatientID,
		token.TokenHash,
		token.Scope,
		token.ExpiresAt,
		token.CreatedAt,
		token.CreatedByUserID,
		token.PrescriptionID,
	)
	if err != nil {
		return fmt.Errorf("failed to create share token: %w", err)
	}
	return nil
}

// Consume flips consumed_at with one conditional UPDATE; a concurrent
// caller blocks on the row lock and then sees consumed_at set.
func (r *shareTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time, newSession repository.NewSessionFunc) (*model.ShareToken, *model.VerificationSession, error) {
	consume := `
		UPDATE share_tokens
		SET consumed_at = $2
		WHERE token_hash = $1
		AND consumed_at IS NULL
		AND revoked_at IS NULL
		AND expires_at > $2
		RETURNING ` + shareTokenColumns

	insertSession := `
		INSERT INTO verification_sessions (
			id, share_token_id, pharmacy_user_id, patient_user_id,
			created_at, expires_at, allowed_prescription_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var (
		token   model.ShareToken
		session *model.VerificationSession
	)
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &token, consume, tokenHash, now); err != nil {
			return notFound(err)
		}

		session = newSession(&token)
		_, err := tx.ExecContext(ctx, insertSession,
			session.ID,
			session.ShareTokenID,
			session.PharmacyUserID,
			session.PatientUserID,
			session.CreatedAt,
			session.ExpiresAt,
			session.AllowedPrescriptionID,
		)
		if err != nil {
			return fmt.Errorf("failed to create verification session: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to consume share token: %w", err)
	}
	return &token, session, nil
}

func (r *shareTokenRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ShareToken, error) {
	query := `
		SELECT ` + shareTokenColumns + `
		FROM share_tokens
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`

	tokens := make([]*model.ShareToken, 0)
	if err := r.GetDB().SelectContext(ctx, &tokens, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list share tokens: %w", err)
	}
	return tokens, nil
}

func (r *shareTokenRepository) Revoke(ctx context.Context, patientID, tokenID uuid.UUID, now time.Time) (*model.ShareToken, error) {
	query := `
		UPDATE share_tokens
		SET revoked_at = $3
		WHERE id = $1 AND patient_id = $2
		AND consumed_at IS NULL
		AND revoked_at IS NULL
		RETURNING ` + shareTokenColumns

	var token model.ShareToken
	err := r.GetDB().GetContext(ctx, &token, query, tokenID, patientID, now)
	if err == nil {
		return &token, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to revoke share token: %w", err)
	}

	var exists bool
	err = r.GetDB().GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM share_tokens WHERE id = $1 AND patient_id = $2)`,
		tokenID, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up share token: %w", err)
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrNoRowsAffected
}

type sessionRepository struct {
	BaseRepository
}

func NewSessionRepository(base BaseRepository) repository.VerificationSessionRepository {
	return &sessionRepository{base}
}

func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.VerificationSession, error) {
	query := `
		SELECT id, share_token_id, pharmacy_user_id, patient_user_id,
			created_at, expires_at, allowed_prescription_id
		FROM verification_sessions
		WHERE id = $1
	`

	var session model.VerificationSession
	if err := r.GetDB().GetContext(ctx, &session, query, id); err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

func (r *sessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.GetDB().ExecContext(ctx,
		`DELETE FROM verification_sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
