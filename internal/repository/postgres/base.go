package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/care-access/internal/repository"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// notFound translates sql.ErrNoRows to the repository sentinel.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// Repositories bundles every postgres repository over one pool.
type Repositories struct {
	Consents      repository.ConsentRepository
	ShareTokens   repository.ShareTokenRepository
	Sessions      repository.VerificationSessionRepository
	Prescriptions repository.PrescriptionRepository
	Records       repository.MedicalRecordRepository
	Audit         repository.AuditRepository
	Outbox        repository.OutboxRepository
}

func NewRepositories(db *sqlx.DB) *Repositories {
	base := NewBaseRepository(db)
	return &Repositories{
		Consents:      NewConsentRepository(base),
		ShareTokens:   NewShareTokenRepository(base),
		Sessions:      NewSessionRepository(base),
		Prescriptions: NewPrescriptionRepository(base),
		Records:       NewMedicalRecordRepository(base),
		Audit:         NewAuditRepository(base),
		Outbox:        NewOutboxRepository(base),
	}
}
