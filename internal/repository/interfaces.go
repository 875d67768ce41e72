package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrNoRowsAffected is returned when a conditional update's predicate
	// no longer holds.
	ErrNoRowsAffected = errors.New("no rows affected")
)

// NewSessionFunc builds the session stored together with a consumed token.
type NewSessionFunc func(token *model.ShareToken) *model.VerificationSession

// All repository interfaces in one file
type (
	ConsentRepository interface {
		// Upsert inserts a grant or, if an unrevoked grant exists for the
		// pair, replaces its expiry. created reports which happened.
		Upsert(ctx context.Context, grant *model.ConsentGrant) (result *model.ConsentGrant, created bool, err error)
		// GetOpen returns the unrevoked grant for the pair.
		GetOpen(ctx context.Context, patientID, doctorID uuid.UUID) (*model.ConsentGrant, error)
		// RevokeOpen stamps the unrevoked grant for the pair and returns it,
		// or ErrNotFound when there is none.
		RevokeOpen(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) (*model.ConsentGrant, error)
		// RevokeByID returns false without error when the grant was already
		// revoked and ErrNotFound when it does not belong to the patient.
		RevokeByID(ctx context.Context, patientID, grantID uuid.UUID, now time.Time) (bool, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ConsentGrant, error)
		ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]*model.ConsentGrant, error)
	}

	ShareTokenRepository interface {
		Create(ctx context.Context, token *model.ShareToken) error
		// Consume marks the token matching tokenHash as consumed if it is
		// still verifiable at now and stores the session built by newSession
		// in the same transaction. ErrNotFound covers every invalid case.
		Consume(ctx context.Context, tokenHash string, now time.Time, newSession NewSessionFunc) (*model.ShareToken, *model.VerificationSession, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ShareToken, error)
		// Revoke returns ErrNotFound for unknown or foreign tokens and
		// ErrNoRowsAffected for tokens already consumed or revoked.
		Revoke(ctx context.Context, patientID, tokenID uuid.UUID, now time.Time) (*model.ShareToken, error)
	}

	VerificationSessionRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.VerificationSession, error)
		DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	PrescriptionRepository interface {
		Create(ctx context.Context, p *model.Prescription) error
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		// ListByPatient returns newest first.
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error)
		// MarkDispensed transitions an active, undispensed prescription.
		// ErrNoRowsAffected means the predicate did not hold.
		MarkDispensed(ctx context.Context, id, pharmacyUserID uuid.UUID, now time.Time) (*model.Prescription, error)
	}

	MedicalRecordRepository interface {
		Create(ctx context.Context, record *model.MedicalRecord) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, event *model.AuditEvent) error
		List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEvent, int, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, now time.Time) error
	}
)
