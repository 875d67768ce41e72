package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
	"github.com/jwalitptl/care-access/internal/service/audit"
	"github.com/jwalitptl/care-access/pkg/clock"
	apperrors "github.com/jwalitptl/care-access/pkg/errors"
	"github.com/jwalitptl/care-access/pkg/metrics"
)

// Guard is the access check every doctor-facing patient data operation
// runs before touching that patient's data.
type Guard interface {
	HasActiveAccess(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
	RequireAccess(ctx context.Context, doctor model.Actor, patientID uuid.UUID) error
}

type Service struct {
	repo    repository.ConsentRepository
	audit   audit.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(repo repository.ConsentRepository, auditLog audit.Logger, clk clock.Clock, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		audit:   auditLog,
		clock:   clk,
		metrics: m,
	}
}

// Grant creates a grant for the pair or, when an unrevoked one exists,
// moves its expiry. A nil expiresAt means open-ended access.
func (s *Service) Grant(ctx context.Context, patient model.Actor, doctorID uuid.UUID, expiresAt *time.Time) (*model.ConsentGrant, error) {
	if doctorID == uuid.Nil {
		return nil, apperrors.NewBadRequest("doctor_id is required", nil)
	}
	if doctorID == patient.UserID {
		return nil, apperrors.NewBadRequest("cannot grant access to yourself", nil)
	}

	now := s.clock.Now()
	if expiresAt != nil {
		if !expiresAt.After(now) {
			return nil, apperrors.NewBadRequest("expires_at must be in the future", nil)
		}
		utc := expiresAt.UTC()
		expiresAt = &utc
	}

	grant, created, err := s.repo.Upsert(ctx, &model.ConsentGrant{
		ID:        uuid.New(),
		PatientID: patient.UserID,
		DoctorID:  doctorID,
		GrantedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("grant consent: %w", err))
	}

	action := model.AuditConsentGranted
	if !created {
		action = model.AuditConsentUpdated
	}
	s.audit.Log(ctx, audit.Entry{
		Action:        action,
		Actor:         patient,
		PatientUserID: &grant.PatientID,
		EntityType:    model.AuditEntityConsentGrant,
		EntityID:      &grant.ID,
		Metadata: map[string]interface{}{
			"doctor_id":  doctorID,
			"expires_at": grant.ExpiresAt,
		},
	})

	return grant, nil
}

// Revoke ends the pair's unrevoked grant. Having none is not an error.
func (s *Service) Revoke(ctx context.Context, patient model.Actor, doctorID uuid.UUID) error {
	grant, err := s.repo.RevokeOpen(ctx, patient.UserID, doctorID, s.clock.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.NewInternal(fmt.Errorf("revoke consent: %w", err))
	}

	s.logRevoked(ctx, patient, grant.ID, doctorID)
	return nil
}

// RevokeByID revokes one of the patient's own grants. It reports false
// when the grant was already revoked and Not Found when it does not exist.
func (s *Service) RevokeByID(ctx context.Context, patient model.Actor, grantID uuid.UUID) (bool, error) {
	revoked, err := s.repo.RevokeByID(ctx, patient.UserID, grantID, s.clock.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return false, apperrors.NewNotFound("consent grant", nil)
	}
	if err != nil {
		return false, apperrors.NewInternal(fmt.Errorf("revoke consent by id: %w", err))
	}

	if revoked {
		s.logRevoked(ctx, patient, grantID, uuid.Nil)
	}
	return revoked, nil
}

func (s *Service) logRevoked(ctx context.Context, patient model.Actor, grantID, doctorID uuid.UUID) {
	var metadata map[string]interface{}
	if doctorID != uuid.Nil {
		metadata = map[string]interface{}{"doctor_id": doctorID}
	}
	s.audit.Log(ctx, audit.Entry{
		Action:        model.AuditConsentRevoked,
		Actor:         patient,
		PatientUserID: &patient.UserID,
		EntityType:    model.AuditEntityConsentGrant,
		EntityID:      &grantID,
		Metadata:      metadata,
	})
}

// HasActiveAccess evaluates the grant against the current clock. Absence
// of access is a false result, not an error.
func (s *Service) HasActiveAccess(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	grant, err := s.repo.GetOpen(ctx, patientID, doctorID)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.AccessChecks.WithLabelValues("denied").Inc()
		return false, nil
	}
	if err != nil {
		s.metrics.AccessChecks.WithLabelValues("error").Inc()
		return false, fmt.Errorf("check consent: %w", err)
	}

	active := grant.IsActive(s.clock.Now())
	if active {
		s.metrics.AccessChecks.WithLabelValues("granted").Inc()
	} else {
		s.metrics.AccessChecks.WithLabelValues("denied").Inc()
	}
	return active, nil
}

// RequireAccess turns a negative HasActiveAccess into Consent Denied and
// records the denial.
func (s *Service) RequireAccess(ctx context.Context, doctor model.Actor, patientID uuid.UUID) error {
	ok, err := s.HasActiveAccess(ctx, patientID, doctor.UserID)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if ok {
		return nil
	}

	s.audit.Log(ctx, audit.Entry{
		Action:        model.AuditConsentAccessDenied,
		Actor:         doctor,
		PatientUserID: &patientID,
		EntityType:    model.AuditEntityPatient,
		EntityID:      &patientID,
	})
	return apperrors.ConsentDenied
}

// ListGrantedAccess returns every grant the patient ever issued, each
// flagged with its current state.
func (s *Service) ListGrantedAccess(ctx context.Context, patientID uuid.UUID) ([]model.ConsentGrantView, error) {
	grants, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("list granted access: %w", err))
	}

	now := s.clock.Now()
	views := make([]model.ConsentGrantView, 0, len(grants))
	for _, g := range grants {
		views = append(views, model.ConsentGrantView{ConsentGrant: *g, IsActive: g.IsActive(now)})
	}
	return views, nil
}

// ListPatientsForDoctor returns only grants that are active right now.
func (s *Service) ListPatientsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.ConsentGrant, error) {
	grants, err := s.repo.ListActiveByDoctor(ctx, doctorID, s.clock.Now())
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("list patients for doctor: %w", err))
	}
	return grants, nil
}
