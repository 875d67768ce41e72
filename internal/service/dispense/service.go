package dispense

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
	"github.com/jwalitptl/care-access/internal/service/audit"
	"github.com/jwalitptl/care-access/internal/service/event"
	"github.com/jwalitptl/care-access/pkg/clock"
	apperrors "github.com/jwalitptl/care-access/pkg/errors"
	"github.com/jwalitptl/care-access/pkg/metrics"
)

var errNotActive = apperrors.NewConflict("prescription is not active")

type Service struct {
	sessions      repository.VerificationSessionRepository
	prescriptions repository.PrescriptionRepository
	audit         audit.Logger
	events        event.Emitter
	clock         clock.Clock
	metrics       *metrics.Metrics
}

func NewService(
	sessions repository.VerificationSessionRepository,
	prescriptions repository.PrescriptionRepository,
	auditLog audit.Logger,
	events event.Emitter,
	clk clock.Clock,
	m *metrics.Metrics,
) *Service {
	return &Service{
		sessions:      sessions,
		prescriptions: prescriptions,
		audit:         auditLog,
		events:        events,
		clock:         clk,
		metrics:       m,
	}
}

// Dispense marks a prescription as handed out under a verification
// session held by the calling pharmacy.
func (s *Service) Dispense(ctx context.Context, pharmacy model.Actor, sessionID, prescriptionID uuid.UUID) (*model.LimitedPrescriptionView, error) {
	view, err := s.dispense(ctx, pharmacy, sessionID, prescriptionID)
	s.metrics.Dispenses.WithLabelValues(resultLabel(err)).Inc()
	return view, err
}

func (s *Service) dispense(ctx context.Context, pharmacy model.Actor, sessionID, prescriptionID uuid.UUID) (*model.LimitedPrescriptionView, error) {
	now := s.clock.Now()

	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.SessionInvalid
	}
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("load verification session: %w", err))
	}
	if !session.Usable(pharmacy.UserID, now) {
		return nil, apperrors.SessionInvalid
	}

	prescription, err := s.prescriptions.Get(ctx, prescriptionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("prescription", nil)
	}
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("load prescription: %w", err))
	}
	if prescription.PatientID != session.PatientUserID {
		return nil, apperrors.SessionInvalid
	}
	if session.AllowedPrescriptionID != nil && *session.AllowedPrescriptionID != prescriptionID {
		return nil, apperrors.SessionInvalid
	}
	if err := checkDispensable(prescription); err != nil {
		return nil, err
	}

	dispensed, err := s.prescriptions.MarkDispensed(ctx, prescriptionID, pharmacy.UserID, now)
	if errors.Is(err, repository.ErrNoRowsAffected) {
		// Lost a race; report what the winner left behind.
		current, getErr := s.prescriptions.Get(ctx, prescriptionID)
		if getErr != nil {
			return nil, apperrors.AlreadyDispensed
		}
		if err := checkDispensable(current); err != nil {
			return nil, err
		}
		return nil, apperrors.AlreadyDispensed
	}
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("mark prescription dispensed: %w", err))
	}

	s.audit.Log(ctx, audit.Entry{
		Action:        model.AuditPrescriptionDispensed,
		Actor:         pharmacy,
		PatientUserID: &dispensed.PatientID,
		EntityType:    model.AuditEntityPrescription,
		EntityID:      &dispensed.ID,
		Metadata:      map[string]interface{}{"session_id": session.ID},
	})
	s.events.Emit(ctx, model.EventPrescriptionDispensed, model.PrescriptionDispensedPayload{
		PrescriptionID: dispensed.ID,
		SessionID:      session.ID,
		PatientUserID:  dispensed.PatientID,
		PharmacyUserID: pharmacy.UserID,
		DispensedAt:    now,
	})

	view := dispensed.Limited()
	return &view, nil
}

func checkDispensable(p *model.Prescription) error {
	if p.IsDispensed() {
		return apperrors.AlreadyDispensed
	}
	if p.Status != model.PrescriptionActive {
		return errNotActive
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "dispensed"
	case apperrors.Is(err, apperrors.AlreadyDispensed):
		return "already_dispensed"
	case apperrors.Is(err, apperrors.SessionInvalid):
		return "session_invalid"
	case apperrors.IsCode(err, apperrors.ErrInternal):
		return "error"
	default:
		return "rejected"
	}
}
