package prescription

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
	"github.com/jwalitptl/care-access/internal/service/audit"
	"github.com/jwalitptl/care-access/internal/service/consent"
	"github.com/jwalitptl/care-access/pkg/clock"
	apperrors "github.com/jwalitptl/care-access/pkg/errors"
)

// Service is the doctor-facing prescription surface. Every call passes
// the consent guard before reading or writing patient data.
type Service struct {
	repo  repository.PrescriptionRepository
	guard consent.Guard
	audit audit.Logger
	clock clock.Clock
}

func NewService(repo repository.PrescriptionRepository, guard consent.Guard, auditLog audit.Logger, clk clock.Clock) *Service {
	return &Service{repo: repo, guard: guard, audit: auditLog, clock: clk}
}

func (s *Service) Create(ctx context.Context, doctor model.Actor, patientID uuid.UUID, req model.CreatePrescriptionRequest) (*model.Prescription, error) {
	if err := s.guard.RequireAccess(ctx, doctor, patientID); err != nil {
		return nil, err
	}

	prescriber := strings.TrimSpace(doctor.Name)
	if prescriber == "" {
		prescriber = doctor.UserID.String()
	}

	now := s.clock.Now()
	p := &model.Prescription{
		Base:           model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID:      patientID,
		DoctorID:       doctor.UserID,
		PrescriberName: prescriber,
		MedicationName: strings.TrimSpace(req.MedicationName),
		Dosage:         strings.TrimSpace(req.Dosage),
		Instructions:   strings.TrimSpace(req.Instructions),
		Status:         model.PrescriptionActive,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("create prescription: %w", err))
	}

	s.audit.Log(ctx, audit.Entry{
		Action:        model.AuditPrescriptionCreated,
		Actor:         doctor,
		PatientUserID: &patientID,
		EntityType:    model.AuditEntityPrescription,
		EntityID:      &p.ID,
	})
	return p, nil
}

func (s *Service) ListForPatient(ctx context.Context, doctor model.Actor, patientID uuid.UUID) ([]*model.Prescription, error) {
	if err := s.guard.RequireAccess(ctx, doctor, patientID); err != nil {
		return nil, err
	}

	prescriptions, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("list prescriptions: %w", err))
	}
	return prescriptions, nil
}
