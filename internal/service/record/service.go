package record

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
	"github.com/jwalitptl/care-access/internal/service/audit"
	"github.com/jwalitptl/care-access/internal/service/consent"
	"github.com/jwalitptl/care-access/pkg/clock"
	apperrors "github.com/jwalitptl/care-access/pkg/errors"
)

type Service struct {
	repo  repository.MedicalRecordRepository
	guard consent.Guard
	audit audit.Logger
	clock clock.Clock
}

func NewService(repo repository.MedicalRecordRepository, guard consent.Guard, auditLog audit.Logger, clk clock.Clock) *Service {
	return &Service{repo: repo, guard: guard, audit: auditLog, clock: clk}
}

func (s *Service) Create(ctx context.Context, doctor model.Actor, patientID uuid.UUID, req model.CreateMedicalRecordRequest) (*model.MedicalRecord, error) {
	if err := s.guard.RequireAccess(ctx, doctor, patientID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	record := &model.MedicalRecord{
		Base:        model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID:   patientID,
		AuthorID:    doctor.UserID,
		Type:        req.Type,
		Description: req.Description,
		Details:     req.Details,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("create medical record: %w", err))
	}

	s.audit.Log(ctx, audit.Entry{
		Action:        model.AuditMedicalRecordCreated,
		Actor:         doctor,
		PatientUserID: &patientID,
		EntityType:    model.AuditEntityMedicalRecord,
		EntityID:      &record.ID,
		Metadata:      map[string]interface{}{"type": record.Type},
	})
	return record, nil
}

func (s *Service) ListForPatient(ctx context.Context, doctor model.Actor, patientID uuid.UUID) ([]*model.MedicalRecord, error) {
	if err := s.guard.RequireAccess(ctx, doctor, patientID); err != nil {
		return nil, err
	}

	records, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("list medical records: %w", err))
	}
	return records, nil
}
