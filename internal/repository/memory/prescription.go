package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
)

type PrescriptionRepository struct {
	s *Store
}

var _ repository.PrescriptionRepository = (*PrescriptionRepository)(nil)

func (r *PrescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.prescriptions[p.ID]; exists {
		return errors.New("prescription already exists")
	}
	r.s.prescriptions[p.ID] = *p
	return nil
}

func (r *PrescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.prescriptions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *PrescriptionRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.Prescription, 0)
	for _, p := range r.s.prescriptions {
		if p.PatientID == patientID {
			p := p
			out = append(out, &p)
		}
	}
	sortNewestFirst(out, func(p *model.Prescription) int64 { return p.CreatedAt.UnixNano() })
	return out, nil
}

func (r *PrescriptionRepository) MarkDispensed(ctx context.Context, id, pharmacyUserID uuid.UUID, now time.Time) (*model.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.prescriptions[id]
	if !ok || p.Status != model.PrescriptionActive || p.DispensedAt != nil {
		return nil, repository.ErrNoRowsAffected
	}
	p.Status = model.PrescriptionDispensed
	p.DispensedAt = &now
	p.DispensedByPharmacyUserID = &pharmacyUserID
	p.UpdatedAt = now
	r.s.prescriptions[id] = p
	return &p, nil
}

type MedicalRecordRepository struct {
	s *Store
}

var _ repository.MedicalRecordRepository = (*MedicalRecordRepository)(nil)

func (r *MedicalRecordRepository) Create(ctx context.Context, record *model.MedicalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.records[record.ID] = *record
	return nil
}

func (r *MedicalRecordRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.MedicalRecord, 0)
	for _, rec := range r.s.records {
		if rec.PatientID == patientID {
			rec := rec
			out = append(out, &rec)
		}
	}
	sortNewestFirst(out, func(m *model.MedicalRecord) int64 { return m.CreatedAt.UnixNano() })
	return out, nil
}
