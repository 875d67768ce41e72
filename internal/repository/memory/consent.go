package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
)

type ConsentRepository struct {
	s *Store
}

var _ repository.ConsentRepository = (*ConsentRepository)(nil)

// openLocked must be called with the store lock held.
func (r *ConsentRepository) openLocked(patientID, doctorID uuid.UUID) (model.ConsentGrant, bool) {
	for _, g := range r.s.grants {
		if g.PatientID == patientID && g.DoctorID == doctorID && g.RevokedAt == nil {
			return g, true
		}
	}
	return model.ConsentGrant{}, false
}

func (r *ConsentRepository) Upsert(ctx context.Context, grant *model.ConsentGrant) (*model.ConsentGrant, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.openLocked(grant.PatientID, grant.DoctorID); ok {
		existing.ExpiresAt = copyTime(grant.ExpiresAt)
		r.s.grants[existing.ID] = existing
		return &existing, false, nil
	}

	g := *grant
	g.ExpiresAt = copyTime(grant.ExpiresAt)
	r.s.grants[g.ID] = g
	return &g, true, nil
}

func (r *ConsentRepository) GetOpen(ctx context.Context, patientID, doctorID uuid.UUID) (*model.ConsentGrant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.openLocked(patientID, doctorID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &g, nil
}

func (r *ConsentRepository) RevokeOpen(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) (*model.ConsentGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.openLocked(patientID, doctorID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	g.RevokedAt = &now
	r.s.grants[g.ID] = g
	return &g, nil
}

func (r *ConsentRepository) RevokeByID(ctx context.Context, patientID, grantID uuid.UUID, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.grants[grantID]
	if !ok || g.PatientID != patientID {
		return false, repository.ErrNotFound
	}
	if g.RevokedAt != nil {
		return false, nil
	}
	g.RevokedAt = &now
	r.s.grants[g.ID] = g
	return true, nil
}

func (r *ConsentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ConsentGrant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.ConsentGrant, 0)
	for _, g := range r.s.grants {
		if g.PatientID == patientID {
			g := g
			out = append(out, &g)
		}
	}
	sortNewestFirst(out, func(g *model.ConsentGrant) int64 { return g.GrantedAt.UnixNano() })
	return out, nil
}

func (r *ConsentRepository) ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]*model.ConsentGrant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.ConsentGrant, 0)
	for _, g := range r.s.grants {
		if g.DoctorID == doctorID && g.IsActive(now) {
			g := g
			out = append(out, &g)
		}
	}
	sortNewestFirst(out, func(g *model.ConsentGrant) int64 { return g.GrantedAt.UnixNano() })
	return out, nil
}

// Count returns the number of stored grants, revoked included.
func (r *ConsentRepository) Count() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.grants)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
