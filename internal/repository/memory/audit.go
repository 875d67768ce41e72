package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
)

type AuditRepository struct {
	s *Store
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Create(ctx context.Context, event *model.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.audit = append(r.s.audit, *event)
	return nil
}

func (r *AuditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEvent, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := make([]*model.AuditEvent, 0)
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		e := r.s.audit[i]
		if matchesAudit(&e, filter) {
			matched = append(matched, &e)
		}
	}
	sortNewestFirst(matched, func(e *model.AuditEvent) int64 { return e.Timestamp.UnixNano() })

	page := filter.Pagination.Normalize()
	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matchesAudit(e *model.AuditEvent, f model.AuditFilter) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ActorUserID != nil && e.ActorUserID != *f.ActorUserID {
		return false
	}
	if f.PatientUserID != nil && (e.PatientUserID == nil || *e.PatientUserID != *f.PatientUserID) {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.Timestamp.Before(*f.To) {
		return false
	}
	return true
}

// Actions lists recorded actions in insertion order.
func (r *AuditRepository) Actions() []string {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]string, 0, len(r.s.audit))
	for _, e := range r.s.audit {
		out = append(out, e.Action)
	}
	return out
}

type OutboxRepository struct {
	s *Store
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)

func (r *OutboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	r.s.outbox = append(r.s.outbox, *event)
	return nil
}

func (r *OutboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.OutboxEvent, 0)
	for _, e := range r.s.outbox {
		if len(out) == limit {
			break
		}
		if e.Status == model.OutboxStatusPending {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i := range r.s.outbox {
		if r.s.outbox[i].ID != id {
			continue
		}
		e := &r.s.outbox[i]
		e.Status = status
		e.ErrorMessage = errorMessage
		e.UpdatedAt = now
		if status == model.OutboxStatusProcessed {
			e.ProcessedAt = &now
		} else {
			e.RetryCount++
		}
		return nil
	}
	return repository.ErrNotFound
}

// Events returns a snapshot of every outbox row.
func (r *OutboxRepository) Events() []model.OutboxEvent {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return append([]model.OutboxEvent(nil), r.s.outbox...)
}
