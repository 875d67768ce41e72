package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, event *model.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			id, "timestamp", action, actor_user_id, actor_role, patient_user_id,
			entity_type, entity_id, metadata, source_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.GetDB().ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.Action,
		event.ActorUserID,
		event.ActorRole,
		event.PatientUserID,
		event.EntityType,
		event.EntityID,
		nullableJSON(event.Metadata),
		event.SourceAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEvent, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}

	if filter.Action != "" {
		args = append(args, filter.Action)
		where += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.ActorUserID != nil {
		args = append(args, *filter.ActorUserID)
		where += fmt.Sprintf(" AND actor_user_id = $%d", len(args))
	}
	if filter.PatientUserID != nil {
		args = append(args, *filter.PatientUserID)
		where += fmt.Sprintf(" AND patient_user_id = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(` AND "timestamp" >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(` AND "timestamp" < $%d`, len(args))
	}

	var total int
	if err := r.GetDB().GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_events`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	page := filter.Pagination.Normalize()
	query := `
		SELECT id, "timestamp", action, actor_user_id, actor_role, patient_user_id,
			entity_type, entity_id, metadata, source_address
		FROM audit_events` + where +
		fmt.Sprintf(` ORDER BY "timestamp" DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	events := make([]*model.AuditEvent, 0)
	if err := r.GetDB().SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, total, nil
}

// nullableJSON sends JSON as text so lib/pq does not encode it as bytea.
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
