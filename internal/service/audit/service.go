package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
	"github.com/jwalitptl/care-access/pkg/clock"
	"github.com/jwalitptl/care-access/pkg/metrics"
)

// writeTimeout bounds an audit write that outlives its request.
const writeTimeout = 5 * time.Second

// Logger is the write side used by the access-control services.
type Logger interface {
	Log(ctx context.Context, entry Entry)
}

// Entry describes one audit event before it is stamped.
type Entry struct {
	Action        string
	Actor         model.Actor
	PatientUserID *uuid.UUID
	EntityType    string
	EntityID      *uuid.UUID
	Metadata      interface{}
}

type Service struct {
	repo    repository.AuditRepository
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(repo repository.AuditRepository, clk clock.Clock, m *metrics.Metrics) *Service {
	return &Service{repo: repo, clock: clk, metrics: m}
}

// Log appends an audit event. Failures are logged and counted but never
// returned; the caller's operation has already committed.
func (s *Service) Log(ctx context.Context, entry Entry) {
	event := &model.AuditEvent{
		ID:            uuid.New(),
		Timestamp:     s.clock.Now(),
		Action:        entry.Action,
		ActorUserID:   entry.Actor.UserID,
		ActorRole:     entry.Actor.Role,
		PatientUserID: entry.PatientUserID,
		EntityID:      entry.EntityID,
	}
	if entry.EntityType != "" {
		entityType := entry.EntityType
		event.EntityType = &entityType
	}
	if entry.Actor.SourceAddress != "" {
		addr := entry.Actor.SourceAddress
		event.SourceAddress = &addr
	}
	if entry.Metadata != nil {
		metadata, err := json.Marshal(entry.Metadata)
		if err != nil {
			log.Error().Err(err).Str("action", entry.Action).Msg("Failed to marshal audit metadata")
		} else {
			event.Metadata = metadata
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := s.repo.Create(writeCtx, event); err != nil {
		s.metrics.AuditWriteFailures.Inc()
		log.Error().
			Err(err).
			Str("audit_id", event.ID.String()).
			Str("action", event.Action).
			Str("actor_user_id", event.ActorUserID.String()).
			Msg("Failed to write audit event")
	}
}

func (s *Service) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEvent, int, error) {
	return s.repo.List(ctx, filter)
}

// ListForPatient returns events concerning the given patient.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, page model.Pagination) ([]*model.AuditEvent, int, error) {
	return s.repo.List(ctx, model.AuditFilter{PatientUserID: &patientID, Pagination: page})
}
