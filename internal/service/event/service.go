package event

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

const writeTimeout = 5 * time.Second

// Emitter queues integration events for the outbox worker.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{})
}

type EventService struct {
	outboxRepo repository.OutboxRepository
	clock      clock.Clock
	metrics    *metrics.Metrics
}

func NewEventService(outboxRepo repository.OutboxRepository, clk clock.Clock, m *metrics.Metrics) *EventService {
	return &EventService{
		outboxRepo: outboxRepo,
		clock:      clk,
		metrics:    m,
	}
}

// Emit writes an outbox row. It is best-effort: errors are logged.
func (s *EventService) Emit(ctx context.Context, eventType string, payload interface{}) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		s.metrics.OutboxEnqueueFailures.Inc()
		log.Error().Err(err).Str("event_type", eventType).Msg("Failed to marshal event payload")
		return
	}

	now := s.clock.Now()
	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payloadJSON,
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := s.outboxRepo.Create(writeCtx, event); err != nil {
		s.metrics.OutboxEnqueueFailures.Inc()
		log.Error().Err(err).Str("event_type", eventType).Msg("Failed to create outbox event")
		return
	}
	s.metrics.OutboxEventsEnqueued.Inc()
}
