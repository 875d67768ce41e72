package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/pkg/clock"
	"github.com/jwalitptl/care-access/pkg/logger"
	"github.com/jwalitptl/care-access/pkg/messaging"
	"github.com/jwalitptl/care-access/pkg/metrics"
	"github.com/jwalitptl/care-access/pkg/repository"
)

type OutboxProcessorConfig struct {
	Channel       string
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.Channel == "":
		return errors.New("channel is required")
	case c.BatchSize <= 0:
		return errors.New("batch size must be greater than 0")
	case c.PollInterval <= 0:
		return errors.New("poll interval must be greater than 0")
	case c.RetryAttempts <= 0:
		return errors.New("retry attempts must be greater than 0")
	case c.RetryDelay <= 0:
		return errors.New("retry delay must be greater than 0")
	}
	return nil
}

// OutboxProcessor publishes pending outbox rows and records the outcome
// on each row.
type OutboxProcessor struct {
	repo    repository.OutboxStore
	broker  messaging.Broker
	config  OutboxProcessorConfig
	clock   clock.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxStore,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	clk clock.Clock,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		clock:   clk,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch publishes up to BatchSize pending events and returns how
// many were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEvents(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

	published := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		published++
	}

	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:         event.ID,
		Type:       event.EventType,
		OccurredAt: event.CreatedAt,
		Payload:    event.Payload,
	}

	attempt := 0
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		if attempt > 0 {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		attempt++
		return p.broker.Publish(ctx, p.config.Channel, msg)
	})

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		errStr := err.Error()
		if updateErr := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusFailed, &errStr, p.clock.Now()); updateErr != nil {
			p.logger.Error(updateErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil, p.clock.Now()); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	return nil
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
