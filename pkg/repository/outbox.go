package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
)

// OutboxStore is the slice of the outbox repository the publisher needs.
type OutboxStore interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, now time.Time) error
}
