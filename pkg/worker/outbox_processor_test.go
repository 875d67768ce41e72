package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository/memory"
	"github.com/jwalitptl/care-access/pkg/clock"
	"github.com/jwalitptl/care-access/pkg/logger"
	"github.com/jwalitptl/care-access/pkg/messaging"
	"github.com/jwalitptl/care-access/pkg/metrics"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *mockBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	args := m.Called(ctx, channel)
	return nil, args.Error(1)
}

func (m *mockBroker) Close() error {
	return m.Called().Error(0)
}

var testConfig = OutboxProcessorConfig{
	Channel:       "care.events",
	BatchSize:     10,
	PollInterval:  time.Second,
	RetryAttempts: 3,
	RetryDelay:    time.Millisecond,
}

func seed(t *testing.T, repos *memory.Repositories, eventType string) *model.OutboxEvent {
	t.Helper()
	event := &model.OutboxEvent{
		EventType: eventType,
		Payload:   json.RawMessage(`{"prescription_id":"p-1"}`),
		CreatedAt: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repos.Outbox.Create(context.Background(), event))
	return event
}

func newProcessor(t *testing.T, repos *memory.Repositories, broker messaging.Broker, m *metrics.Metrics) *OutboxProcessor {
	t.Helper()
	p, err := NewOutboxProcessor(
		repos.Outbox,
		broker,
		testConfig,
		clock.NewFake(time.Date(2024, 7, 1, 12, 5, 0, 0, time.UTC)),
		logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard}),
		m,
	)
	require.NoError(t, err)
	return p
}

func TestProcessBatchPublishesEnvelope(t *testing.T) {
	repos := memory.NewRepositories()
	event := seed(t, repos, model.EventPrescriptionDispensed)

	broker := new(mockBroker)
	broker.On("Publish", mock.Anything, "care.events", mock.MatchedBy(func(msg messaging.Message) bool {
		return msg.ID == event.ID && msg.Type == model.EventPrescriptionDispensed
	})).Return(nil).Once()

	p := newProcessor(t, repos, broker, metrics.NewNop())
	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	broker.AssertExpectations(t)

	events := repos.Outbox.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusProcessed, events[0].Status)
	require.NotNil(t, events[0].ProcessedAt)
}

func TestProcessBatchRetriesThenFails(t *testing.T) {
	repos := memory.NewRepositories()
	seed(t, repos, model.EventShareTokenVerified)

	broker := new(mockBroker)
	broker.On("Publish", mock.Anything, "care.events", mock.Anything).Return(errors.New("connection refused")).Times(3)

	m := metrics.NewNop()
	p := newProcessor(t, repos, broker, m)
	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	broker.AssertExpectations(t)

	events := repos.Outbox.Events()
	assert.Equal(t, model.OutboxStatusFailed, events[0].Status)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Contains(t, *events[0].ErrorMessage, "connection refused")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OutboxRetries.WithLabelValues(model.EventShareTokenVerified)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsFailed))
}

func TestProcessBatchRecoversOnRetry(t *testing.T) {
	repos := memory.NewRepositories()
	seed(t, repos, model.EventShareTokenVerified)

	broker := new(mockBroker)
	broker.On("Publish", mock.Anything, "care.events", mock.Anything).Return(errors.New("timeout")).Once()
	broker.On("Publish", mock.Anything, "care.events", mock.Anything).Return(nil).Once()

	p := newProcessor(t, repos, broker, metrics.NewNop())
	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.OutboxStatusProcessed, repos.Outbox.Events()[0].Status)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	cfg := testConfig
	cfg.BatchSize = 0
	_, err := NewOutboxProcessor(memory.NewRepositories().Outbox, new(mockBroker), cfg, clock.Real{}, logger.NewLogger(nil), metrics.NewNop())
	assert.ErrorContains(t, err, "batch size")
}
