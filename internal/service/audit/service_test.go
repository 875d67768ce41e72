package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository/memory"
	"github.com/jwalitptl/care-access/pkg/clock"
	"github.com/jwalitptl/care-access/pkg/metrics"
)

type mockAuditRepository struct {
	mock.Mock
}

func (m *mockAuditRepository) Create(ctx context.Context, event *model.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockAuditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEvent, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*model.AuditEvent), args.Int(1), args.Error(2)
}

func TestLogStampsEvent(t *testing.T) {
	repos := memory.NewRepositories()
	now := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
	svc := NewService(repos.Audit, clock.NewFake(now), metrics.NewNop())

	patientID, entityID := uuid.New(), uuid.New()
	actor := model.Actor{UserID: uuid.New(), Role: model.RolePharmacy, SourceAddress: "10.0.0.7"}
	svc.Log(context.Background(), Entry{
		Action:        model.AuditPrescriptionDispensed,
		Actor:         actor,
		PatientUserID: &patientID,
		EntityType:    model.AuditEntityPrescription,
		EntityID:      &entityID,
		Metadata:      map[string]string{"session_id": "abc"},
	})

	events, total, err := svc.ListForPatient(context.Background(), patientID, model.Pagination{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	e := events[0]
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, actor.UserID, e.ActorUserID)
	assert.Equal(t, model.RolePharmacy, e.ActorRole)
	assert.Equal(t, model.AuditEntityPrescription, *e.EntityType)
	assert.Equal(t, entityID, *e.EntityID)
	assert.Equal(t, "10.0.0.7", *e.SourceAddress)
	assert.JSONEq(t, `{"session_id":"abc"}`, string(e.Metadata))
}

func TestLogSwallowsStoreFailure(t *testing.T) {
	repo := new(mockAuditRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*model.AuditEvent")).Return(errors.New("db down"))

	m := metrics.NewNop()
	svc := NewService(repo, clock.Real{}, m)

	assert.NotPanics(t, func() {
		svc.Log(context.Background(), Entry{Action: model.AuditShareTokenVerified})
	})
	repo.AssertExpectations(t)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditWriteFailures))
}

func TestLogSurvivesCancelledRequest(t *testing.T) {
	repo := new(mockAuditRepository)
	repo.On("Create", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything).Return(nil)

	svc := NewService(repo, clock.Real{}, metrics.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.Log(ctx, Entry{Action: model.AuditConsentRevoked})
	repo.AssertExpectations(t)
}
