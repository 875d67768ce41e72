package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository/memory"
	"github.com/jwalitptl/care-access/internal/service/audit"
	"github.com/jwalitptl/care-access/pkg/clock"
	apperrors "github.com/jwalitptl/care-access/pkg/errors"
	"github.com/jwalitptl/care-access/pkg/metrics"
)

type mockGuard struct {
	mock.Mock
}

func (m *mockGuard) HasActiveAccess(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	args := m.Called(ctx, patientID, doctorID)
	return args.Bool(0), args.Error(1)
}

func (m *mockGuard) RequireAccess(ctx context.Context, doctor model.Actor, patientID uuid.UUID) error {
	args := m.Called(ctx, doctor, patientID)
	return args.Error(0)
}

func setup() (*Service, *mockGuard, *memory.Repositories) {
	repos := memory.NewRepositories()
	clk := clock.NewFake(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	guard := new(mockGuard)
	svc := NewService(repos.Prescriptions, guard, audit.NewService(repos.Audit, clk, metrics.NewNop()), clk)
	return svc, guard, repos
}

func TestCreateWithAccess(t *testing.T) {
	svc, guard, repos := setup()
	doctor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor, Name: "Dr. Lindqvist"}
	patientID := uuid.New()
	guard.On("RequireAccess", mock.Anything, doctor, patientID).Return(nil)

	p, err := svc.Create(context.Background(), doctor, patientID, model.CreatePrescriptionRequest{
		MedicationName: " Amoxicillin ",
		Dosage:         "250mg",
		Instructions:   "three times daily",
	})
	require.NoError(t, err)
	assert.Equal(t, "Amoxicillin", p.MedicationName)
	assert.Equal(t, "Dr. Lindqvist", p.PrescriberName)
	assert.Equal(t, model.PrescriptionActive, p.Status)

	stored, err := repos.Prescriptions.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, patientID, stored.PatientID)
	assert.Equal(t, []string{model.AuditPrescriptionCreated}, repos.Audit.Actions())
	guard.AssertExpectations(t)
}

func TestCreateDenied(t *testing.T) {
	svc, guard, repos := setup()
	doctor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	patientID := uuid.New()
	guard.On("RequireAccess", mock.Anything, doctor, patientID).Return(apperrors.ConsentDenied)

	_, err := svc.Create(context.Background(), doctor, patientID, model.CreatePrescriptionRequest{MedicationName: "X", Dosage: "1"})
	assert.ErrorIs(t, err, apperrors.ConsentDenied)

	list, err := repos.Prescriptions.ListByPatient(context.Background(), patientID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListForPatientDenied(t *testing.T) {
	svc, guard, repos := setup()
	doctor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	patientID := uuid.New()
	require.NoError(t, repos.Prescriptions.Create(context.Background(), &model.Prescription{
		Base:      model.Base{ID: uuid.New()},
		PatientID: patientID,
		Status:    model.PrescriptionActive,
	}))
	guard.On("RequireAccess", mock.Anything, doctor, patientID).Return(apperrors.ConsentDenied).Once()

	list, err := svc.ListForPatient(context.Background(), doctor, patientID)
	assert.ErrorIs(t, err, apperrors.ConsentDenied)
	assert.Nil(t, list)
	guard.AssertExpectations(t)
}
