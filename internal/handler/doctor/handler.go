package doctor

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/handler"
	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/pkg/httputil"
)

type PatientLister interface {
	ListPatientsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.ConsentGrant, error)
}

type PrescriptionServicer interface {
	Create(ctx context.Context, doctor model.Actor, patientID uuid.UUID, req model.CreatePrescriptionRequest) (*model.Prescription, error)
	ListForPatient(ctx context.Context, doctor model.Actor, patientID uuid.UUID) ([]*model.Prescription, error)
}

type RecordServicer interface {
	Create(ctx context.Context, doctor model.Actor, patientID uuid.UUID, req model.CreateMedicalRecordRequest) (*model.MedicalRecord, error)
	ListForPatient(ctx context.Context, doctor model.Actor, patientID uuid.UUID) ([]*model.MedicalRecord, error)
}

type Handler struct {
	patients      PatientLister
	prescriptions PrescriptionServicer
	records       RecordServicer
}

func NewHandler(patients PatientLister, prescriptions PrescriptionServicer, records RecordServicer) *Handler {
	return &Handler{
		patients:      patients,
		prescriptions: prescriptions,
		records:       records,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctor := r.Group("/doctor")
	{
		doctor.GET("/patients", h.ListPatients)
		doctor.GET("/patients/:patientId/prescriptions", h.ListPrescriptions)
		doctor.POST("/patients/:patientId/prescriptions", h.CreatePrescription)
		doctor.GET("/patients/:patientId/records", h.ListRecords)
		doctor.POST("/patients/:patientId/records", h.CreateRecord)
	}
}

// ListPatients returns the grants that are active right now.
func (h *Handler) ListPatients(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	grants, err := h.patients.ListPatientsForDoctor(c.Request.Context(), actor.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, grants)
}

func (h *Handler) ListPrescriptions(c *gin.Context) {
	actor, patientID, ok := actorAndPatient(c)
	if !ok {
		return
	}

	items, err := h.prescriptions.ListForPatient(c.Request.Context(), actor, patientID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, items)
}

func (h *Handler) CreatePrescription(c *gin.Context) {
	actor, patientID, ok := actorAndPatient(c)
	if !ok {
		return
	}

	var req model.CreatePrescriptionRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	p, err := h.prescriptions.Create(c.Request.Context(), actor, patientID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithCreated(c, p)
}

func (h *Handler) ListRecords(c *gin.Context) {
	actor, patientID, ok := actorAndPatient(c)
	if !ok {
		return
	}

	items, err := h.records.ListForPatient(c.Request.Context(), actor, patientID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, items)
}

func (h *Handler) CreateRecord(c *gin.Context) {
	actor, patientID, ok := actorAndPatient(c)
	if !ok {
		return
	}

	var req model.CreateMedicalRecordRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	record, err := h.records.Create(c.Request.Context(), actor, patientID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithCreated(c, record)
}

func actorAndPatient(c *gin.Context) (model.Actor, uuid.UUID, bool) {
	actor, ok := handler.Actor(c)
	if !ok {
		return model.Actor{}, uuid.Nil, false
	}
	patientID, ok := handler.UUIDParam(c, "patientId")
	if !ok {
		return model.Actor{}, uuid.Nil, false
	}
	return actor, patientID, true
}
