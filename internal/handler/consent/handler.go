package consent

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/handler"
	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/pkg/httputil"
)

// Servicer is the patient-facing side of the consent store.
type Servicer interface {
	Grant(ctx context.Context, patient model.Actor, doctorID uuid.UUID, expiresAt *time.Time) (*model.ConsentGrant, error)
	Revoke(ctx context.Context, patient model.Actor, doctorID uuid.UUID) error
	RevokeByID(ctx context.Context, patient model.Actor, grantID uuid.UUID) (bool, error)
	ListGrantedAccess(ctx context.Context, patientID uuid.UUID) ([]model.ConsentGrantView, error)
}

type Handler struct {
	service Servicer
}

func NewHandler(service Servicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	consents := r.Group("/consents")
	{
		consents.POST("", h.GrantConsent)
		consents.GET("", h.ListConsents)
		consents.DELETE("/doctors/:doctorId", h.RevokeDoctor)
		consents.DELETE("/:id", h.RevokeGrant)
	}
}

func (h *Handler) GrantConsent(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	var req model.GrantConsentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	grant, err := h.service.Grant(c.Request.Context(), actor, req.DoctorID, req.ExpiresAt)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithCreated(c, grant)
}

func (h *Handler) ListConsents(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	grants, err := h.service.ListGrantedAccess(c.Request.Context(), actor.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, grants)
}

// RevokeDoctor is idempotent: no open grant still answers 204.
func (h *Handler) RevokeDoctor(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	doctorID, ok := handler.UUIDParam(c, "doctorId")
	if !ok {
		return
	}

	if err := h.service.Revoke(c.Request.Context(), actor, doctorID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RevokeGrant(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	grantID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}

	if _, err := h.service.RevokeByID(c.Request.Context(), actor, grantID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
