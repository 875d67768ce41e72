package pharmacy

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/handler"
	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/pkg/httputil"
)

type Verifier interface {
	Verify(ctx context.Context, pharmacy model.Actor, raw string) (*model.VerifyResult, error)
}

type Dispenser interface {
	Dispense(ctx context.Context, pharmacy model.Actor, sessionID, prescriptionID uuid.UUID) (*model.LimitedPrescriptionView, error)
}

type Handler struct {
	verifier  Verifier
	dispenser Dispenser
}

func NewHandler(verifier Verifier, dispenser Dispenser) *Handler {
	return &Handler{
		verifier:  verifier,
		dispenser: dispenser,
	}
}

// RegisterRoutes mounts the pharmacy routes. verifyLimit guards code
// guessing and runs after authentication so it can key on the actor.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, verifyLimit gin.HandlerFunc) {
	pharmacy := r.Group("/pharmacy")
	{
		pharmacy.POST("/verify", verifyLimit, h.VerifyToken)
		pharmacy.POST("/sessions/:sessionId/prescriptions/:prescriptionId/dispense", h.DispensePrescription)
	}
}

func (h *Handler) VerifyToken(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	var req model.VerifyShareTokenRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.verifier.Verify(c.Request.Context(), actor, req.Token)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) DispensePrescription(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	sessionID, ok := handler.UUIDParam(c, "sessionId")
	if !ok {
		return
	}
	prescriptionID, ok := handler.UUIDParam(c, "prescriptionId")
	if !ok {
		return
	}

	view, err := h.dispenser.Dispense(c.Request.Context(), actor, sessionID, prescriptionID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, view)
}
