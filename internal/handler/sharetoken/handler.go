package sharetoken

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/handler"
	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/pkg/httputil"
)

// Issuer is the patient side of share token management.
type Issuer interface {
	Create(ctx context.Context, patient model.Actor, req model.CreateShareTokenRequest) (*model.IssuedShareToken, error)
	List(ctx context.Context, patientID uuid.UUID) ([]model.ShareTokenView, error)
	Revoke(ctx context.Context, patient model.Actor, tokenID uuid.UUID) error
}

type Handler struct {
	service Issuer
}

func NewHandler(service Issuer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tokens := r.Group("/share-tokens")
	{
		tokens.POST("", h.CreateToken)
		tokens.GET("", h.ListTokens)
		tokens.DELETE("/:id", h.RevokeToken)
	}
}

// CreateToken returns the plaintext code. It is never retrievable again.
func (h *Handler) CreateToken(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	var req model.CreateShareTokenRequest
	if !handler.BindOptionalJSON(c, &req) {
		return
	}

	issued, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithCreated(c, issued)
}

func (h *Handler) ListTokens(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	tokens, err := h.service.List(c.Request.Context(), actor.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) RevokeToken(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	tokenID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Revoke(c.Request.Context(), actor, tokenID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
