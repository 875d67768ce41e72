package audit

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/handler"
	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/pkg/httputil"
)

// Reader is the audit read projection.
type Reader interface {
	List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEvent, int, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, page model.Pagination) ([]*model.AuditEvent, int, error)
}

type Handler struct {
	service Reader
}

func NewHandler(service Reader) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterPatientRoutes mounts the patient's own trail.
func (h *Handler) RegisterPatientRoutes(r *gin.RouterGroup) {
	r.GET("/audit/me", h.ListMine)
}

// RegisterAdminRoutes mounts the filtered query.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/audit", h.ListLogs)
}

func (h *Handler) ListMine(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	var page model.Pagination
	if !handler.BindQuery(c, &page) {
		return
	}
	page = page.Normalize()

	events, total, err := h.service.ListForPatient(c.Request.Context(), actor.UserID, page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithPagination(c, events, page.Page, page.PageSize, total)
}

// listQuery is the admin query string; ids arrive as text.
type listQuery struct {
	Action        string    `form:"action" binding:"omitempty,max=64"`
	ActorUserID   string    `form:"actor_user_id" binding:"omitempty,uuid"`
	PatientUserID string    `form:"patient_user_id" binding:"omitempty,uuid"`
	From          time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To            time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	model.Pagination
}

func (q listQuery) filter() model.AuditFilter {
	f := model.AuditFilter{Action: q.Action, Pagination: q.Pagination.Normalize()}
	if id, err := uuid.Parse(q.ActorUserID); err == nil {
		f.ActorUserID = &id
	}
	if id, err := uuid.Parse(q.PatientUserID); err == nil {
		f.PatientUserID = &id
	}
	if !q.From.IsZero() {
		from := q.From
		f.From = &from
	}
	if !q.To.IsZero() {
		to := q.To
		f.To = &to
	}
	return f
}

func (h *Handler) ListLogs(c *gin.Context) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	filter := q.filter()

	events, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithPagination(c, events, filter.Page, filter.PageSize, total)
}
