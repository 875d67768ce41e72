package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/middleware"
	"github.com/jwalitptl/care-access/internal/model"
	apperrors "github.com/jwalitptl/care-access/pkg/errors"
)

// Actor returns the authenticated caller. Routes are mounted behind
// Authenticate, so a missing actor is reported as Unauthorized.
func Actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		_ = c.Error(apperrors.Unauthorized(nil))
	}
	return actor, ok
}

// UUIDParam parses a path parameter, attaching Bad Request on failure.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON binds and validates the body. Validation failures are left for
// the Validation middleware; malformed bodies become Bad Request.
func BindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		_ = c.Error(err)
	case errors.Is(err, io.EOF):
		_ = c.Error(apperrors.NewBadRequest("request body is required", err))
	default:
		_ = c.Error(apperrors.NewBadRequest("malformed request body", err))
	}
	return false
}

// BindOptionalJSON accepts an empty body as the zero value.
func BindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return BindJSON(c, obj)
}

// BindQuery binds query parameters into obj.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			_ = c.Error(err)
		} else {
			_ = c.Error(apperrors.NewBadRequest("invalid query parameters", err))
		}
		return false
	}
	return true
}
