package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/pkg/httputil"
)

const ContextActor = "actor"

// TokenValidator resolves a bearer token to the calling actor.
type TokenValidator interface {
	Validate(token string) (model.Actor, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Authenticate verifies the bearer token and stores the actor in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithStatus(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httputil.RespondWithStatus(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		actor, err := m.validator.Validate(strings.TrimSpace(token))
		if err != nil {
			httputil.RespondWithStatus(c, http.StatusUnauthorized, "invalid token")
			return
		}
		actor.SourceAddress = c.ClientIP()

		c.Set(ContextActor, actor)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			httputil.RespondWithStatus(c, http.StatusUnauthorized, "unauthenticated")
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithStatus(c, http.StatusForbidden, "permission denied")
	}
}

func ActorFromContext(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
