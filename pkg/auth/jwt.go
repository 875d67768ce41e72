package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTService verifies bearer tokens minted by the identity service. Sign
// is used by tooling and tests; this service never authenticates users.
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTService(secret, issuer string) (*JWTService, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	return &JWTService{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Validate parses an HS256 token and resolves the caller.
func (s *JWTService) Validate(tokenString string) (model.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &model.Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return model.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return model.Actor{UserID: userID, Role: claims.Role, Name: claims.Name}, nil
}

// Sign mints a token for the given actor.
func (s *JWTService) Sign(actor model.Actor, ttl time.Duration) (string, error) {
	now := s.now()
	claims := model.Claims{
		Role: actor.Role,
		Name: actor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
