package sharetoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
	"github.com/jwalitptl/care-access/internal/service/audit"
	"github.com/jwalitptl/care-access/internal/service/event"
	"github.com/jwalitptl/care-access/pkg/clock"
	apperrors "github.com/jwalitptl/care-access/pkg/errors"
	"github.com/jwalitptl/care-access/pkg/metrics"
	"github.com/jwalitptl/care-access/pkg/security"
)

// Generator produces plaintext share codes.
type Generator interface {
	Generate() (string, error)
}

// Hasher computes the stored digest of a normalized share code.
type Hasher interface {
	Hash(code string) string
}

type Config struct {
	DefaultExpiryMinutes int
	MinExpiryMinutes     int
	MaxExpiryMinutes     int
	SessionLifetime      time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultExpiryMinutes: 10,
		MinExpiryMinutes:     1,
		MaxExpiryMinutes:     60,
		SessionLifetime:      15 * time.Minute,
	}
}

type Service struct {
	tokens        repository.ShareTokenRepository
	prescriptions repository.PrescriptionRepository
	generator     Generator
	hasher        Hasher
	audit         audit.Logger
	events        event.Emitter
	clock         clock.Clock
	metrics       *metrics.Metrics
	cfg           Config
}

func NewService(
	tokens repository.ShareTokenRepository,
	prescriptions repository.PrescriptionRepository,
	generator Generator,
	hasher Hasher,
	auditLog audit.Logger,
	events event.Emitter,
	clk clock.Clock,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	return &Service{
		tokens:        tokens,
		prescriptions: prescriptions,
		generator:     generator,
		hasher:        hasher,
		audit:         auditLog,
		events:        events,
		clock:         clk,
		metrics:       m,
		cfg:           cfg,
	}
}

// Create issues a share token for the patient. The plaintext code is only
// ever present in the returned value.
func (s *Service) Create(ctx context.Context, patient model.Actor, req model.CreateShareTokenRequest) (*model.IssuedShareToken, error) {
	scope := strings.TrimSpace(req.Scope)
	if scope == "" {
		scope = model.ScopePrescriptionsRead
	}

	if req.PrescriptionID != nil {
		p, err := s.prescriptions.Get(ctx, *req.PrescriptionID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && p.PatientID != patient.UserID) {
			return nil, apperrors.NewNotFound("prescription", nil)
		}
		if err != nil {
			return nil, apperrors.NewInternal(fmt.Errorf("load prescription: %w", err))
		}
	}

	code, err := s.generator.Generate()
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("generate share code: %w", err))
	}

	now := s.clock.Now()
	token := &model.ShareToken{
		ID:              uuid.New(),
		PatientID:       patient.UserID,
		TokenHash:       s.hasher.Hash(code),
		Scope:           scope,
		ExpiresAt:       now.Add(time.Duration(s.expiryMinutes(req.ExpiresInMinutes)) * time.Minute),
		CreatedAt:       now,
		CreatedByUserID: patient.UserID,
		PrescriptionID:  req.PrescriptionID,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("store share token: %w", err))
	}
	s.metrics.ShareTokensIssued.Inc()

	s.audit.Log(ctx, audit.Entry{
		Action:        model.AuditShareTokenCreated,
		Actor:         patient,
		PatientUserID: &token.PatientID,
		EntityType:    model.AuditEntityShareToken,
		EntityID:      &token.ID,
		Metadata: map[string]interface{}{
			"scope":           token.Scope,
			"expires_at":      token.ExpiresAt,
			"prescription_id": token.PrescriptionID,
		},
	})

	return &model.IssuedShareToken{
		ID:        token.ID,
		Token:     code,
		ExpiresAt: token.ExpiresAt,
		Scope:     token.Scope,
	}, nil
}

func (s *Service) expiryMinutes(requested *int) int {
	if requested == nil {
		return s.cfg.DefaultExpiryMinutes
	}
	minutes := *requested
	if minutes < s.cfg.MinExpiryMinutes {
		return s.cfg.MinExpiryMinutes
	}
	if minutes > s.cfg.MaxExpiryMinutes {
		return s.cfg.MaxExpiryMinutes
	}
	return minutes
}

// Verify consumes the token and opens a verification session for the
// pharmacy. Every failure to consume is reported as TokenInvalid.
func (s *Service) Verify(ctx context.Context, pharmacy model.Actor, raw string) (*model.VerifyResult, error) {
	code, err := security.NormalizeShareCode(raw)
	if err != nil {
		s.metrics.ShareTokenVerifications.WithLabelValues("invalid").Inc()
		return nil, apperrors.TokenInvalid
	}

	now := s.clock.Now()
	newSession := func(t *model.ShareToken) *model.VerificationSession {
		return &model.VerificationSession{
			ID:                    uuid.New(),
			ShareTokenID:          t.ID,
			PharmacyUserID:        pharmacy.UserID,
			PatientUserID:         t.PatientID,
			CreatedAt:             now,
			ExpiresAt:             now.Add(s.cfg.SessionLifetime),
			AllowedPrescriptionID: t.PrescriptionID,
		}
	}

	token, session, err := s.tokens.Consume(ctx, s.hasher.Hash(code), now, newSession)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.ShareTokenVerifications.WithLabelValues("invalid").Inc()
		return nil, apperrors.TokenInvalid
	}
	if err != nil {
		s.metrics.ShareTokenVerifications.WithLabelValues("error").Inc()
		return nil, apperrors.NewInternal(fmt.Errorf("consume share token: %w", err))
	}
	s.metrics.ShareTokenVerifications.WithLabelValues("verified").Inc()

	s.audit.Log(ctx, audit.Entry{
		Action:        model.AuditShareTokenVerified,
		Actor:         pharmacy,
		PatientUserID: &token.PatientID,
		EntityType:    model.AuditEntityShareToken,
		EntityID:      &token.ID,
		Metadata: map[string]interface{}{
			"session_id": session.ID,
			"scope":      token.Scope,
		},
	})
	s.events.Emit(ctx, model.EventShareTokenVerified, model.ShareTokenVerifiedPayload{
		ShareTokenID:   token.ID,
		SessionID:      session.ID,
		PatientUserID:  token.PatientID,
		PharmacyUserID: pharmacy.UserID,
		VerifiedAt:     now,
	})

	// The token is already spent here, so the session is returned even when
	// the listing fails. The pharmacy can still dispense by prescription id.
	views, err := s.visiblePrescriptions(ctx, token)
	if err != nil {
		log.Error().Err(err).
			Str("share_token_id", token.ID.String()).
			Str("session_id", session.ID.String()).
			Msg("Failed to load prescriptions for verified token")
		views = make([]model.LimitedPrescriptionView, 0)
	}

	return &model.VerifyResult{
		SessionID:        session.ID,
		SessionExpiresAt: session.ExpiresAt,
		Prescriptions:    views,
	}, nil
}

func (s *Service) visiblePrescriptions(ctx context.Context, token *model.ShareToken) ([]model.LimitedPrescriptionView, error) {
	views := make([]model.LimitedPrescriptionView, 0)
	if !token.HasScope(model.ScopePrescriptionsRead) {
		return views, nil
	}

	if token.PrescriptionID != nil {
		p, err := s.prescriptions.Get(ctx, *token.PrescriptionID)
		if errors.Is(err, repository.ErrNotFound) {
			return views, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load prescription: %w", err)
		}
		if p.PatientID == token.PatientID {
			views = append(views, p.Limited())
		}
		return views, nil
	}

	prescriptions, err := s.prescriptions.ListByPatient(ctx, token.PatientID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	for _, p := range prescriptions {
		views = append(views, p.Limited())
	}
	return views, nil
}

// List returns token metadata for the patient, never the secret.
func (s *Service) List(ctx context.Context, patientID uuid.UUID) ([]model.ShareTokenView, error) {
	tokens, err := s.tokens.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("list share tokens: %w", err))
	}

	now := s.clock.Now()
	views := make([]model.ShareTokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, t.View(now))
	}
	return views, nil
}

// Revoke withdraws an unconsumed token before it is used.
func (s *Service) Revoke(ctx context.Context, patient model.Actor, tokenID uuid.UUID) error {
	token, err := s.tokens.Revoke(ctx, patient.UserID, tokenID, s.clock.Now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("share token", nil)
	case errors.Is(err, repository.ErrNoRowsAffected):
		return apperrors.NewConflict("share token is already consumed or revoked")
	case err != nil:
		return apperrors.NewInternal(fmt.Errorf("revoke share token: %w", err))
	}

	s.audit.Log(ctx, audit.Entry{
		Action:        model.AuditShareTokenRevoked,
		Actor:         patient,
		PatientUserID: &token.PatientID,
		EntityType:    model.AuditEntityShareToken,
		EntityID:      &token.ID,
	})
	return nil
}
