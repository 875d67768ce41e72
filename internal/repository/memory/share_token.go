package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
	"github.com/jwalitptl/care-access/internal/repository"
)

type ShareTokenRepository struct {
	s *Store
}

var _ repository.ShareTokenRepository = (*ShareTokenRepository)(nil)

func (r *ShareTokenRepository) Create(ctx context.Context, token *model.ShareToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.tokens[token.ID]; exists {
		return errors.New("share token already exists")
	}
	for _, t := range r.s.tokens {
		if t.TokenHash == token.TokenHash {
			return errors.New("duplicate token hash")
		}
	}
	r.s.tokens[token.ID] = *token
	return nil
}

func (r *ShareTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time, newSession repository.NewSessionFunc) (*model.ShareToken, *model.VerificationSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, t := range r.s.tokens {
		if t.TokenHash != tokenHash {
			continue
		}
		if !t.Verifiable(now) {
			return nil, nil, repository.ErrNotFound
		}
		t.ConsumedAt = &now
		r.s.tokens[id] = t

		session := newSession(&t)
		r.s.sessions[session.ID] = *session
		return &t, session, nil
	}
	return nil, nil, repository.ErrNotFound
}

func (r *ShareTokenRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ShareToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.ShareToken, 0)
	for _, t := range r.s.tokens {
		if t.PatientID == patientID {
			t := t
			out = append(out, &t)
		}
	}
	sortNewestFirst(out, func(t *model.ShareToken) int64 { return t.CreatedAt.UnixNano() })
	return out, nil
}

func (r *ShareTokenRepository) Revoke(ctx context.Context, patientID, tokenID uuid.UUID, now time.Time) (*model.ShareToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tokens[tokenID]
	if !ok || t.PatientID != patientID {
		return nil, repository.ErrNotFound
	}
	if t.ConsumedAt != nil || t.RevokedAt != nil {
		return nil, repository.ErrNoRowsAffected
	}
	t.RevokedAt = &now
	r.s.tokens[tokenID] = t
	return &t, nil
}

type SessionRepository struct {
	s *Store
}

var _ repository.VerificationSessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.VerificationSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	s, ok := r.s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *SessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, s := range r.s.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}
