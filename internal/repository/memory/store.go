// Package memory holds mutex-guarded repositories for development mode
// and tests. A single lock covers every table so multi-row steps, such as
// consuming a token and opening its session, stay atomic.
package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-access/internal/model"
)

type Store struct {
	mu sync.RWMutex

	grants        map[uuid.UUID]model.ConsentGrant
	tokens        map[uuid.UUID]model.ShareToken
	sessions      map[uuid.UUID]model.VerificationSession
	prescriptions map[uuid.UUID]model.Prescription
	records       map[uuid.UUID]model.MedicalRecord
	audit         []model.AuditEvent
	outbox        []model.OutboxEvent
}

func NewStore() *Store {
	return &Store{
		grants:        make(map[uuid.UUID]model.ConsentGrant),
		tokens:        make(map[uuid.UUID]model.ShareToken),
		sessions:      make(map[uuid.UUID]model.VerificationSession),
		prescriptions: make(map[uuid.UUID]model.Prescription),
		records:       make(map[uuid.UUID]model.MedicalRecord),
	}
}

// Repositories bundles every repository backed by one Store.
type Repositories struct {
	Store         *Store
	Consents      *ConsentRepository
	ShareTokens   *ShareTokenRepository
	Sessions      *SessionRepository
	Prescriptions *PrescriptionRepository
	Records       *MedicalRecordRepository
	Audit         *AuditRepository
	Outbox        *OutboxRepository
}

func NewRepositories() *Repositories {
	s := NewStore()
	return &Repositories{
		Store:         s,
		Consents:      &ConsentRepository{s: s},
		ShareTokens:   &ShareTokenRepository{s: s},
		Sessions:      &SessionRepository{s: s},
		Prescriptions: &PrescriptionRepository{s: s},
		Records:       &MedicalRecordRepository{s: s},
		Audit:         &AuditRepository{s: s},
		Outbox:        &OutboxRepository{s: s},
	}
}

// Ping satisfies the readiness probe.
func (s *Store) Ping() error {
	return nil
}

func sortNewestFirst[T any](items []*T, createdAt func(*T) int64) {
	sort.SliceStable(items, func(i, j int) bool {
		return createdAt(items[i]) > createdAt(items[j])
	})
}
