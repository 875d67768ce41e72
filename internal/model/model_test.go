package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsentGrantIsActive(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	assert.True(t, (&ConsentGrant{}).IsActive(now))
	assert.True(t, (&ConsentGrant{ExpiresAt: &later}).IsActive(now))
	assert.False(t, (&ConsentGrant{ExpiresAt: &earlier}).IsActive(now))
	assert.False(t, (&ConsentGrant{ExpiresAt: &now}).IsActive(now))
	assert.False(t, (&ConsentGrant{ExpiresAt: &later, RevokedAt: &earlier}).IsActive(now))
}

func TestShareTokenState(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tok := &ShareToken{ExpiresAt: now.Add(time.Minute)}
	assert.Equal(t, ShareTokenActive, tok.State(now))
	assert.True(t, tok.Verifiable(now))

	assert.Equal(t, ShareTokenExpired, tok.State(now.Add(time.Minute)))
	assert.False(t, tok.Verifiable(now.Add(time.Minute)))

	tok.ConsumedAt = &now
	assert.Equal(t, ShareTokenConsumed, tok.State(now))
	assert.False(t, tok.Verifiable(now))

	tok.RevokedAt = &now
	assert.Equal(t, ShareTokenRevoked, tok.State(now))
}

func TestShareTokenHasScope(t *testing.T) {
	assert.True(t, (&ShareToken{Scope: ScopePrescriptionsRead}).HasScope(ScopePrescriptionsRead))
	assert.True(t, (&ShareToken{Scope: "records:read prescriptions:read"}).HasScope(ScopePrescriptionsRead))
	assert.True(t, (&ShareToken{Scope: "records:read,prescriptions:read"}).HasScope(ScopePrescriptionsRead))
	assert.False(t, (&ShareToken{Scope: "records:read"}).HasScope(ScopePrescriptionsRead))
	assert.False(t, (&ShareToken{Scope: "prescriptions:readwrite"}).HasScope(ScopePrescriptionsRead))
}

func TestPrescriptionIsDispensed(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Prescription{Status: PrescriptionActive}).IsDispensed())
	assert.True(t, (&Prescription{Status: PrescriptionDispensed}).IsDispensed())
	assert.True(t, (&Prescription{Status: PrescriptionActive, DispensedAt: &now}).IsDispensed())
}

func TestPagination(t *testing.T) {
	p := Pagination{}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 50, p.PageSize)
	assert.Equal(t, 40, Pagination{Page: 3, PageSize: 20}.Offset())
}
