package model

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RolePharmacy Role = "pharmacy"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RolePharmacy, RoleAdmin:
		return true
	}
	return false
}

// Claims are issued by the external identity service. Subject carries the
// user id.
type Claims struct {
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller resolved from Claims.
type Actor struct {
	UserID uuid.UUID
	Role   Role
	Name   string
	// SourceAddress is the client address, recorded on audit events.
	SourceAddress string
}
