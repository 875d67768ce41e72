package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for mutable rows
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Pagination is the limit/offset pair shared by list queries.
type Pagination struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=200"`
}

func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 50
	}
	return p
}

func (p Pagination) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PageSize
}
