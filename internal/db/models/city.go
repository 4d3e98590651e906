// Package models - city.go defines City, a shop location whose short code prefixes work order
// numbers, and ToolRoom, a tool storage area inside a city.
package models

import (
	"time"

	"github.com/google/uuid"
)

// City represents a maintenance shop location
type City struct {
	ID        int64     `json:"-" db:"id"`
	UUID      uuid.UUID `json:"id" db:"uuid"`
	Code      string    `json:"code" db:"code"` // e.g. "KTYS"
	Name      string    `json:"name" db:"name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ToolRoom represents a tool crib belonging to a city
type ToolRoom struct {
	ID        int64     `json:"-" db:"id"`
	UUID      uuid.UUID `json:"id" db:"uuid"`
	CityID    int64     `json:"-" db:"city_id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	CityUUID uuid.UUID `json:"city_id" db:"city_uuid"`
	CityCode string    `json:"city_code" db:"city_code"`
}
