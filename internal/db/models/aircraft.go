// Package models - aircraft.go defines Aircraft, a customer airframe identified by its
// registration (tail) number and optionally based at a primary city.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Aircraft represents an airframe serviced by the shop
type Aircraft struct {
	ID                 int64     `json:"-" db:"id"`
	UUID               uuid.UUID `json:"id" db:"uuid"`
	RegistrationNumber string    `json:"registration_number" db:"registration_number"`
	SerialNumber       *string   `json:"serial_number" db:"serial_number"`
	Make               *string   `json:"make" db:"make"`
	Model              *string   `json:"model" db:"model"`
	YearBuilt          *int      `json:"year_built" db:"year_built"`
	MeterProfile       *string   `json:"meter_profile" db:"meter_profile"`
	PrimaryCityID      *int64    `json:"-" db:"primary_city_id"`
	AircraftClass      *string   `json:"aircraft_class" db:"aircraft_class"`
	FuelCode           *string   `json:"fuel_code" db:"fuel_code"`
	Notes              *string   `json:"notes" db:"notes"`
	IsActive           bool      `json:"is_active" db:"is_active"`
	CreatedBy          string    `json:"created_by" db:"created_by"`
	UpdatedBy          *string   `json:"updated_by" db:"updated_by"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`

	PrimaryCityUUID *uuid.UUID `json:"primary_city_id" db:"primary_city_uuid"`
	PrimaryCityCode *string    `json:"primary_city_code" db:"primary_city_code"`
}

// CustomerAircraft is an aircraft linked to a customer, flagged when that customer is primary
type CustomerAircraft struct {
	Aircraft
	IsPrimary bool `json:"is_primary" db:"is_primary"`
}
