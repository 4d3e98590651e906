// Package models - customer.go defines Customer, an aircraft owner or operator billed for
// work, and AircraftCustomer, the many-to-many link with a single primary customer per aircraft.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a shop customer
type Customer struct {
	ID        int64     `json:"-" db:"id"`
	UUID      uuid.UUID `json:"id" db:"uuid"`
	Name      string    `json:"name" db:"name"`
	Email     *string   `json:"email" db:"email"`
	Phone     *string   `json:"phone" db:"phone"`
	PhoneType *string   `json:"phone_type" db:"phone_type"`
	Address   *string   `json:"address" db:"address"`
	Address2  *string   `json:"address_2" db:"address_2"`
	City      *string   `json:"city" db:"city"`
	State     *string   `json:"state" db:"state"`
	Zip       *string   `json:"zip" db:"zip"`
	Country   *string   `json:"country" db:"country"`
	Notes     *string   `json:"notes" db:"notes"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	UpdatedBy *string   `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AircraftCustomer links a customer to an aircraft
type AircraftCustomer struct {
	ID         int64     `json:"-" db:"id"`
	AircraftID int64     `json:"-" db:"aircraft_id"`
	CustomerID int64     `json:"-" db:"customer_id"`
	IsPrimary  bool      `json:"is_primary" db:"is_primary"`
	CreatedBy  string    `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// LinkedCustomer is a customer linked to an aircraft, flagged when it is the primary one
type LinkedCustomer struct {
	Customer
	IsPrimary bool `json:"is_primary" db:"is_primary"`
}
