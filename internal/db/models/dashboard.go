package models

import "github.com/google/uuid"

// CityWorkOrderCount is the number of open work orders at one city
type CityWorkOrderCount struct {
	CityID    uuid.UUID `json:"city_id" db:"city_id"`
	CityCode  string    `json:"city_code" db:"city_code"`
	CityName  string    `json:"city_name" db:"city_name"`
	OpenCount int       `json:"open_count" db:"open_count"`
}
