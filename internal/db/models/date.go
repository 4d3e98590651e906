// Package models - date.go defines Date, a calendar date without time of day that maps onto
// PostgreSQL DATE columns and serializes as YYYY-MM-DD.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Date is a calendar date stored in DATE columns
type Date struct {
	civil.Date
}

// NewDate builds a Date from year, month and day
func NewDate(year int, month time.Month, day int) Date {
	return Date{civil.Date{Year: year, Month: month, Day: day}}
}

// DateOf returns the calendar date of t in t's location
func DateOf(t time.Time) Date {
	return Date{civil.DateOf(t)}
}

// Today returns the current UTC calendar date
func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return Date{}, err
	}
	return Date{d}, nil
}

// Scan implements sql.Scanner
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		d.Date = civil.Date{}
		return nil
	case time.Time:
		d.Date = civil.DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanString(s string) error {
	// DATE columns may come back as a full timestamp string depending on the driver
	if len(s) > 10 {
		s = s[:10]
	}
	parsed, err := civil.ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Date = parsed
	return nil
}

// Value implements driver.Valuer
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}
