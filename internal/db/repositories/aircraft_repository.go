package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

const aircraftColumns = `a.id, a.uuid, a.registration_number, a.serial_number, a.make, a.model, a.year_built,
		a.meter_profile, a.primary_city_id, a.aircraft_class, a.fuel_code, a.notes, a.is_active,
		a.created_by, a.updated_by, a.created_at, a.updated_at,
		c.uuid AS primary_city_uuid, c.code AS primary_city_code`

const aircraftFrom = ` FROM aircraft a LEFT JOIN city c ON c.id = a.primary_city_id`

var aircraftSortColumns = map[string]string{
	"registration_number": "a.registration_number",
	"make":                "a.make",
	"model":               "a.model",
	"year_built":          "a.year_built",
	"created_at":          "a.created_at",
}

// AircraftFilter narrows an aircraft listing
type AircraftFilter struct {
	Search     string
	CityID     *uuid.UUID
	ActiveOnly bool
}

// AircraftRepository handles aircraft database operations
type AircraftRepository struct {
	db *sqlx.DB
}

// NewAircraftRepository creates a new AircraftRepository
func NewAircraftRepository(db *sqlx.DB) *AircraftRepository {
	return &AircraftRepository{db: db}
}

// List returns one page of aircraft and the total number matching the filter
func (r *AircraftRepository) List(ctx context.Context, af AircraftFilter, s Sort, p Pagination) ([]*models.Aircraft, int, error) {
	f := &filter{}
	if af.ActiveOnly {
		f.add("a.is_active = true")
	}
	if af.CityID != nil {
		f.add("c.uuid = $%d", *af.CityID)
	}
	if af.Search != "" {
		f.add("(a.registration_number ILIKE $%[1]d OR a.serial_number ILIKE $%[1]d OR a.make ILIKE $%[1]d OR a.model ILIKE $%[1]d)",
			likePattern(af.Search))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+aircraftFrom+f.where(), f.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count aircraft: %w", err)
	}

	pageClause, args := f.page(p.Limit(), p.Offset())
	query := `SELECT ` + aircraftColumns + aircraftFrom + f.where() +
		orderBy(s, aircraftSortColumns, "created_at", "a.id") + pageClause

	aircraft := make([]*models.Aircraft, 0)
	if err := r.db.SelectContext(ctx, &aircraft, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list aircraft: %w", err)
	}
	return aircraft, total, nil
}

// Get retrieves an aircraft by its external id
func (r *AircraftRepository) Get(ctx context.Context, id uuid.UUID) (*models.Aircraft, error) {
	return getAircraft(ctx, r.db, id, false)
}

func getAircraft(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock bool) (*models.Aircraft, error) {
	query := `SELECT ` + aircraftColumns + aircraftFrom + ` WHERE a.uuid = $1`
	if lock {
		query += ` FOR UPDATE OF a`
	}

	var aircraft models.Aircraft
	err := sqlx.GetContext(ctx, q, &aircraft, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aircraft: %w", err)
	}
	return &aircraft, nil
}

// Create inserts a new aircraft. PrimaryCityUUID, when set, must name an existing city.
func (r *AircraftRepository) Create(ctx context.Context, a *models.Aircraft) (*models.Aircraft, error) {
	var created *models.Aircraft
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := r.resolvePrimaryCity(ctx, tx, a); err != nil {
			return err
		}

		query := `
			INSERT INTO aircraft (registration_number, serial_number, make, model, year_built, meter_profile,
				primary_city_id, aircraft_class, fuel_code, notes, is_active, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING uuid
		`
		var id uuid.UUID
		err := tx.QueryRowxContext(ctx, query,
			a.RegistrationNumber, a.SerialNumber, a.Make, a.Model, a.YearBuilt, a.MeterProfile,
			a.PrimaryCityID, a.AircraftClass, a.FuelCode, a.Notes, a.IsActive, a.CreatedBy,
		).Scan(&id)
		if err != nil {
			return mapPQError(err, "failed to create aircraft")
		}

		created, err = getAircraft(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update loads the aircraft, lets apply modify it and persists every mutable column.
// Returns nil when the aircraft does not exist.
func (r *AircraftRepository) Update(ctx context.Context, id uuid.UUID, apply func(*models.Aircraft) error) (*models.Aircraft, error) {
	var updated *models.Aircraft
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		aircraft, err := getAircraft(ctx, tx, id, true)
		if err != nil || aircraft == nil {
			return err
		}

		if err := apply(aircraft); err != nil {
			return err
		}
		if err := r.resolvePrimaryCity(ctx, tx, aircraft); err != nil {
			return err
		}

		query := `
			UPDATE aircraft
			SET registration_number = $2, serial_number = $3, make = $4, model = $5, year_built = $6,
				meter_profile = $7, primary_city_id = $8, aircraft_class = $9, fuel_code = $10, notes = $11,
				is_active = $12, updated_by = $13, updated_at = now()
			WHERE id = $1
		`
		_, err = tx.ExecContext(ctx, query,
			aircraft.ID, aircraft.RegistrationNumber, aircraft.SerialNumber, aircraft.Make, aircraft.Model,
			aircraft.YearBuilt, aircraft.MeterProfile, aircraft.PrimaryCityID, aircraft.AircraftClass,
			aircraft.FuelCode, aircraft.Notes, aircraft.IsActive, aircraft.UpdatedBy,
		)
		if err != nil {
			return mapPQError(err, "failed to update aircraft")
		}

		updated, err = getAircraft(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an aircraft and its customer links. Aircraft referenced by work orders
// cannot be deleted.
func (r *AircraftRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var key int64
		err := tx.GetContext(ctx, &key, `SELECT id FROM aircraft WHERE uuid = $1 FOR UPDATE`, id)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get aircraft: %w", err)
		}

		var workOrders int
		if err := tx.GetContext(ctx, &workOrders, `SELECT COUNT(*) FROM work_order WHERE aircraft_id = $1`, key); err != nil {
			return fmt.Errorf("failed to count work orders: %w", err)
		}
		if workOrders > 0 {
			return fmt.Errorf("%w: aircraft has %d associated work order(s)", ErrConflict, workOrders)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM aircraft_customer WHERE aircraft_id = $1`, key); err != nil {
			return fmt.Errorf("failed to delete aircraft customer links: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM aircraft WHERE id = $1`, key); err != nil {
			return mapPQError(err, "failed to delete aircraft")
		}
		return nil
	})
}

// resolvePrimaryCity sets PrimaryCityID from PrimaryCityUUID
func (r *AircraftRepository) resolvePrimaryCity(ctx context.Context, tx *sqlx.Tx, a *models.Aircraft) error {
	if a.PrimaryCityUUID == nil {
		a.PrimaryCityID = nil
		return nil
	}
	key, err := resolveCityID(ctx, tx, *a.PrimaryCityUUID)
	if err != nil {
		return err
	}
	a.PrimaryCityID = &key
	return nil
}
