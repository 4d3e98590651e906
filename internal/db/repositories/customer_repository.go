package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

const customerColumns = `cu.id, cu.uuid, cu.name, cu.email, cu.phone, cu.phone_type, cu.address, cu.address_2,
		cu.city, cu.state, cu.zip, cu.country, cu.notes, cu.is_active, cu.created_by, cu.updated_by,
		cu.created_at, cu.updated_at`

var customerSortColumns = map[string]string{
	"name":       "cu.name",
	"email":      "cu.email",
	"created_at": "cu.created_at",
}

// CustomerFilter narrows a customer listing
type CustomerFilter struct {
	Search     string
	ActiveOnly bool
}

// CustomerRepository handles customer and aircraft link database operations
type CustomerRepository struct {
	db *sqlx.DB
}

// NewCustomerRepository creates a new CustomerRepository
func NewCustomerRepository(db *sqlx.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// List returns one page of customers and the total number matching the filter
func (r *CustomerRepository) List(ctx context.Context, cf CustomerFilter, s Sort, p Pagination) ([]*models.Customer, int, error) {
	f := &filter{}
	if cf.ActiveOnly {
		f.add("cu.is_active = true")
	}
	if cf.Search != "" {
		f.add("(cu.name ILIKE $%[1]d OR cu.email ILIKE $%[1]d OR cu.phone ILIKE $%[1]d)", likePattern(cf.Search))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM customer cu`+f.where(), f.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}

	pageClause, args := f.page(p.Limit(), p.Offset())
	query := `SELECT ` + customerColumns + ` FROM customer cu` + f.where() +
		orderBy(s, customerSortColumns, "created_at", "cu.id") + pageClause

	customers := make([]*models.Customer, 0)
	if err := r.db.SelectContext(ctx, &customers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, total, nil
}

// Get retrieves a customer by its external id
func (r *CustomerRepository) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return getCustomer(ctx, r.db, id, false)
}

func getCustomer(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock bool) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customer cu WHERE cu.uuid = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var customer models.Customer
	err := sqlx.GetContext(ctx, q, &customer, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &customer, nil
}

// Create inserts a new customer
func (r *CustomerRepository) Create(ctx context.Context, c *models.Customer) (*models.Customer, error) {
	query := `
		INSERT INTO customer (name, email, phone, phone_type, address, address_2, city, state, zip,
			country, notes, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, uuid, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		c.Name, c.Email, c.Phone, c.PhoneType, c.Address, c.Address2, c.City, c.State, c.Zip,
		c.Country, c.Notes, c.IsActive, c.CreatedBy,
	).Scan(&c.ID, &c.UUID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapPQError(err, "failed to create customer")
	}
	return c, nil
}

// Update loads the customer, lets apply modify it and persists every mutable column.
// Returns nil when the customer does not exist.
func (r *CustomerRepository) Update(ctx context.Context, id uuid.UUID, apply func(*models.Customer) error) (*models.Customer, error) {
	var updated *models.Customer
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		customer, err := getCustomer(ctx, tx, id, true)
		if err != nil || customer == nil {
			return err
		}
		if err := apply(customer); err != nil {
			return err
		}

		query := `
			UPDATE customer
			SET name = $2, email = $3, phone = $4, phone_type = $5, address = $6, address_2 = $7,
				city = $8, state = $9, zip = $10, country = $11, notes = $12, is_active = $13,
				updated_by = $14, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`
		err = tx.QueryRowxContext(ctx, query,
			customer.ID, customer.Name, customer.Email, customer.Phone, customer.PhoneType,
			customer.Address, customer.Address2, customer.City, customer.State, customer.Zip,
			customer.Country, customer.Notes, customer.IsActive, customer.UpdatedBy,
		).Scan(&customer.UpdatedAt)
		if err != nil {
			return mapPQError(err, "failed to update customer")
		}
		updated = customer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a customer. Customers linked to aircraft or referenced by work orders cannot
// be deleted.
func (r *CustomerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var key int64
		err := tx.GetContext(ctx, &key, `SELECT id FROM customer WHERE uuid = $1 FOR UPDATE`, id)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get customer: %w", err)
		}

		var links int
		if err := tx.GetContext(ctx, &links, `SELECT COUNT(*) FROM aircraft_customer WHERE customer_id = $1`, key); err != nil {
			return fmt.Errorf("failed to count aircraft links: %w", err)
		}
		if links > 0 {
			return fmt.Errorf("%w: customer is linked to %d aircraft", ErrConflict, links)
		}

		var workOrders int
		if err := tx.GetContext(ctx, &workOrders, `SELECT COUNT(*) FROM work_order WHERE customer_id = $1`, key); err != nil {
			return fmt.Errorf("failed to count work orders: %w", err)
		}
		if workOrders > 0 {
			return fmt.Errorf("%w: customer has %d associated work order(s)", ErrConflict, workOrders)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM customer WHERE id = $1`, key); err != nil {
			return mapPQError(err, "failed to delete customer")
		}
		return nil
	})
}

// ListAircraft returns the aircraft linked to a customer with their primary flag
func (r *CustomerRepository) ListAircraft(ctx context.Context, customerID uuid.UUID) ([]*models.CustomerAircraft, error) {
	query := `SELECT ` + aircraftColumns + `, ac.is_primary
		FROM aircraft_customer ac
		JOIN customer cu ON cu.id = ac.customer_id
		JOIN aircraft a ON a.id = ac.aircraft_id
		LEFT JOIN city c ON c.id = a.primary_city_id
		WHERE cu.uuid = $1
		ORDER BY a.registration_number`

	aircraft := make([]*models.CustomerAircraft, 0)
	if err := r.db.SelectContext(ctx, &aircraft, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to list customer aircraft: %w", err)
	}
	return aircraft, nil
}

// ListForAircraft returns the customers linked to an aircraft, primary first
func (r *CustomerRepository) ListForAircraft(ctx context.Context, aircraftID uuid.UUID) ([]*models.LinkedCustomer, error) {
	query := `SELECT ` + customerColumns + `, ac.is_primary
		FROM aircraft_customer ac
		JOIN customer cu ON cu.id = ac.customer_id
		JOIN aircraft a ON a.id = ac.aircraft_id
		WHERE a.uuid = $1
		ORDER BY ac.is_primary DESC, ac.created_at, ac.id`

	customers := make([]*models.LinkedCustomer, 0)
	if err := r.db.SelectContext(ctx, &customers, query, aircraftID); err != nil {
		return nil, fmt.Errorf("failed to list aircraft customers: %w", err)
	}
	return customers, nil
}

// linkKeys resolves the customer and aircraft of a link, returning ErrNotFound when either is missing
func linkKeys(ctx context.Context, tx *sqlx.Tx, customerID, aircraftID uuid.UUID) (int64, int64, error) {
	var customerKey, aircraftKey int64
	err := tx.GetContext(ctx, &customerKey, `SELECT id FROM customer WHERE uuid = $1`, customerID)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get customer: %w", err)
	}

	// The aircraft row lock serializes primary-flag changes for that aircraft
	err = tx.GetContext(ctx, &aircraftKey, `SELECT id FROM aircraft WHERE uuid = $1 FOR UPDATE`, aircraftID)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("%w: aircraft %s", ErrNotFound, aircraftID)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get aircraft: %w", err)
	}
	return customerKey, aircraftKey, nil
}

// LinkAircraft links a customer to an aircraft. The first customer linked to an aircraft
// becomes its primary customer.
func (r *CustomerRepository) LinkAircraft(ctx context.Context, customerID, aircraftID uuid.UUID, createdBy string) (*models.AircraftCustomer, error) {
	var link models.AircraftCustomer
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		customerKey, aircraftKey, err := linkKeys(ctx, tx, customerID, aircraftID)
		if err != nil {
			return err
		}

		var exists bool
		err = tx.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM aircraft_customer WHERE aircraft_id = $1 AND customer_id = $2)`,
			aircraftKey, customerKey)
		if err != nil {
			return fmt.Errorf("failed to check aircraft link: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: customer is already linked to this aircraft", ErrConflict)
		}

		query := `
			INSERT INTO aircraft_customer (aircraft_id, customer_id, is_primary, created_by)
			VALUES ($1, $2, NOT EXISTS(SELECT 1 FROM aircraft_customer WHERE aircraft_id = $1), $3)
			RETURNING id, aircraft_id, customer_id, is_primary, created_by, created_at
		`
		if err := tx.GetContext(ctx, &link, query, aircraftKey, customerKey, createdBy); err != nil {
			return mapPQError(err, "failed to link customer to aircraft")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// UnlinkAircraft removes a customer link. When the primary link is removed the oldest
// remaining link is promoted.
func (r *CustomerRepository) UnlinkAircraft(ctx context.Context, customerID, aircraftID uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		customerKey, aircraftKey, err := linkKeys(ctx, tx, customerID, aircraftID)
		if err != nil {
			return err
		}

		var wasPrimary bool
		err = tx.GetContext(ctx, &wasPrimary,
			`DELETE FROM aircraft_customer WHERE aircraft_id = $1 AND customer_id = $2 RETURNING is_primary`,
			aircraftKey, customerKey)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: customer is not linked to this aircraft", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to unlink customer from aircraft: %w", err)
		}

		if wasPrimary {
			query := `
				UPDATE aircraft_customer SET is_primary = true
				WHERE id = (
					SELECT id FROM aircraft_customer WHERE aircraft_id = $1
					ORDER BY created_at, id LIMIT 1
				)
			`
			if _, err := tx.ExecContext(ctx, query, aircraftKey); err != nil {
				return fmt.Errorf("failed to promote primary customer: %w", err)
			}
		}
		return nil
	})
}

// SetPrimary makes a linked customer the primary customer of the aircraft
func (r *CustomerRepository) SetPrimary(ctx context.Context, customerID, aircraftID uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		customerKey, aircraftKey, err := linkKeys(ctx, tx, customerID, aircraftID)
		if err != nil {
			return err
		}

		var linkKey int64
		err = tx.GetContext(ctx, &linkKey,
			`SELECT id FROM aircraft_customer WHERE aircraft_id = $1 AND customer_id = $2`,
			aircraftKey, customerKey)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: customer is not linked to this aircraft", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get aircraft link: %w", err)
		}

		// Clear first so the partial unique index never sees two primaries
		if _, err := tx.ExecContext(ctx,
			`UPDATE aircraft_customer SET is_primary = false WHERE aircraft_id = $1 AND is_primary`, aircraftKey); err != nil {
			return fmt.Errorf("failed to clear primary customer: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE aircraft_customer SET is_primary = true WHERE id = $1`, linkKey); err != nil {
			return fmt.Errorf("failed to set primary customer: %w", err)
		}
		return nil
	})
}
