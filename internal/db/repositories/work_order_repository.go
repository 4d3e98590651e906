package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

const workOrderColumns = `wo.id, wo.uuid, wo.work_order_number, wo.sequence_number, wo.city_id, wo.aircraft_id,
		wo.customer_id, wo.work_order_type, wo.status, wo.status_notes, wo.aircraft_registration,
		wo.aircraft_serial, wo.aircraft_make, wo.aircraft_model, wo.aircraft_year, wo.customer_name,
		wo.customer_po_number, wo.due_date, wo.created_date, wo.completed_date, wo.lead_technician,
		wo.sales_person, wo.priority, wo.created_by, wo.updated_by, wo.created_at, wo.updated_at,
		c.uuid AS city_uuid, c.code AS city_code, a.uuid AS aircraft_uuid, cu.uuid AS customer_uuid,
		(SELECT COUNT(*) FROM work_order_item i WHERE i.work_order_id = wo.id) AS item_count`

const workOrderFrom = ` FROM work_order wo
		JOIN city c ON c.id = wo.city_id
		LEFT JOIN aircraft a ON a.id = wo.aircraft_id
		LEFT JOIN customer cu ON cu.id = wo.customer_id`

var workOrderSortColumns = map[string]string{
	"work_order_number": "wo.work_order_number",
	"status":            "wo.status",
	"priority":          "wo.priority",
	"due_date":          "wo.due_date",
	"created_at":        "wo.created_at",
}

// workOrderSequenceLock is the first key of the per-city advisory lock taken while numbering
const workOrderSequenceLock = "work_order_sequence"

// WorkOrderFilter narrows a work order listing. CityID is required.
type WorkOrderFilter struct {
	CityID   uuid.UUID
	Search   string
	Status   string
	Priority string
}

// WorkOrderRepository handles work order database operations. Every write reports to the
// audit hooks inside its transaction.
type WorkOrderRepository struct {
	db    *sqlx.DB
	hooks audit.Hooks
	now   func() time.Time
}

// NewWorkOrderRepository creates a new WorkOrderRepository. A nil hooks disables auditing.
func NewWorkOrderRepository(db *sqlx.DB, hooks audit.Hooks) *WorkOrderRepository {
	if hooks == nil {
		hooks = audit.NoopHooks{}
	}
	return &WorkOrderRepository{db: db, hooks: hooks, now: time.Now}
}

// FormatWorkOrderNumber builds a work order number such as KTYS00001-01-2026
func FormatWorkOrderNumber(cityCode string, sequence int, at time.Time) string {
	return fmt.Sprintf("%s%05d-%02d-%d", cityCode, sequence, int(at.Month()), at.Year())
}

// List returns one page of a city's work orders and the total number matching the filter
func (r *WorkOrderRepository) List(ctx context.Context, wf WorkOrderFilter, s Sort, p Pagination) ([]*models.WorkOrder, int, error) {
	f := &filter{}
	f.add("c.uuid = $%d", wf.CityID)
	if wf.Status != "" {
		f.add("wo.status = $%d", wf.Status)
	}
	if wf.Priority != "" {
		f.add("wo.priority = $%d", wf.Priority)
	}
	if wf.Search != "" {
		f.add("(wo.work_order_number ILIKE $%[1]d OR wo.customer_name ILIKE $%[1]d OR wo.aircraft_registration ILIKE $%[1]d)",
			likePattern(wf.Search))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+workOrderFrom+f.where(), f.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count work orders: %w", err)
	}

	pageClause, args := f.page(p.Limit(), p.Offset())
	query := `SELECT ` + workOrderColumns + workOrderFrom + f.where() +
		orderBy(s, workOrderSortColumns, "created_at", "wo.id") + pageClause

	workOrders := make([]*models.WorkOrder, 0)
	if err := r.db.SelectContext(ctx, &workOrders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list work orders: %w", err)
	}
	return workOrders, total, nil
}

// Get retrieves a work order by its external id
func (r *WorkOrderRepository) Get(ctx context.Context, id uuid.UUID) (*models.WorkOrder, error) {
	return getWorkOrder(ctx, r.db, id, false)
}

func getWorkOrder(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock bool) (*models.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + workOrderFrom + ` WHERE wo.uuid = $1`
	if lock {
		query += ` FOR UPDATE OF wo`
	}

	var wo models.WorkOrder
	err := sqlx.GetContext(ctx, q, &wo, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work order: %w", err)
	}
	return &wo, nil
}

// Create numbers and inserts a new work order. CityUUID must name an existing city;
// AircraftUUID and CustomerUUID, when set, must name existing rows and fill the aircraft and
// customer fields the caller left empty.
func (r *WorkOrderRepository) Create(ctx context.Context, wo *models.WorkOrder) (*models.WorkOrder, error) {
	if wo.WorkOrderType == "" {
		wo.WorkOrderType = models.WorkOrderTypeWorkOrder
	}
	if wo.Status == "" {
		wo.Status = models.WorkOrderStatusCreated
	}
	if wo.Priority == "" {
		wo.Priority = models.PriorityNormal
	}

	var created *models.WorkOrder
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var city struct {
			ID   int64  `db:"id"`
			Code string `db:"code"`
		}
		err := tx.GetContext(ctx, &city, `SELECT id, code FROM city WHERE uuid = $1`, wo.CityUUID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: city %s", ErrInvalidReference, wo.CityUUID)
		}
		if err != nil {
			return fmt.Errorf("failed to resolve city: %w", err)
		}
		wo.CityID = city.ID

		if err := r.resolveAircraft(ctx, tx, wo, true); err != nil {
			return err
		}
		if err := r.resolveCustomer(ctx, tx, wo, true); err != nil {
			return err
		}

		// Serializes numbering per city until the transaction ends
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), $2)`,
			workOrderSequenceLock, city.ID); err != nil {
			return fmt.Errorf("failed to lock work order sequence: %w", err)
		}

		var seq int
		if err := tx.GetContext(ctx, &seq,
			`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM work_order WHERE city_id = $1`, city.ID); err != nil {
			return fmt.Errorf("failed to get next sequence number: %w", err)
		}
		wo.SequenceNumber = seq
		wo.WorkOrderNumber = FormatWorkOrderNumber(city.Code, seq, r.now().UTC())

		query := `
			INSERT INTO work_order (work_order_number, sequence_number, city_id, aircraft_id, customer_id,
				work_order_type, status, status_notes, aircraft_registration, aircraft_serial, aircraft_make,
				aircraft_model, aircraft_year, customer_name, customer_po_number, due_date, lead_technician,
				sales_person, priority, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			RETURNING uuid
		`
		var id uuid.UUID
		err = tx.QueryRowxContext(ctx, query,
			wo.WorkOrderNumber, wo.SequenceNumber, wo.CityID, wo.AircraftID, wo.CustomerID,
			wo.WorkOrderType, wo.Status, wo.StatusNotes, wo.AircraftRegistration, wo.AircraftSerial,
			wo.AircraftMake, wo.AircraftModel, wo.AircraftYear, wo.CustomerName, wo.CustomerPONumber,
			wo.DueDate, wo.LeadTechnician, wo.SalesPerson, wo.Priority, wo.CreatedBy,
		).Scan(&id)
		if err != nil {
			return mapPQError(err, "failed to create work order")
		}

		created, err = getWorkOrder(ctx, tx, id, false)
		if err != nil {
			return err
		}
		return r.hooks.AfterInsert(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update loads the work order, lets apply modify it and persists the result. Nothing is
// written, and no audit record produced, when apply changes no column. Returns nil when the
// work order does not exist.
func (r *WorkOrderRepository) Update(ctx context.Context, id uuid.UUID, apply func(*models.WorkOrder) error) (*models.WorkOrder, error) {
	var updated *models.WorkOrder
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		wo, err := getWorkOrder(ctx, tx, id, true)
		if err != nil || wo == nil {
			return err
		}

		snapshot := audit.TakeSnapshot(wo)
		aircraftBefore, customerBefore := wo.AircraftUUID, wo.CustomerUUID
		statusBefore := wo.Status

		if err := apply(wo); err != nil {
			return err
		}
		if !sameUUID(aircraftBefore, wo.AircraftUUID) {
			if err := r.resolveAircraft(ctx, tx, wo, false); err != nil {
				return err
			}
		}
		if !sameUUID(customerBefore, wo.CustomerUUID) {
			if err := r.resolveCustomer(ctx, tx, wo, false); err != nil {
				return err
			}
		}
		if wo.Status == models.WorkOrderStatusCompleted && statusBefore != wo.Status && wo.CompletedDate == nil {
			completed := r.now().UTC()
			wo.CompletedDate = &completed
		}

		if len(snapshot.ChangedFields(wo)) == 0 {
			updated = wo
			return nil
		}

		query := `
			UPDATE work_order
			SET aircraft_id = $2, customer_id = $3, work_order_type = $4, status = $5, status_notes = $6,
				aircraft_registration = $7, aircraft_serial = $8, aircraft_make = $9, aircraft_model = $10,
				aircraft_year = $11, customer_name = $12, customer_po_number = $13, due_date = $14,
				completed_date = $15, lead_technician = $16, sales_person = $17, priority = $18,
				updated_by = $19, updated_at = now()
			WHERE id = $1
		`
		_, err = tx.ExecContext(ctx, query,
			wo.ID, wo.AircraftID, wo.CustomerID, wo.WorkOrderType, wo.Status, wo.StatusNotes,
			wo.AircraftRegistration, wo.AircraftSerial, wo.AircraftMake, wo.AircraftModel,
			wo.AircraftYear, wo.CustomerName, wo.CustomerPONumber, wo.DueDate, wo.CompletedDate,
			wo.LeadTechnician, wo.SalesPerson, wo.Priority, wo.UpdatedBy,
		)
		if err != nil {
			return mapPQError(err, "failed to update work order")
		}

		updated, err = getWorkOrder(ctx, tx, id, false)
		if err != nil {
			return err
		}
		return r.hooks.AfterUpdate(ctx, tx, snapshot, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a work order. Its items are deleted first, each producing its own audit
// record, and the whole operation is one transaction.
func (r *WorkOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		wo, err := getWorkOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if wo == nil {
			return ErrNotFound
		}

		items, err := listWorkOrderItems(ctx, tx, wo.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if _, err := tx.ExecContext(ctx, `DELETE FROM work_order_item WHERE id = $1`, item.ID); err != nil {
				return fmt.Errorf("failed to delete work order item: %w", err)
			}
			if err := r.hooks.AfterDelete(ctx, tx, item); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM work_order WHERE id = $1`, wo.ID); err != nil {
			return mapPQError(err, "failed to delete work order")
		}
		return r.hooks.AfterDelete(ctx, tx, wo)
	})
}

// LookupAuditParent resolves a work order's key and the item numbers of its current items,
// returning nil when the work order does not exist
func (r *WorkOrderRepository) LookupAuditParent(ctx context.Context, id uuid.UUID) (*audit.ParentRef, error) {
	var key int64
	err := r.db.GetContext(ctx, &key, `SELECT id FROM work_order WHERE uuid = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work order: %w", err)
	}

	var rows []struct {
		UUID       uuid.UUID `db:"uuid"`
		ItemNumber int       `db:"item_number"`
	}
	err = r.db.SelectContext(ctx, &rows,
		`SELECT uuid, item_number FROM work_order_item WHERE work_order_id = $1`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list work order item numbers: %w", err)
	}

	ref := &audit.ParentRef{Key: key, ChildLabels: make(map[uuid.UUID]int, len(rows))}
	for _, row := range rows {
		ref.ChildLabels[row.UUID] = row.ItemNumber
	}
	return ref, nil
}

// resolveAircraft sets AircraftID from AircraftUUID. On create, empty aircraft fields are
// copied from the aircraft row.
func (r *WorkOrderRepository) resolveAircraft(ctx context.Context, tx *sqlx.Tx, wo *models.WorkOrder, fill bool) error {
	if wo.AircraftUUID == nil {
		wo.AircraftID = nil
		return nil
	}
	aircraft, err := getAircraft(ctx, tx, *wo.AircraftUUID, false)
	if err != nil {
		return err
	}
	if aircraft == nil {
		return fmt.Errorf("%w: aircraft %s", ErrInvalidReference, *wo.AircraftUUID)
	}
	wo.AircraftID = &aircraft.ID

	if fill {
		if wo.AircraftRegistration == nil {
			wo.AircraftRegistration = &aircraft.RegistrationNumber
		}
		if wo.AircraftSerial == nil {
			wo.AircraftSerial = aircraft.SerialNumber
		}
		if wo.AircraftMake == nil {
			wo.AircraftMake = aircraft.Make
		}
		if wo.AircraftModel == nil {
			wo.AircraftModel = aircraft.Model
		}
		if wo.AircraftYear == nil {
			wo.AircraftYear = aircraft.YearBuilt
		}
	}
	return nil
}

// resolveCustomer sets CustomerID from CustomerUUID. On create, an empty customer name is
// copied from the customer row.
func (r *WorkOrderRepository) resolveCustomer(ctx context.Context, tx *sqlx.Tx, wo *models.WorkOrder, fill bool) error {
	if wo.CustomerUUID == nil {
		wo.CustomerID = nil
		return nil
	}
	customer, err := getCustomer(ctx, tx, *wo.CustomerUUID, false)
	if err != nil {
		return err
	}
	if customer == nil {
		return fmt.Errorf("%w: customer %s", ErrInvalidReference, *wo.CustomerUUID)
	}
	wo.CustomerID = &customer.ID

	if fill && wo.CustomerName == nil {
		wo.CustomerName = &customer.Name
	}
	return nil
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

var _ audit.ParentLookup = (*WorkOrderRepository)(nil)
