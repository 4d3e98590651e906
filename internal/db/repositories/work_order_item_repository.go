package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

const workOrderItemColumns = `i.id, i.uuid, i.work_order_id, i.item_number, i.status, i.discrepancy,
		i.corrective_action, i.notes, i.category, i.sub_category, i.ata_code, i.hours_estimate,
		i.billing_method, i.flat_rate, i.department, i.do_not_bill, i.enable_rii, i.created_by,
		i.updated_by, i.created_at, i.updated_at, wo.uuid AS work_order_uuid`

const workOrderItemFrom = ` FROM work_order_item i JOIN work_order wo ON wo.id = i.work_order_id`

// WorkOrderItemRepository handles work order item database operations. Every write reports
// to the audit hooks inside its transaction.
type WorkOrderItemRepository struct {
	db    *sqlx.DB
	hooks audit.Hooks
}

// NewWorkOrderItemRepository creates a new WorkOrderItemRepository. A nil hooks disables auditing.
func NewWorkOrderItemRepository(db *sqlx.DB, hooks audit.Hooks) *WorkOrderItemRepository {
	if hooks == nil {
		hooks = audit.NoopHooks{}
	}
	return &WorkOrderItemRepository{db: db, hooks: hooks}
}

// List returns a work order's items ordered by item number, or nil when the work order does
// not exist
func (r *WorkOrderItemRepository) List(ctx context.Context, workOrderID uuid.UUID) ([]*models.WorkOrderItem, error) {
	key, err := workOrderKey(ctx, r.db, workOrderID, false)
	if err != nil || key == 0 {
		return nil, err
	}
	return listWorkOrderItems(ctx, r.db, key)
}

func listWorkOrderItems(ctx context.Context, q sqlx.QueryerContext, workOrderKey int64) ([]*models.WorkOrderItem, error) {
	query := `SELECT ` + workOrderItemColumns + workOrderItemFrom +
		` WHERE i.work_order_id = $1 ORDER BY i.item_number`

	items := make([]*models.WorkOrderItem, 0)
	if err := sqlx.SelectContext(ctx, q, &items, query, workOrderKey); err != nil {
		return nil, fmt.Errorf("failed to list work order items: %w", err)
	}
	return items, nil
}

// Get retrieves an item of the given work order
func (r *WorkOrderItemRepository) Get(ctx context.Context, workOrderID, itemID uuid.UUID) (*models.WorkOrderItem, error) {
	return getWorkOrderItem(ctx, r.db, workOrderID, itemID, false)
}

func getWorkOrderItem(ctx context.Context, q sqlx.QueryerContext, workOrderID, itemID uuid.UUID, lock bool) (*models.WorkOrderItem, error) {
	query := `SELECT ` + workOrderItemColumns + workOrderItemFrom + ` WHERE wo.uuid = $1 AND i.uuid = $2`
	if lock {
		query += ` FOR UPDATE OF i`
	}

	var item models.WorkOrderItem
	err := sqlx.GetContext(ctx, q, &item, query, workOrderID, itemID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work order item: %w", err)
	}
	return &item, nil
}

// workOrderKey resolves a work order's key, returning 0 when it does not exist. With lock
// the work order row is held until the transaction ends, serializing item numbering.
func workOrderKey(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock bool) (int64, error) {
	query := `SELECT id FROM work_order WHERE uuid = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var key int64
	err := sqlx.GetContext(ctx, q, &key, query, id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get work order: %w", err)
	}
	return key, nil
}

func nextWorkOrderItemNumber(ctx context.Context, tx *sqlx.Tx, workOrderKey int64) (int, error) {
	var next int
	err := tx.GetContext(ctx, &next,
		`SELECT COALESCE(MAX(item_number), 0) + 1 FROM work_order_item WHERE work_order_id = $1`, workOrderKey)
	if err != nil {
		return 0, fmt.Errorf("failed to get next item number: %w", err)
	}
	return next, nil
}

// insertWorkOrderItem inserts item, reloads it and reports the insert to hooks
func insertWorkOrderItem(ctx context.Context, tx *sqlx.Tx, hooks audit.Hooks, item *models.WorkOrderItem) (*models.WorkOrderItem, error) {
	if item.Status == "" {
		item.Status = models.ItemStatusOpen
	}
	if item.BillingMethod == "" {
		item.BillingMethod = models.BillingMethodHourly
	}

	query := `
		INSERT INTO work_order_item (work_order_id, item_number, status, discrepancy, corrective_action,
			notes, category, sub_category, ata_code, hours_estimate, billing_method, flat_rate, department,
			do_not_bill, enable_rii, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	var key int64
	err := tx.QueryRowxContext(ctx, query,
		item.WorkOrderID, item.ItemNumber, item.Status, item.Discrepancy, item.CorrectiveAction,
		item.Notes, item.Category, item.SubCategory, item.ATACode, item.HoursEstimate, item.BillingMethod,
		item.FlatRate, item.Department, item.DoNotBill, item.EnableRII, item.CreatedBy,
	).Scan(&key)
	if err != nil {
		return nil, mapPQError(err, "failed to create work order item")
	}

	var created models.WorkOrderItem
	if err := tx.GetContext(ctx, &created, `SELECT `+workOrderItemColumns+workOrderItemFrom+` WHERE i.id = $1`, key); err != nil {
		return nil, fmt.Errorf("failed to get work order item: %w", err)
	}
	if err := hooks.AfterInsert(ctx, tx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Create adds an item to the work order, numbered after its current last item. Returns
// ErrNotFound when the work order does not exist.
func (r *WorkOrderItemRepository) Create(ctx context.Context, workOrderID uuid.UUID, item *models.WorkOrderItem) (*models.WorkOrderItem, error) {
	var created *models.WorkOrderItem
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		key, err := workOrderKey(ctx, tx, workOrderID, true)
		if err != nil {
			return err
		}
		if key == 0 {
			return fmt.Errorf("%w: work order %s", ErrNotFound, workOrderID)
		}

		next, err := nextWorkOrderItemNumber(ctx, tx, key)
		if err != nil {
			return err
		}
		item.WorkOrderID = key
		item.ItemNumber = next

		created, err = insertWorkOrderItem(ctx, tx, r.hooks, item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update loads the item, lets apply modify it and persists the result. Nothing is written
// when apply changes no column. Returns nil when the item does not exist.
func (r *WorkOrderItemRepository) Update(ctx context.Context, workOrderID, itemID uuid.UUID, apply func(*models.WorkOrderItem) error) (*models.WorkOrderItem, error) {
	var updated *models.WorkOrderItem
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		item, err := getWorkOrderItem(ctx, tx, workOrderID, itemID, true)
		if err != nil || item == nil {
			return err
		}

		snapshot := audit.TakeSnapshot(item)
		if err := apply(item); err != nil {
			return err
		}
		if len(snapshot.ChangedFields(item)) == 0 {
			updated = item
			return nil
		}

		query := `
			UPDATE work_order_item
			SET status = $2, discrepancy = $3, corrective_action = $4, notes = $5, category = $6,
				sub_category = $7, ata_code = $8, hours_estimate = $9, billing_method = $10, flat_rate = $11,
				department = $12, do_not_bill = $13, enable_rii = $14, updated_by = $15, updated_at = now()
			WHERE id = $1
		`
		_, err = tx.ExecContext(ctx, query,
			item.ID, item.Status, item.Discrepancy, item.CorrectiveAction, item.Notes, item.Category,
			item.SubCategory, item.ATACode, item.HoursEstimate, item.BillingMethod, item.FlatRate,
			item.Department, item.DoNotBill, item.EnableRII, item.UpdatedBy,
		)
		if err != nil {
			return mapPQError(err, "failed to update work order item")
		}

		updated, err = getWorkOrderItem(ctx, tx, workOrderID, itemID, false)
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

// Delete removes an item of the given work order
func (r *WorkOrderItemRepository) Delete(ctx context.Context, workOrderID, itemID uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		item, err := getWorkOrderItem(ctx, tx, workOrderID, itemID, true)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM work_order_item WHERE id = $1`, item.ID); err != nil {
			return fmt.Errorf("failed to delete work order item: %w", err)
		}
		return r.hooks.AfterDelete(ctx, tx, item)
	})
}
