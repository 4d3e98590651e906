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

const laborKitColumns = `k.id, k.uuid, k.name, k.description, k.category, k.is_active, k.created_by, k.updated_by,
		k.created_at, k.updated_at,
		(SELECT COUNT(*) FROM labor_kit_item li WHERE li.labor_kit_id = k.id) AS item_count`

const laborKitItemColumns = `li.id, li.uuid, li.labor_kit_id, li.item_number, li.discrepancy, li.corrective_action,
		li.notes, li.category, li.sub_category, li.ata_code, li.hours_estimate, li.billing_method,
		li.flat_rate, li.department, li.do_not_bill, li.enable_rii, li.created_by, li.updated_by,
		li.created_at, li.updated_at, k.uuid AS labor_kit_uuid`

const laborKitItemFrom = ` FROM labor_kit_item li JOIN labor_kit k ON k.id = li.labor_kit_id`

var laborKitSortColumns = map[string]string{
	"name":       "k.name",
	"category":   "k.category",
	"is_active":  "k.is_active",
	"created_at": "k.created_at",
}

var laborKitItemSortColumns = map[string]string{
	"item_number":    "li.item_number",
	"category":       "li.category",
	"hours_estimate": "li.hours_estimate",
}

// LaborKitFilter narrows a labor kit listing
type LaborKitFilter struct {
	Search     string
	Category   string
	ActiveOnly bool
}

// LaborKitRepository handles labor kit and labor kit item database operations
type LaborKitRepository struct {
	db    *sqlx.DB
	hooks audit.Hooks
}

// NewLaborKitRepository creates a new LaborKitRepository. hooks receives the work order items
// created when a kit is applied; nil disables auditing.
func NewLaborKitRepository(db *sqlx.DB, hooks audit.Hooks) *LaborKitRepository {
	if hooks == nil {
		hooks = audit.NoopHooks{}
	}
	return &LaborKitRepository{db: db, hooks: hooks}
}

// List returns one page of labor kits and the total number matching the filter
func (r *LaborKitRepository) List(ctx context.Context, kf LaborKitFilter, s Sort, p Pagination) ([]*models.LaborKit, int, error) {
	f := &filter{}
	if kf.ActiveOnly {
		f.add("k.is_active = true")
	}
	if kf.Category != "" {
		f.add("k.category = $%d", kf.Category)
	}
	if kf.Search != "" {
		f.add("(k.name ILIKE $%[1]d OR k.description ILIKE $%[1]d)", likePattern(kf.Search))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM labor_kit k`+f.where(), f.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count labor kits: %w", err)
	}

	pageClause, args := f.page(p.Limit(), p.Offset())
	query := `SELECT ` + laborKitColumns + ` FROM labor_kit k` + f.where() +
		orderBy(s, laborKitSortColumns, "name", "k.id") + pageClause

	kits := make([]*models.LaborKit, 0)
	if err := r.db.SelectContext(ctx, &kits, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list labor kits: %w", err)
	}
	return kits, total, nil
}

// Get retrieves a labor kit by its external id
func (r *LaborKitRepository) Get(ctx context.Context, id uuid.UUID) (*models.LaborKit, error) {
	return getLaborKit(ctx, r.db, id, false)
}

func getLaborKit(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock bool) (*models.LaborKit, error) {
	query := `SELECT ` + laborKitColumns + ` FROM labor_kit k WHERE k.uuid = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var kit models.LaborKit
	err := sqlx.GetContext(ctx, q, &kit, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get labor kit: %w", err)
	}
	return &kit, nil
}

// Create inserts a new labor kit
func (r *LaborKitRepository) Create(ctx context.Context, kit *models.LaborKit) (*models.LaborKit, error) {
	query := `
		INSERT INTO labor_kit (name, description, category, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, uuid, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		kit.Name, kit.Description, kit.Category, kit.IsActive, kit.CreatedBy,
	).Scan(&kit.ID, &kit.UUID, &kit.CreatedAt, &kit.UpdatedAt)
	if err != nil {
		return nil, mapPQError(err, "failed to create labor kit")
	}
	return kit, nil
}

// Update loads the kit, lets apply modify it and persists it. Returns nil when the kit does
// not exist.
func (r *LaborKitRepository) Update(ctx context.Context, id uuid.UUID, apply func(*models.LaborKit) error) (*models.LaborKit, error) {
	var updated *models.LaborKit
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		kit, err := getLaborKit(ctx, tx, id, true)
		if err != nil || kit == nil {
			return err
		}
		if err := apply(kit); err != nil {
			return err
		}

		query := `
			UPDATE labor_kit
			SET name = $2, description = $3, category = $4, is_active = $5, updated_by = $6, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`
		err = tx.QueryRowxContext(ctx, query,
			kit.ID, kit.Name, kit.Description, kit.Category, kit.IsActive, kit.UpdatedBy,
		).Scan(&kit.UpdatedAt)
		if err != nil {
			return mapPQError(err, "failed to update labor kit")
		}
		updated = kit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a labor kit; its items are removed by cascade
func (r *LaborKitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM labor_kit WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete labor kit: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// laborKitKey resolves a kit's key, returning 0 when it does not exist
func laborKitKey(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock bool) (int64, error) {
	query := `SELECT id FROM labor_kit WHERE uuid = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var key int64
	err := sqlx.GetContext(ctx, q, &key, query, id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get labor kit: %w", err)
	}
	return key, nil
}

// ListItems returns a kit's items, or nil when the kit does not exist
func (r *LaborKitRepository) ListItems(ctx context.Context, kitID uuid.UUID, s Sort) ([]*models.LaborKitItem, error) {
	key, err := laborKitKey(ctx, r.db, kitID, false)
	if err != nil || key == 0 {
		return nil, err
	}
	return listLaborKitItems(ctx, r.db, key, s)
}

func listLaborKitItems(ctx context.Context, q sqlx.QueryerContext, kitKey int64, s Sort) ([]*models.LaborKitItem, error) {
	query := `SELECT ` + laborKitItemColumns + laborKitItemFrom + ` WHERE li.labor_kit_id = $1` +
		orderBy(s, laborKitItemSortColumns, "item_number", "li.id")

	items := make([]*models.LaborKitItem, 0)
	if err := sqlx.SelectContext(ctx, q, &items, query, kitKey); err != nil {
		return nil, fmt.Errorf("failed to list labor kit items: %w", err)
	}
	return items, nil
}

// GetItem retrieves an item of the given kit
func (r *LaborKitRepository) GetItem(ctx context.Context, kitID, itemID uuid.UUID) (*models.LaborKitItem, error) {
	return getLaborKitItem(ctx, r.db, kitID, itemID, false)
}

func getLaborKitItem(ctx context.Context, q sqlx.QueryerContext, kitID, itemID uuid.UUID, lock bool) (*models.LaborKitItem, error) {
	query := `SELECT ` + laborKitItemColumns + laborKitItemFrom + ` WHERE k.uuid = $1 AND li.uuid = $2`
	if lock {
		query += ` FOR UPDATE OF li`
	}

	var item models.LaborKitItem
	err := sqlx.GetContext(ctx, q, &item, query, kitID, itemID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get labor kit item: %w", err)
	}
	return &item, nil
}

// CreateItem adds an item to the kit, numbered after its current last item. Returns
// ErrNotFound when the kit does not exist.
func (r *LaborKitRepository) CreateItem(ctx context.Context, kitID uuid.UUID, item *models.LaborKitItem) (*models.LaborKitItem, error) {
	if item.BillingMethod == "" {
		item.BillingMethod = models.BillingMethodHourly
	}

	var created models.LaborKitItem
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		key, err := laborKitKey(ctx, tx, kitID, true)
		if err != nil {
			return err
		}
		if key == 0 {
			return fmt.Errorf("%w: labor kit %s", ErrNotFound, kitID)
		}

		query := `
			INSERT INTO labor_kit_item (labor_kit_id, item_number, discrepancy, corrective_action, notes,
				category, sub_category, ata_code, hours_estimate, billing_method, flat_rate, department,
				do_not_bill, enable_rii, created_by)
			VALUES ($1, (SELECT COALESCE(MAX(item_number), 0) + 1 FROM labor_kit_item WHERE labor_kit_id = $1),
				$2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id
		`
		var itemKey int64
		err = tx.QueryRowxContext(ctx, query,
			key, item.Discrepancy, item.CorrectiveAction, item.Notes, item.Category, item.SubCategory,
			item.ATACode, item.HoursEstimate, item.BillingMethod, item.FlatRate, item.Department,
			item.DoNotBill, item.EnableRII, item.CreatedBy,
		).Scan(&itemKey)
		if err != nil {
			return mapPQError(err, "failed to create labor kit item")
		}

		err = tx.GetContext(ctx, &created, `SELECT `+laborKitItemColumns+laborKitItemFrom+` WHERE li.id = $1`, itemKey)
		if err != nil {
			return fmt.Errorf("failed to get labor kit item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateItem loads the item, lets apply modify it and persists it. Returns nil when the item
// does not exist.
func (r *LaborKitRepository) UpdateItem(ctx context.Context, kitID, itemID uuid.UUID, apply func(*models.LaborKitItem) error) (*models.LaborKitItem, error) {
	var updated *models.LaborKitItem
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		item, err := getLaborKitItem(ctx, tx, kitID, itemID, true)
		if err != nil || item == nil {
			return err
		}
		if err := apply(item); err != nil {
			return err
		}

		query := `
			UPDATE labor_kit_item
			SET discrepancy = $2, corrective_action = $3, notes = $4, category = $5, sub_category = $6,
				ata_code = $7, hours_estimate = $8, billing_method = $9, flat_rate = $10, department = $11,
				do_not_bill = $12, enable_rii = $13, updated_by = $14, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`
		err = tx.QueryRowxContext(ctx, query,
			item.ID, item.Discrepancy, item.CorrectiveAction, item.Notes, item.Category, item.SubCategory,
			item.ATACode, item.HoursEstimate, item.BillingMethod, item.FlatRate, item.Department,
			item.DoNotBill, item.EnableRII, item.UpdatedBy,
		).Scan(&item.UpdatedAt)
		if err != nil {
			return mapPQError(err, "failed to update labor kit item")
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteItem removes an item of the given kit
func (r *LaborKitRepository) DeleteItem(ctx context.Context, kitID, itemID uuid.UUID) error {
	query := `
		DELETE FROM labor_kit_item li
		USING labor_kit k
		WHERE k.id = li.labor_kit_id AND k.uuid = $1 AND li.uuid = $2
	`
	result, err := r.db.ExecContext(ctx, query, kitID, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete labor kit item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Apply copies every item of an active kit onto the work order, numbered after the work
// order's last item, in one transaction. Each copy is audited as an INSERT. Returns the
// number of items created, or an ErrNotApplicable error when the kit is missing or inactive
// or the work order is missing.
func (r *LaborKitRepository) Apply(ctx context.Context, kitID, workOrderID uuid.UUID, createdBy string) (int, error) {
	created := 0
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		kit, err := getLaborKit(ctx, tx, kitID, false)
		if err != nil {
			return err
		}
		if kit == nil {
			return fmt.Errorf("%w: labor kit not found", ErrNotApplicable)
		}
		if !kit.IsActive {
			return fmt.Errorf("%w: labor kit is not active", ErrNotApplicable)
		}

		woKey, err := workOrderKey(ctx, tx, workOrderID, true)
		if err != nil {
			return err
		}
		if woKey == 0 {
			return fmt.Errorf("%w: work order not found", ErrNotApplicable)
		}

		kitItems, err := listLaborKitItems(ctx, tx, kit.ID, Sort{By: "item_number", Order: "asc"})
		if err != nil {
			return err
		}
		if len(kitItems) == 0 {
			return nil
		}

		next, err := nextWorkOrderItemNumber(ctx, tx, woKey)
		if err != nil {
			return err
		}
		for _, kitItem := range kitItems {
			item := kitItem.ToWorkOrderItem(woKey, next, createdBy)
			if _, err := insertWorkOrderItem(ctx, tx, r.hooks, item); err != nil {
				return err
			}
			next++
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
