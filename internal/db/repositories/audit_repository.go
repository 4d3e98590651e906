// audit_repository.go implements AuditRepository, the append-only store behind the audit
// subsystem. It only inserts and reads audit_log rows.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

const auditRecordColumns = `id, entity_type, entity_id, action, old_values, new_values, changed_fields,
		user_id, session_id, host(ip_address) AS ip_address, parent_entity_id, created_at`

// AuditRepository handles audit_log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// InsertRecord appends rec through tx and fills its id and created_at
func (r *AuditRepository) InsertRecord(ctx context.Context, tx sqlx.ExtContext, rec *models.AuditRecord) error {
	query := `
		INSERT INTO audit_log (entity_type, entity_id, action, old_values, new_values, changed_fields,
			user_id, session_id, ip_address, parent_entity_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		rec.EntityType,
		rec.EntityID,
		rec.Action,
		rec.OldValues,
		rec.NewValues,
		rec.ChangedFields,
		rec.UserID,
		rec.SessionID,
		rec.IPAddress,
		rec.ParentEntityID,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// ListEntityHistory returns one page of an entity's records, newest first, and the total count
func (r *AuditRepository) ListEntityHistory(ctx context.Context, q audit.HistoryQuery) ([]*models.AuditRecord, int, error) {
	f := &filter{}
	f.add("entity_type = $%d", q.EntityType)
	f.add("entity_id = $%d", q.EntityID)
	if q.Filter.From != nil {
		f.add("created_at >= $%d", *q.Filter.From)
	}
	if q.Filter.To != nil {
		f.add("created_at <= $%d", *q.Filter.To)
	}
	if q.Filter.Action != "" {
		f.add("action = $%d", string(q.Filter.Action))
	}
	if q.Filter.UserID != "" {
		f.add("user_id = $%d", q.Filter.UserID)
	}

	return r.list(ctx, f, q.Limit, q.Offset)
}

// ListCombinedHistory returns one page of a parent's records merged with its children's,
// newest first. Children are matched by parent_entity_id, or by the foreign key inside their
// new or old values for records written without it.
func (r *AuditRepository) ListCombinedHistory(ctx context.Context, q audit.CombinedQuery) ([]*models.AuditRecord, int, error) {
	containment, err := json.Marshal(map[string]int64{q.ForeignKey: q.ParentKey})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build containment document: %w", err)
	}

	f := &filter{}
	f.add(`((entity_type = $%d AND entity_id = $%d)
		OR (entity_type = $%d AND (parent_entity_id = $%d OR new_values @> $%d::jsonb OR old_values @> $%d::jsonb)))`,
		q.ParentType, q.ParentID, q.ChildType, q.ParentKey, string(containment), string(containment))

	return r.list(ctx, f, q.Limit, q.Offset)
}

func (r *AuditRepository) list(ctx context.Context, f *filter, limit, offset int) ([]*models.AuditRecord, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_log`+f.where(), f.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	pageClause, args := f.page(limit, offset)
	query := `SELECT ` + auditRecordColumns + ` FROM audit_log` + f.where() +
		` ORDER BY created_at DESC, id DESC` + pageClause

	records := make([]*models.AuditRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, total, nil
}

// LatestRecords returns the most recent audit records across all entities
func (r *AuditRepository) LatestRecords(ctx context.Context, limit int) ([]*models.AuditRecord, error) {
	records := make([]*models.AuditRecord, 0)
	query := `SELECT ` + auditRecordColumns + ` FROM audit_log ORDER BY created_at DESC, id DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list latest audit records: %w", err)
	}
	return records, nil
}

// CountByEntityType returns the number of records per entity type
func (r *AuditRepository) CountByEntityType(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		EntityType string `db:"entity_type"`
		Count      int    `db:"count"`
	}
	query := `SELECT entity_type, COUNT(*) AS count FROM audit_log GROUP BY entity_type`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count audit records: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.EntityType] = row.Count
	}
	return counts, nil
}

var (
	_ audit.RecordStore  = (*AuditRepository)(nil)
	_ audit.HistoryStore = (*AuditRepository)(nil)
)
