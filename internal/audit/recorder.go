package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
	"github.com/cirrus-mro/cirrus-api/internal/telemetry"
)

// RecordStore persists audit records. InsertRecord must write through tx so the record commits
// or rolls back with the change it describes, and fills rec.ID and rec.CreatedAt.
type RecordStore interface {
	InsertRecord(ctx context.Context, tx sqlx.ExtContext, rec *models.AuditRecord) error
}

// Recorder builds audit records for entity writes and inserts them through a RecordStore
type Recorder struct {
	store         RecordStore
	excludeFields []string
}

// NewRecorder creates a recorder. Columns named in excludeFields never appear in old_values,
// new_values or changed_fields.
func NewRecorder(store RecordStore, excludeFields ...string) *Recorder {
	return &Recorder{
		store:         store,
		excludeFields: excludeFields,
	}
}

// OnInsert records the full new row
func (r *Recorder) OnInsert(ctx context.Context, tx sqlx.ExtContext, entity Auditable) error {
	rec := r.newRecord(ctx, entity, models.AuditActionInsert)
	rec.NewValues = SerializeFields(entity, r.excludeFields...)
	return r.write(ctx, tx, rec)
}

// OnUpdate records the changed columns' previous values and the full new row. Nothing is
// written when no column changed.
func (r *Recorder) OnUpdate(ctx context.Context, tx sqlx.ExtContext, snapshot *Snapshot, entity Auditable) error {
	changed := r.filterExcluded(snapshot.ChangedFields(entity))
	if len(changed) == 0 {
		return nil
	}

	rec := r.newRecord(ctx, entity, models.AuditActionUpdate)
	rec.OldValues = snapshot.ValuesOf(changed)
	rec.NewValues = SerializeFields(entity, r.excludeFields...)
	rec.ChangedFields = changed
	return r.write(ctx, tx, rec)
}

// OnDelete records the full row as it was before deletion
func (r *Recorder) OnDelete(ctx context.Context, tx sqlx.ExtContext, entity Auditable) error {
	rec := r.newRecord(ctx, entity, models.AuditActionDelete)
	rec.OldValues = SerializeFields(entity, r.excludeFields...)
	return r.write(ctx, tx, rec)
}

func (r *Recorder) newRecord(ctx context.Context, entity Auditable, action models.AuditAction) *models.AuditRecord {
	rec := &models.AuditRecord{
		EntityType: ResolveEntityType(entity),
		EntityID:   entity.AuditEntityID(),
		Action:     action,
	}

	if rc, ok := FromContext(ctx); ok {
		rec.UserID = rc.UserID
		if rc.SessionID != "" {
			sessionID := rc.SessionID
			rec.SessionID = &sessionID
		}
		rec.IPAddress = rc.IPAddress
	}

	if child, ok := entity.(ParentReferencer); ok {
		rec.ParentEntityID = child.AuditParentID()
	}
	return rec
}

func (r *Recorder) write(ctx context.Context, tx sqlx.ExtContext, rec *models.AuditRecord) error {
	if err := r.store.InsertRecord(ctx, tx, rec); err != nil {
		telemetry.AuditWriteFailuresTotal.WithLabelValues(rec.EntityType).Inc()
		slog.Error("audit: failed to write record",
			"entity_type", rec.EntityType,
			"entity_id", rec.EntityID,
			"action", rec.Action,
			"error", err)
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	telemetry.AuditRecordsWrittenTotal.WithLabelValues(rec.EntityType, string(rec.Action)).Inc()
	slog.Debug("audit: record written",
		"id", rec.ID,
		"entity_type", rec.EntityType,
		"entity_id", rec.EntityID,
		"action", rec.Action,
		"changed_fields", []string(rec.ChangedFields))
	return nil
}

func (r *Recorder) filterExcluded(columns []string) []string {
	if len(r.excludeFields) == 0 {
		return columns
	}
	skip := excludeSet(r.excludeFields)
	kept := columns[:0:0]
	for _, c := range columns {
		if !skip[c] {
			kept = append(kept, c)
		}
	}
	return kept
}
