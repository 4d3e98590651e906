package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

func withUser(ctx context.Context) context.Context {
	return WithRequestContext(ctx, NewRequestContext("alice@example.com", "sess-1", "203.0.113.9"))
}

func TestRecorder_OnInsert(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store, "secret")
	o := &order{ID: 4, UUID: uuid.New(), Status: "created", Secret: "x"}

	require.NoError(t, rec.OnInsert(withUser(context.Background()), nil, o))
	require.Len(t, store.records, 1)

	r := store.records[0]
	assert.Equal(t, "orders", r.EntityType)
	assert.Equal(t, o.UUID, r.EntityID)
	assert.Equal(t, models.AuditActionInsert, r.Action)
	assert.Nil(t, r.OldValues)
	assert.Nil(t, r.ChangedFields)
	assert.Equal(t, "created", r.NewValues["status"])
	assert.NotContains(t, r.NewValues, "secret")
	require.NotNil(t, r.UserID)
	assert.Equal(t, "alice@example.com", *r.UserID)
	require.NotNil(t, r.SessionID)
	assert.Equal(t, "sess-1", *r.SessionID)
	require.NotNil(t, r.IPAddress)
	assert.Equal(t, "203.0.113.9", *r.IPAddress)
	assert.Nil(t, r.ParentEntityID)
}

func TestRecorder_OnInsert_NoRequestContext(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store)

	require.NoError(t, rec.OnInsert(context.Background(), nil, &order{UUID: uuid.New()}))
	r := store.records[0]
	assert.Nil(t, r.UserID)
	assert.Nil(t, r.SessionID)
	assert.Nil(t, r.IPAddress)
}

func TestRecorder_OnUpdate(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store)
	o := &order{ID: 4, UUID: uuid.New(), Status: "created"}
	snap := TakeSnapshot(o)

	o.Status = "in_progress"
	o.Notes = strPtr("started")

	require.NoError(t, rec.OnUpdate(withUser(context.Background()), nil, snap, o))
	require.Len(t, store.records, 1)

	r := store.records[0]
	assert.Equal(t, models.AuditActionUpdate, r.Action)
	assert.Equal(t, []string{"status", "notes"}, []string(r.ChangedFields))
	assert.Equal(t, models.JSONMap{"status": "created", "notes": nil}, r.OldValues)
	// new_values carries the full row
	assert.Equal(t, "in_progress", r.NewValues["status"])
	assert.Equal(t, "started", r.NewValues["notes"])
	assert.Equal(t, int64(4), r.NewValues["id"])
}

func TestRecorder_OnUpdate_NoChangeWritesNothing(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store)
	o := &order{UUID: uuid.New(), Status: "created"}

	require.NoError(t, rec.OnUpdate(context.Background(), nil, TakeSnapshot(o), o))
	assert.Empty(t, store.records)
}

func TestRecorder_OnUpdate_OnlyExcludedFieldChanged(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store, "secret")
	o := &order{UUID: uuid.New()}
	snap := TakeSnapshot(o)
	o.Secret = "rotated"

	require.NoError(t, rec.OnUpdate(context.Background(), nil, snap, o))
	assert.Empty(t, store.records)
}

func TestRecorder_OnDelete(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store)
	line := &orderLine{ID: 2, UUID: uuid.New(), OrderID: 77, Number: 3}

	require.NoError(t, rec.OnDelete(context.Background(), nil, line))
	r := store.records[0]
	assert.Equal(t, "line", r.EntityType)
	assert.Equal(t, models.AuditActionDelete, r.Action)
	assert.Nil(t, r.NewValues)
	assert.Nil(t, r.ChangedFields)
	assert.Equal(t, 3, r.OldValues["line_number"])
	require.NotNil(t, r.ParentEntityID)
	assert.Equal(t, int64(77), *r.ParentEntityID)
}

func TestRecorder_StoreFailureIsWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	rec := NewRecorder(&memoryStore{err: cause})

	err := rec.OnInsert(context.Background(), nil, &order{UUID: uuid.New()})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to write audit record")
}
