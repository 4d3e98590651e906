package audit

import (
	"context"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Auditable is implemented by entities whose writes are recorded
type Auditable interface {
	// TableName is the storage name of the entity, used as its audit entity_type
	TableName() string
	// AuditEntityID is the external identifier recorded in entity_id
	AuditEntityID() uuid.UUID
}

// EntityTypeNamer overrides the audit entity_type of an Auditable
type EntityTypeNamer interface {
	AuditEntityType() string
}

// ParentReferencer is implemented by child entities that record the internal key of their
// parent, so combined histories can find them after the child row is gone.
type ParentReferencer interface {
	AuditParentID() *int64
}

// ResolveEntityType returns the override name when entity declares one, else its table name
func ResolveEntityType(entity Auditable) string {
	if namer, ok := entity.(EntityTypeNamer); ok {
		if name := namer.AuditEntityType(); name != "" {
			return name
		}
	}
	return entity.TableName()
}

// Hooks is called by repositories after each write of an entity, inside the write's
// transaction. Implementations ignore entity types they do not track.
type Hooks interface {
	AfterInsert(ctx context.Context, tx sqlx.ExtContext, entity any) error
	AfterUpdate(ctx context.Context, tx sqlx.ExtContext, snapshot *Snapshot, entity any) error
	AfterDelete(ctx context.Context, tx sqlx.ExtContext, entity any) error
}

// Registry tracks which entity types are audited and routes their lifecycle hooks to a
// Recorder. It is populated once at startup.
type Registry struct {
	recorder *Recorder

	mu    sync.RWMutex
	types map[reflect.Type]string
}

// NewRegistry creates an empty registry writing through recorder
func NewRegistry(recorder *Recorder) *Registry {
	return &Registry{
		recorder: recorder,
		types:    make(map[reflect.Type]string),
	}
}

// Register marks the types of the given entities as audited. Registration is idempotent.
// If any entity does not implement Auditable nothing is registered and a
// *MissingCapabilityError naming the first offending type is returned.
func (r *Registry) Register(entities ...any) error {
	resolved := make(map[reflect.Type]string, len(entities))
	for _, e := range entities {
		a, ok := e.(Auditable)
		if !ok {
			return &MissingCapabilityError{TypeName: typeName(e)}
		}
		resolved[baseType(e)] = ResolveEntityType(a)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for t, name := range resolved {
		if _, exists := r.types[t]; !exists {
			slog.Debug("audit: registered entity type", "entity_type", name, "go_type", t.String())
		}
		r.types[t] = name
	}
	return nil
}

// EntityTypes returns the registered entity type names, sorted
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for _, name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether entity's type is audited
func (r *Registry) IsRegistered(entity any) bool {
	_, ok := r.lookup(entity)
	return ok
}

func (r *Registry) lookup(entity any) (Auditable, bool) {
	if entity == nil {
		return nil, false
	}
	a, ok := entity.(Auditable)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	_, registered := r.types[baseType(entity)]
	r.mu.RUnlock()
	return a, registered
}

// AfterInsert records an INSERT for registered entity types
func (r *Registry) AfterInsert(ctx context.Context, tx sqlx.ExtContext, entity any) error {
	a, ok := r.lookup(entity)
	if !ok {
		return nil
	}
	return r.recorder.OnInsert(ctx, tx, a)
}

// AfterUpdate records an UPDATE for registered entity types when something changed
func (r *Registry) AfterUpdate(ctx context.Context, tx sqlx.ExtContext, snapshot *Snapshot, entity any) error {
	a, ok := r.lookup(entity)
	if !ok {
		return nil
	}
	return r.recorder.OnUpdate(ctx, tx, snapshot, a)
}

// AfterDelete records a DELETE for registered entity types
func (r *Registry) AfterDelete(ctx context.Context, tx sqlx.ExtContext, entity any) error {
	a, ok := r.lookup(entity)
	if !ok {
		return nil
	}
	return r.recorder.OnDelete(ctx, tx, a)
}

func baseType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// NoopHooks discards every lifecycle event
type NoopHooks struct{}

func (NoopHooks) AfterInsert(context.Context, sqlx.ExtContext, any) error { return nil }
func (NoopHooks) AfterUpdate(context.Context, sqlx.ExtContext, *Snapshot, any) error {
	return nil
}
func (NoopHooks) AfterDelete(context.Context, sqlx.ExtContext, any) error { return nil }
