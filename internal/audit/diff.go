package audit

import (
	"bytes"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot holds the persisted field values of an entity as loaded at the start of a write.
// Pointer fields are stored dereferenced so later mutation through the entity cannot alter it.
type Snapshot struct {
	typ    reflect.Type
	values map[string]any
}

// TakeSnapshot copies the persisted fields of entity. A nil or non-struct entity produces an
// empty snapshot.
func TakeSnapshot(entity any) *Snapshot {
	s := &Snapshot{values: map[string]any{}}
	rv, ok := structValue(entity)
	if !ok {
		return s
	}
	s.typ = rv.Type()
	for _, f := range persistedFields(s.typ) {
		s.values[f.column] = copyValue(fieldValue(rv, f))
	}
	return s
}

// Value returns the snapshotted value of a column
func (s *Snapshot) Value(column string) (any, bool) {
	v, ok := s.values[column]
	return v, ok
}

// ChangedFields returns the columns whose current value in entity differs from the snapshot,
// in field declaration order.
func (s *Snapshot) ChangedFields(entity any) []string {
	if s == nil {
		return nil
	}
	rv, ok := structValue(entity)
	if !ok || s.typ == nil || rv.Type() != s.typ {
		return nil
	}

	var changed []string
	for _, f := range persistedFields(s.typ) {
		current := copyValue(fieldValue(rv, f))
		if !valuesEqual(s.values[f.column], current) {
			changed = append(changed, f.column)
		}
	}
	return changed
}

// OldValues returns the serialized snapshot value of every changed column. A column that was
// unset in the snapshot maps to nil.
func (s *Snapshot) OldValues(entity any) map[string]any {
	return s.ValuesOf(s.ChangedFields(entity))
}

// ValuesOf returns the serialized snapshot values of the given columns
func (s *Snapshot) ValuesOf(columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, column := range columns {
		out[column] = serializeValue(s.values[column])
	}
	return out
}

// copyValue dereferences pointers and clones byte slices so the copy does not alias the entity
func copyValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			return rv.Interface()
		}
		clone := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(clone, rv)
		return clone.Interface()
	}
	return rv.Interface()
}

// valuesEqual compares two dereferenced field values. Time and decimal values compare by the
// instant or amount they represent rather than by representation.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case decimal.Decimal:
		y, ok := b.(decimal.Decimal)
		return ok && x.Equal(y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	}
	return reflect.DeepEqual(a, b)
}
