// Package audit records INSERT, UPDATE and DELETE changes of auditable entities into the
// append-only audit_log table and answers history queries over it.
//
// Writes are captured by snapshot-and-diff: repositories take a Snapshot of a row when they
// load it inside the write transaction, apply the change, and hand both to the Registry hooks,
// which serialize the row with SerializeFields and insert an AuditRecord through the same
// transaction. The acting user, session and client IP come from the RequestContext carried by
// the request's context.Context.
package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

// ToJSONValue converts a single Go value into a value encoding/json can always marshal.
//
// Timestamps become RFC 3339 strings, calendar dates YYYY-MM-DD, UUIDs their canonical string,
// decimals float64 and byte slices UTF-8 strings with invalid bytes replaced. Pointers are
// dereferenced, with nil mapping to nil. driver.Valuer types yield their driver value. Other
// values go through a JSON round trip; when that fails the value's String or Error form is
// used, and values without one produce an *UnsupportedTypeError.
func ToJSONValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	v = rv.Interface()

	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case models.Date:
		return x.String(), nil
	case civil.Date:
		return x.String(), nil
	case uuid.UUID:
		return x.String(), nil
	case decimal.Decimal:
		return x.InexactFloat64(), nil
	case []byte:
		return strings.ToValidUTF8(string(x), "\uFFFD"), nil
	case json.RawMessage:
		return decodeJSON(x, v)
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Type().PkgPath() == "" {
			return v, nil
		}
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Type().PkgPath() == "" {
			return v, nil
		}
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		// JSON has no NaN or Inf
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		}
		if rv.Type().PkgPath() == "" {
			return v, nil
		}
		return f, nil
	case reflect.Map, reflect.Slice, reflect.Array:
		// containers such as JSONMap and pq.StringArray also implement driver.Valuer, but
		// their JSON form is the useful one
		return encodeJSON(v)
	}

	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return stringForm(v)
		}
		return ToJSONValue(dv)
	}

	return encodeJSON(v)
}

// encodeJSON round-trips v through encoding/json
func encodeJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return stringForm(v)
	}
	return decodeJSON(b, v)
}

func decodeJSON(b []byte, orig any) (any, error) {
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return stringForm(orig)
	}
	return out, nil
}

// stringForm is the last resort for values encoding/json rejects
func stringForm(v any) (any, error) {
	switch x := v.(type) {
	case fmt.Stringer:
		return x.String(), nil
	case error:
		return x.Error(), nil
	}
	return nil, &UnsupportedTypeError{TypeName: typeName(v)}
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// field describes one persisted struct field
type field struct {
	column string
	index  []int
}

var fieldCache sync.Map // reflect.Type -> []field

// persistedFields lists the db-tagged fields of t in declaration order, flattening embedded
// structs. Fields tagged db:"-" or audit:"-" are skipped.
func persistedFields(t reflect.Type) []field {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]field)
	}
	fields := collectFields(t, nil)
	fieldCache.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, parent []int) []field {
	var fields []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		tag, hasTag := sf.Tag.Lookup("db")
		if sf.Anonymous && !hasTag {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct {
				fields = append(fields, collectFields(et, index)...)
			}
			continue
		}

		if !sf.IsExported() || !hasTag {
			continue
		}
		column, _, _ := strings.Cut(tag, ",")
		if column == "" || column == "-" || sf.Tag.Get("audit") == "-" {
			continue
		}
		fields = append(fields, field{column: column, index: index})
	}
	return fields
}

// structValue dereferences entity down to its struct value
func structValue(entity any) (reflect.Value, bool) {
	if entity == nil {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	return rv, rv.Kind() == reflect.Struct
}

// fieldValue returns the field's value, or nil when it sits behind a nil embedded pointer
func fieldValue(rv reflect.Value, f field) any {
	fv, err := rv.FieldByIndexErr(f.index)
	if err != nil {
		return nil
	}
	return fv.Interface()
}

// SerializeFields returns the persisted fields of entity keyed by column name, each converted
// with ToJSONValue. Columns named in exclude are omitted. A value that cannot be converted is
// stored as its fmt.Sprint form, so this never fails.
func SerializeFields(entity any, exclude ...string) map[string]any {
	out := map[string]any{}
	rv, ok := structValue(entity)
	if !ok {
		return out
	}

	skip := excludeSet(exclude)
	for _, f := range persistedFields(rv.Type()) {
		if skip[f.column] {
			continue
		}
		out[f.column] = serializeValue(fieldValue(rv, f))
	}
	return out
}

func serializeValue(v any) any {
	jv, err := ToJSONValue(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return jv
}

func excludeSet(exclude []string) map[string]bool {
	if len(exclude) == 0 {
		return nil
	}
	set := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		set[name] = true
	}
	return set
}
