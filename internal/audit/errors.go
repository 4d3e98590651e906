package audit

import (
	"fmt"

	"github.com/google/uuid"
)

// UnsupportedTypeError is returned by ToJSONValue for a value that can neither be encoded as
// JSON nor rendered as a string.
type UnsupportedTypeError struct {
	TypeName string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("audit: unsupported value type %s", e.TypeName)
}

// MissingCapabilityError is returned by Registry.Register for a type that does not implement
// Auditable.
type MissingCapabilityError struct {
	TypeName string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("audit: type %s cannot be registered: it does not implement TableName() and AuditEntityID()", e.TypeName)
}

// RequestContextUninitializedError is returned by FromGin when the request context middleware
// did not run for the request.
type RequestContextUninitializedError struct{}

func (e *RequestContextUninitializedError) Error() string {
	return "audit: request context is not initialized; is RequestContextMiddleware installed?"
}

// InvalidPageError reports an out-of-range page or page_size
type InvalidPageError struct {
	Field string
	Value int
}

func (e *InvalidPageError) Error() string {
	switch e.Field {
	case "page":
		return fmt.Sprintf("page must be >= 1, got %d", e.Value)
	default:
		return fmt.Sprintf("page_size must be between 1 and %d, got %d", MaxPageSize, e.Value)
	}
}

// InvalidFilterError reports a history filter that cannot be applied
type InvalidFilterError struct {
	Field  string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParentNotFoundError is returned by GetCombinedHistory when the parent entity does not exist
type ParentNotFoundError struct {
	EntityType string
	EntityID   uuid.UUID
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.EntityType, e.EntityID)
}

// UnknownChildCollectionError is returned by GetCombinedHistory for a parent/child pair that was
// never registered.
type UnknownChildCollectionError struct {
	ParentType string
	ChildType  string
}

func (e *UnknownChildCollectionError) Error() string {
	return fmt.Sprintf("no child collection %s registered for %s", e.ChildType, e.ParentType)
}
