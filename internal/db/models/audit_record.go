// Package models - audit_record.go defines AuditRecord, one immutable row of the audit_log table
// capturing an INSERT, UPDATE or DELETE of an auditable entity together with the acting request.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AuditAction is the closed set of lifecycle transitions that are audited
type AuditAction string

const (
	AuditActionInsert AuditAction = "INSERT"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

// Valid reports whether a is one of the three audited actions
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionInsert, AuditActionUpdate, AuditActionDelete:
		return true
	}
	return false
}

// AuditRecord is an append-only audit log entry
type AuditRecord struct {
	ID            int64          `json:"id" db:"id"`
	EntityType    string         `json:"entity_type" db:"entity_type"`
	EntityID      uuid.UUID      `json:"entity_id" db:"entity_id"`
	Action        AuditAction    `json:"action" db:"action"`
	OldValues     JSONMap        `json:"old_values" db:"old_values"`
	NewValues     JSONMap        `json:"new_values" db:"new_values"`
	ChangedFields pq.StringArray `json:"changed_fields" db:"changed_fields"`
	UserID        *string        `json:"user_id" db:"user_id"`
	SessionID     *string        `json:"session_id" db:"session_id"`
	IPAddress     *string        `json:"ip_address" db:"ip_address"`
	// Internal key of the owning parent row, set for child entities
	ParentEntityID *int64    `json:"-" db:"parent_entity_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
