// Package models - work_order.go defines WorkOrder, the audited unit of shop work for one
// aircraft visit, and the enumerations for its type, status and priority.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Work order types
const (
	WorkOrderTypeWorkOrder     = "work_order"
	WorkOrderTypeWarrantyClaim = "warranty_claim"
)

// Work order statuses
const (
	WorkOrderStatusCreated    = "created"
	WorkOrderStatusScheduled  = "scheduled"
	WorkOrderStatusInProgress = "in_progress"
	WorkOrderStatusOnHold     = "on_hold"
	WorkOrderStatusCompleted  = "completed"
	WorkOrderStatusCancelled  = "cancelled"
	WorkOrderStatusInvoiced   = "invoiced"
)

// ClosedWorkOrderStatuses are the terminal statuses; anything else counts as open
var ClosedWorkOrderStatuses = []string{
	WorkOrderStatusCompleted,
	WorkOrderStatusCancelled,
	WorkOrderStatusInvoiced,
}

// Priority levels
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// WorkOrder represents a shop work order
type WorkOrder struct {
	ID                   int64      `json:"-" db:"id"`
	UUID                 uuid.UUID  `json:"id" db:"uuid"`
	WorkOrderNumber      string     `json:"work_order_number" db:"work_order_number"`
	SequenceNumber       int        `json:"sequence_number" db:"sequence_number"`
	CityID               int64      `json:"-" db:"city_id"`
	AircraftID           *int64     `json:"-" db:"aircraft_id"`
	CustomerID           *int64     `json:"-" db:"customer_id"`
	WorkOrderType        string     `json:"work_order_type" db:"work_order_type"`
	Status               string     `json:"status" db:"status"`
	StatusNotes          *string    `json:"status_notes" db:"status_notes"`
	AircraftRegistration *string    `json:"aircraft_registration" db:"aircraft_registration"`
	AircraftSerial       *string    `json:"aircraft_serial" db:"aircraft_serial"`
	AircraftMake         *string    `json:"aircraft_make" db:"aircraft_make"`
	AircraftModel        *string    `json:"aircraft_model" db:"aircraft_model"`
	AircraftYear         *int       `json:"aircraft_year" db:"aircraft_year"`
	CustomerName         *string    `json:"customer_name" db:"customer_name"`
	CustomerPONumber     *string    `json:"customer_po_number" db:"customer_po_number"`
	DueDate              *Date      `json:"due_date" db:"due_date"`
	CreatedDate          time.Time  `json:"created_date" db:"created_date"`
	CompletedDate        *time.Time `json:"completed_date" db:"completed_date"`
	LeadTechnician       *string    `json:"lead_technician" db:"lead_technician"`
	SalesPerson          *string    `json:"sales_person" db:"sales_person"`
	Priority             string     `json:"priority" db:"priority"`
	CreatedBy            string     `json:"created_by" db:"created_by"`
	UpdatedBy            *string    `json:"updated_by" db:"updated_by"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`

	// Joined, read-only
	CityUUID     uuid.UUID  `json:"city_id" db:"city_uuid" audit:"-"`
	CityCode     string     `json:"city_code" db:"city_code" audit:"-"`
	AircraftUUID *uuid.UUID `json:"aircraft_id" db:"aircraft_uuid" audit:"-"`
	CustomerUUID *uuid.UUID `json:"customer_id" db:"customer_uuid" audit:"-"`
	ItemCount    int        `json:"item_count" db:"item_count" audit:"-"`
}

// TableName returns the storage table of WorkOrder
func (w *WorkOrder) TableName() string { return "work_order" }

// AuditEntityID returns the external identifier recorded in audit_log.entity_id
func (w *WorkOrder) AuditEntityID() uuid.UUID { return w.UUID }

// IsOpen reports whether the work order is in a non-terminal status
func (w *WorkOrder) IsOpen() bool {
	for _, s := range ClosedWorkOrderStatuses {
		if w.Status == s {
			return false
		}
	}
	return true
}
