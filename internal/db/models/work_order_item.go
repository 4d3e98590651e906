// Package models - work_order_item.go defines WorkOrderItem, an audited line item (squawk)
// on a work order, numbered sequentially within its parent.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Work order item statuses
const (
	ItemStatusOpen            = "open"
	ItemStatusWaitingForParts = "waiting_for_parts"
	ItemStatusInProgress      = "in_progress"
	ItemStatusTechReview      = "tech_review"
	ItemStatusAdminReview     = "admin_review"
	ItemStatusFinished        = "finished"
)

// BillingMethodHourly is the default billing method for items
const BillingMethodHourly = "hourly"

// WorkOrderItem represents one line item on a work order
type WorkOrderItem struct {
	ID               int64            `json:"-" db:"id"`
	UUID             uuid.UUID        `json:"id" db:"uuid"`
	WorkOrderID      int64            `json:"-" db:"work_order_id"`
	ItemNumber       int              `json:"item_number" db:"item_number"`
	Status           string           `json:"status" db:"status"`
	Discrepancy      *string          `json:"discrepancy" db:"discrepancy"`
	CorrectiveAction *string          `json:"corrective_action" db:"corrective_action"`
	Notes            *string          `json:"notes" db:"notes"`
	Category         *string          `json:"category" db:"category"`
	SubCategory      *string          `json:"sub_category" db:"sub_category"`
	ATACode          *string          `json:"ata_code" db:"ata_code"`
	HoursEstimate    *decimal.Decimal `json:"hours_estimate" db:"hours_estimate"`
	BillingMethod    string           `json:"billing_method" db:"billing_method"`
	FlatRate         *decimal.Decimal `json:"flat_rate" db:"flat_rate"`
	Department       *string          `json:"department" db:"department"`
	DoNotBill        bool             `json:"do_not_bill" db:"do_not_bill"`
	EnableRII        bool             `json:"enable_rii" db:"enable_rii"`
	CreatedBy        string           `json:"created_by" db:"created_by"`
	UpdatedBy        *string          `json:"updated_by" db:"updated_by"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`

	WorkOrderUUID uuid.UUID `json:"work_order_id" db:"work_order_uuid" audit:"-"`
}

// TableName returns the storage table of WorkOrderItem
func (i *WorkOrderItem) TableName() string { return "work_order_item" }

// AuditEntityID returns the external identifier recorded in audit_log.entity_id
func (i *WorkOrderItem) AuditEntityID() uuid.UUID { return i.UUID }

// AuditParentID returns the owning work order's internal key
func (i *WorkOrderItem) AuditParentID() *int64 {
	id := i.WorkOrderID
	return &id
}
