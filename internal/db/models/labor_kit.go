// Package models - labor_kit.go defines LaborKit, a reusable template of line items, and
// LaborKitItem, one templated item copied onto work orders when the kit is applied.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LaborKit represents a named template of work items
type LaborKit struct {
	ID          int64     `json:"-" db:"id"`
	UUID        uuid.UUID `json:"id" db:"uuid"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description" db:"description"`
	Category    *string   `json:"category" db:"category"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	UpdatedBy   *string   `json:"updated_by" db:"updated_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	ItemCount int `json:"item_count" db:"item_count"`
}

// LaborKitItem represents one templated line item of a labor kit
type LaborKitItem struct {
	ID               int64            `json:"-" db:"id"`
	UUID             uuid.UUID        `json:"id" db:"uuid"`
	LaborKitID       int64            `json:"-" db:"labor_kit_id"`
	ItemNumber       int              `json:"item_number" db:"item_number"`
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

	LaborKitUUID uuid.UUID `json:"labor_kit_id" db:"labor_kit_uuid"`
}

// ToWorkOrderItem copies the templated fields onto a new open work order item
func (k *LaborKitItem) ToWorkOrderItem(workOrderID int64, itemNumber int, createdBy string) *WorkOrderItem {
	return &WorkOrderItem{
		WorkOrderID:      workOrderID,
		ItemNumber:       itemNumber,
		Status:           ItemStatusOpen,
		Discrepancy:      k.Discrepancy,
		CorrectiveAction: k.CorrectiveAction,
		Notes:            k.Notes,
		Category:         k.Category,
		SubCategory:      k.SubCategory,
		ATACode:          k.ATACode,
		HoursEstimate:    k.HoursEstimate,
		BillingMethod:    k.BillingMethod,
		FlatRate:         k.FlatRate,
		Department:       k.Department,
		DoNotBill:        k.DoNotBill,
		EnableRII:        k.EnableRII,
		CreatedBy:        createdBy,
	}
}
