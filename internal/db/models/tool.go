// Package models - tool.go defines Tool, an inventoried shop tool held in a tool room. Tools
// of type kit may contain other tools through parent_kit_id.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tool types
const (
	ToolTypeCertified  = "certified"
	ToolTypeReference  = "reference"
	ToolTypeConsumable = "consumable"
	ToolTypeKit        = "kit"
)

// Tool groups
const (
	ToolGroupInService    = "in_service"
	ToolGroupOutOfService = "out_of_service"
	ToolGroupLost         = "lost"
	ToolGroupRetired      = "retired"
)

var toolTypeCodes = map[string]string{
	ToolTypeCertified:  "Cert",
	ToolTypeReference:  "Ref",
	ToolTypeConsumable: "Cons",
	ToolTypeKit:        "Kit",
}

// ToolTypeCode returns the short display code of a tool type
func ToolTypeCode(toolType string) string {
	if code, ok := toolTypeCodes[toolType]; ok {
		return code
	}
	return toolType
}

// Tool represents a tool in a tool room
type Tool struct {
	ID                  int64            `json:"-" db:"id"`
	UUID                uuid.UUID        `json:"id" db:"uuid"`
	Name                string           `json:"name" db:"name"`
	ToolType            string           `json:"tool_type" db:"tool_type"`
	Description         *string          `json:"description" db:"description"`
	Details             *string          `json:"details" db:"details"`
	ToolRoomID          int64            `json:"-" db:"tool_room_id"`
	ToolGroup           string           `json:"tool_group" db:"tool_group"`
	ParentKitID         *int64           `json:"-" db:"parent_kit_id"`
	Make                *string          `json:"make" db:"make"`
	Model               *string          `json:"model" db:"model"`
	SerialNumber        *string          `json:"serial_number" db:"serial_number"`
	Location            *string          `json:"location" db:"location"`
	LocationNotes       *string          `json:"location_notes" db:"location_notes"`
	ToolCost            *decimal.Decimal `json:"tool_cost" db:"tool_cost"`
	PurchaseDate        *Date            `json:"purchase_date" db:"purchase_date"`
	DateLabeled         *Date            `json:"date_labeled" db:"date_labeled"`
	CalibrationDays     *int             `json:"calibration_days" db:"calibration_days"`
	CalibrationNotes    *string          `json:"calibration_notes" db:"calibration_notes"`
	CalibrationCost     *decimal.Decimal `json:"calibration_cost" db:"calibration_cost"`
	LastCalibrationDate *Date            `json:"last_calibration_date" db:"last_calibration_date"`
	NextCalibrationDue  *Date            `json:"next_calibration_due" db:"next_calibration_due"`
	VendorName          *string          `json:"vendor_name" db:"vendor_name"`
	MediaCount          int              `json:"media_count" db:"media_count"`
	CreatedBy           *string          `json:"created_by" db:"created_by"`
	UpdatedBy           *string          `json:"updated_by" db:"updated_by"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`

	// Joined
	ToolRoomUUID  uuid.UUID  `json:"-" db:"tool_room_uuid"`
	ToolRoomCode  string     `json:"-" db:"tool_room_code"`
	ToolRoomName  string     `json:"-" db:"tool_room_name"`
	CityUUID      uuid.UUID  `json:"-" db:"city_uuid"`
	CityCode      string     `json:"-" db:"city_code"`
	CityName      string     `json:"-" db:"city_name"`
	ParentKitUUID *uuid.UUID `json:"-" db:"parent_kit_uuid"`
	ParentKitName *string    `json:"-" db:"parent_kit_name"`
	ParentKitType *string    `json:"-" db:"parent_kit_type"`
}

// ParentKit returns the brief form of the kit holding the tool, or nil
func (t *Tool) ParentKit() *ToolBrief {
	if t.ParentKitID == nil || t.ParentKitUUID == nil {
		return nil
	}
	brief := &ToolBrief{ID: *t.ParentKitID, UUID: *t.ParentKitUUID}
	if t.ParentKitName != nil {
		brief.Name = *t.ParentKitName
	}
	if t.ParentKitType != nil {
		brief.ToolType = *t.ParentKitType
		brief.ToolTypeCode = ToolTypeCode(brief.ToolType)
	}
	return brief
}

// IsInKit reports whether the tool belongs to a kit
func (t *Tool) IsInKit() bool {
	return t.ParentKitID != nil
}

// CalibrationDueDays returns the days from today until the next calibration, negative when
// overdue, or nil when no calibration is scheduled
func (t *Tool) CalibrationDueDays(today Date) *int {
	if t.NextCalibrationDue == nil {
		return nil
	}
	days := t.NextCalibrationDue.DaysSince(today.Date)
	return &days
}

// ToolBrief is the short form of a tool used for kit references
type ToolBrief struct {
	ID           int64     `json:"-" db:"id"`
	UUID         uuid.UUID `json:"id" db:"uuid"`
	Name         string    `json:"name" db:"name"`
	ToolType     string    `json:"tool_type" db:"tool_type"`
	ToolTypeCode string    `json:"tool_type_code" db:"-"`
}
