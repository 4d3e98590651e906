package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Date
// ---------------------------------------------------------------------------

func TestDate_Scan_Time(t *testing.T) {
	var d Date
	if err := d.Scan(time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got := d.String(); got != "2026-03-14" {
		t.Errorf("String() = %q, want 2026-03-14", got)
	}
}

func TestDate_Scan_TimestampString(t *testing.T) {
	var d Date
	if err := d.Scan([]byte("2026-03-14T00:00:00Z")); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got := d.String(); got != "2026-03-14" {
		t.Errorf("String() = %q, want 2026-03-14", got)
	}
}

func TestDate_Scan_Invalid(t *testing.T) {
	var d Date
	if err := d.Scan("not-a-date"); err == nil {
		t.Error("Scan() should fail for an invalid date string")
	}
	if err := d.Scan(42); err == nil {
		t.Error("Scan() should fail for an int")
	}
}

func TestDate_Value(t *testing.T) {
	v, err := NewDate(2026, time.January, 5).Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != "2026-01-05" {
		t.Errorf("Value() = %v, want 2026-01-05", v)
	}
}

func TestDate_JSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2026, time.February, 1))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `"2026-02-01"` {
		t.Errorf("Marshal() = %s, want \"2026-02-01\"", b)
	}

	var d Date
	if err := json.Unmarshal([]byte(`"2025-12-31"`), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if d != NewDate(2025, time.December, 31) {
		t.Errorf("Unmarshal() = %v", d)
	}
}

// ---------------------------------------------------------------------------
// JSONMap
// ---------------------------------------------------------------------------

func TestJSONMap_NilIsNull(t *testing.T) {
	var m JSONMap
	v, err := m.Value()
	if err != nil || v != nil {
		t.Errorf("Value() = %v, %v; want nil, nil", v, err)
	}
}

func TestJSONMap_ScanNullLiteral(t *testing.T) {
	m := JSONMap{"a": 1}
	if err := m.Scan([]byte("null")); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if m != nil {
		t.Errorf("Scan(null) = %v, want nil", m)
	}
}

func TestJSONMap_ScanObject(t *testing.T) {
	var m JSONMap
	if err := m.Scan(`{"status":"open","item_number":3}`); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if m["status"] != "open" {
		t.Errorf("status = %v, want open", m["status"])
	}
	if m["item_number"] != float64(3) {
		t.Errorf("item_number = %v, want 3", m["item_number"])
	}
}

// ---------------------------------------------------------------------------
// AuditAction
// ---------------------------------------------------------------------------

func TestAuditAction_Valid(t *testing.T) {
	for _, a := range []AuditAction{AuditActionInsert, AuditActionUpdate, AuditActionDelete} {
		if !a.Valid() {
			t.Errorf("%s.Valid() = false", a)
		}
	}
	if AuditAction("TRUNCATE").Valid() {
		t.Error("TRUNCATE should not be a valid action")
	}
}

// ---------------------------------------------------------------------------
// Work orders and items
// ---------------------------------------------------------------------------

func TestWorkOrder_IsOpen(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{WorkOrderStatusCreated, true},
		{WorkOrderStatusOnHold, true},
		{WorkOrderStatusCompleted, false},
		{WorkOrderStatusCancelled, false},
		{WorkOrderStatusInvoiced, false},
	}
	for _, tt := range tests {
		wo := &WorkOrder{Status: tt.status}
		if got := wo.IsOpen(); got != tt.want {
			t.Errorf("IsOpen(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestWorkOrderItem_AuditParentID(t *testing.T) {
	item := &WorkOrderItem{WorkOrderID: 42, UUID: uuid.New()}
	p := item.AuditParentID()
	if p == nil || *p != 42 {
		t.Fatalf("AuditParentID() = %v, want 42", p)
	}
	*p = 7
	if item.WorkOrderID != 42 {
		t.Error("AuditParentID() should not alias the item's field")
	}
	if item.AuditEntityID() != item.UUID {
		t.Error("AuditEntityID() should return the item's UUID")
	}
}

func TestLaborKitItem_ToWorkOrderItem(t *testing.T) {
	hours := decimal.RequireFromString("1.5")
	disc := "Inspect brakes"
	k := &LaborKitItem{
		ItemNumber:    9,
		Discrepancy:   &disc,
		HoursEstimate: &hours,
		BillingMethod: BillingMethodHourly,
		EnableRII:     true,
	}
	item := k.ToWorkOrderItem(12, 4, "tech@example.com")
	if item.WorkOrderID != 12 || item.ItemNumber != 4 {
		t.Errorf("got work_order_id=%d item_number=%d, want 12/4", item.WorkOrderID, item.ItemNumber)
	}
	if item.Status != ItemStatusOpen {
		t.Errorf("Status = %q, want open", item.Status)
	}
	if item.Discrepancy == nil || *item.Discrepancy != disc {
		t.Errorf("Discrepancy not copied")
	}
	if !item.HoursEstimate.Equal(hours) || !item.EnableRII {
		t.Errorf("templated fields not copied: %+v", item)
	}
	if item.CreatedBy != "tech@example.com" {
		t.Errorf("CreatedBy = %q", item.CreatedBy)
	}
}

func TestAuditedEntities(t *testing.T) {
	got := AuditedEntities()
	if len(got) != 2 {
		t.Fatalf("AuditedEntities() len = %d, want 2", len(got))
	}
	if _, ok := got[0].(*WorkOrder); !ok {
		t.Errorf("first audited entity = %T, want *WorkOrder", got[0])
	}
	if _, ok := got[1].(*WorkOrderItem); !ok {
		t.Errorf("second audited entity = %T, want *WorkOrderItem", got[1])
	}
}

// ---------------------------------------------------------------------------
// Tools
// ---------------------------------------------------------------------------

func TestToolTypeCode(t *testing.T) {
	tests := map[string]string{
		ToolTypeCertified:  "Cert",
		ToolTypeReference:  "Ref",
		ToolTypeConsumable: "Cons",
		ToolTypeKit:        "Kit",
		"other":            "other",
	}
	for in, want := range tests {
		if got := ToolTypeCode(in); got != want {
			t.Errorf("ToolTypeCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTool_CalibrationDueDays(t *testing.T) {
	today := NewDate(2026, time.March, 1)

	tool := &Tool{}
	if tool.CalibrationDueDays(today) != nil {
		t.Error("CalibrationDueDays() should be nil without a due date")
	}

	due := NewDate(2026, time.March, 31)
	tool.NextCalibrationDue = &due
	if got := tool.CalibrationDueDays(today); got == nil || *got != 30 {
		t.Errorf("CalibrationDueDays() = %v, want 30", got)
	}

	overdue := NewDate(2026, time.February, 27)
	tool.NextCalibrationDue = &overdue
	if got := tool.CalibrationDueDays(today); got == nil || *got != -2 {
		t.Errorf("CalibrationDueDays() = %v, want -2", got)
	}
}

func TestJSONMap_ValueIsText(t *testing.T) {
	v, err := JSONMap{"status": "open"}.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != `{"status":"open"}` {
		t.Errorf("Value() = %#v, want JSON text", v)
	}
}

func TestTool_ParentKit(t *testing.T) {
	if (&Tool{}).ParentKit() != nil {
		t.Error("ParentKit() should be nil for a tool outside a kit")
	}

	kitID := int64(4)
	kitUUID := uuid.New()
	name := "Torque kit"
	kitType := ToolTypeKit
	tool := &Tool{ParentKitID: &kitID, ParentKitUUID: &kitUUID, ParentKitName: &name, ParentKitType: &kitType}

	brief := tool.ParentKit()
	if brief == nil {
		t.Fatal("ParentKit() = nil")
	}
	if brief.UUID != kitUUID || brief.Name != name || brief.ToolTypeCode != "Kit" {
		t.Errorf("ParentKit() = %+v", brief)
	}
}
