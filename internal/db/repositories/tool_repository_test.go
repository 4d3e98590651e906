package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

var toolCols = []string{
	"id", "uuid", "name", "tool_type", "description", "details", "tool_room_id", "tool_group",
	"parent_kit_id", "make", "model", "serial_number", "location", "location_notes", "tool_cost",
	"purchase_date", "date_labeled", "calibration_days", "calibration_notes", "calibration_cost",
	"last_calibration_date", "next_calibration_due", "vendor_name", "media_count", "created_by",
	"updated_by", "created_at", "updated_at",
	"tool_room_uuid", "tool_room_code", "tool_room_name", "city_uuid", "city_code", "city_name",
	"parent_kit_uuid", "parent_kit_name", "parent_kit_type",
}

var testToolID = uuid.MustParse("77777777-7777-7777-7777-777777777777")

func newToolRepo(t *testing.T) (*ToolRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewToolRepository(db), mock
}

func sampleToolRow(toolType string, nextDue interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(toolCols).
		AddRow(int64(40), testToolID.String(), "Torque wrench", toolType, "3/8 drive", nil, int64(2), "in_service",
			nil, "Snap-on", "QD2R200", "SN-1", "Drawer 4", nil, "245.00",
			time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), nil, 365, nil, "80.00",
			time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), nextDue, "Snap-on", 0, nil,
			nil, testCreated, testCreated,
			uuid.New().String(), "TR1", "Main crib", testCityID.String(), "KTYS", "Knoxville",
			nil, nil, nil)
}

func TestListTools_HideKitsAndCalibrationDue(t *testing.T) {
	repo, mock := newToolRepo(t)
	due := models.NewDate(2026, time.May, 13)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.uuid = $1 AND t.parent_kit_id IS NULL AND t.tool_type = $2 AND t.next_calibration_due <= $3")).
		WithArgs(testCityID, "certified", "2026-05-13").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY t.next_calibration_due ASC, t.id ASC LIMIT $4 OFFSET $5")).
		WithArgs(testCityID, "certified", "2026-05-13", 25, 0).
		WillReturnRows(sampleToolRow("certified", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	tools, total, err := repo.List(context.Background(),
		ToolFilter{CityID: testCityID, HideKitContents: true, CalibrationDueBy: &due},
		Sort{By: "calibration_due", Order: "asc"},
		Pagination{Page: 1, PageSize: 25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(tools) != 1 {
		t.Fatalf("total = %d, len = %d", total, len(tools))
	}
	tool := tools[0]
	if tool.NextCalibrationDue == nil || tool.NextCalibrationDue.String() != "2026-04-01" {
		t.Errorf("NextCalibrationDue = %v", tool.NextCalibrationDue)
	}
	if tool.ToolCost == nil || tool.ToolCost.String() != "245" {
		t.Errorf("ToolCost = %v", tool.ToolCost)
	}
	expectationsMet(t, mock)
}

func TestListTools_ToolRoomFilter(t *testing.T) {
	repo, mock := newToolRepo(t)
	roomID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.uuid = $1 AND tr.uuid = $2")).
		WithArgs(testCityID, roomID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY t.name ASC")).
		WillReturnRows(sqlmock.NewRows(toolCols))

	tools, total, err := repo.List(context.Background(), ToolFilter{CityID: testCityID, ToolRoomID: &roomID},
		Sort{}, Pagination{Page: 1, PageSize: 25})
	if err != nil || total != 0 || len(tools) != 0 {
		t.Errorf("List() = %v, %d, %v", tools, total, err)
	}
}

func TestGetTool_WithKitContents(t *testing.T) {
	repo, mock := newToolRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.uuid = $1")).
		WithArgs(testToolID).
		WillReturnRows(sampleToolRow("kit", nil))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE parent_kit_id = $1")).
		WithArgs(int64(40)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "name", "tool_type"}).
			AddRow(int64(41), uuid.New().String(), "Socket", "reference"))

	detail, err := repo.Get(context.Background(), testToolID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detail.KitContents) != 1 || detail.KitContents[0].ToolTypeCode != "Ref" {
		t.Errorf("KitContents = %+v", detail.KitContents)
	}
	if detail.ParentKit() != nil {
		t.Error("ParentKit() should be nil")
	}
}

func TestGetTool_NotFound(t *testing.T) {
	repo, mock := newToolRepo(t)
	mock.ExpectQuery("SELECT t.id").WillReturnRows(sqlmock.NewRows(toolCols))

	detail, err := repo.Get(context.Background(), testToolID)
	if err != nil || detail != nil {
		t.Errorf("Get() = %v, %v; want nil, nil", detail, err)
	}
}
