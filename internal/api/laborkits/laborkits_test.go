package laborkits

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/auth"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
	"github.com/cirrus-mro/cirrus-api/internal/middleware"
	"github.com/cirrus-mro/cirrus-api/internal/validation"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := validation.RegisterGinValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var (
	testKitID   = uuid.MustParse("66666666-6666-6666-6666-666666666666")
	testWOID    = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	testCreated = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
)

var laborKitCols = []string{
	"id", "uuid", "name", "description", "category", "is_active", "created_by", "updated_by",
	"created_at", "updated_at", "item_count",
}

var laborKitItemCols = []string{
	"id", "uuid", "labor_kit_id", "item_number", "discrepancy", "corrective_action", "notes",
	"category", "sub_category", "ata_code", "hours_estimate", "billing_method", "flat_rate",
	"department", "do_not_bill", "enable_rii", "created_by", "updated_by", "created_at", "updated_at",
	"labor_kit_uuid",
}

var workOrderItemCols = []string{
	"id", "uuid", "work_order_id", "item_number", "status", "discrepancy", "corrective_action",
	"notes", "category", "sub_category", "ata_code", "hours_estimate", "billing_method", "flat_rate",
	"department", "do_not_bill", "enable_rii", "created_by", "updated_by", "created_at", "updated_at",
	"work_order_uuid",
}

func kitRow(active bool) *sqlmock.Rows {
	return sqlmock.NewRows(laborKitCols).
		AddRow(int64(5), testKitID.String(), "100 hour inspection", nil, "Inspection", active,
			"admin@example.com", nil, testCreated, testCreated, 1)
}

func kitItemRow(number int) *sqlmock.Rows {
	return sqlmock.NewRows(laborKitItemCols).
		AddRow(int64(100+number), uuid.New().String(), int64(5), number, "Inspect item", nil, nil,
			"Inspection", nil, "05-20", "0.50", "hourly", nil,
			nil, false, false, "admin@example.com", nil, testCreated, testCreated,
			testKitID.String())
}

func newKitRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := sqlx.NewDb(sqlDB, "postgres")

	registry := audit.NewRegistry(audit.NewRecorder(repositories.NewAuditRepository(db)))
	if err := registry.Register(models.AuditedEntities()...); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h := NewHandlers(db, registry)

	r := gin.New()
	r.Use(middleware.RequestContextMiddleware())
	r.GET("/labor-kits", h.ListKitsHandler())
	r.GET("/labor-kits/:id", h.GetKitHandler())
	r.GET("/labor-kits/:id/items", h.ListItemsHandler())

	authed := r.Group("")
	authed.Use(func(c *gin.Context) {
		c.Set(middleware.PrincipalKey, &auth.Principal{Subject: "sub-1", Email: "lead@example.com"})
		c.Next()
	})
	authed.POST("/labor-kits", h.CreateKitHandler())
	authed.PUT("/labor-kits/:id", h.UpdateKitHandler())
	authed.DELETE("/labor-kits/:id", h.DeleteKitHandler())
	authed.POST("/labor-kits/:id/apply/:work_order_id", h.ApplyKitHandler())
	return mock, r
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func getJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return body
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func applyPath() string {
	return "/labor-kits/" + testKitID.String() + "/apply/" + testWOID.String()
}

// ---------------------------------------------------------------------------
// Kits
// ---------------------------------------------------------------------------

func TestListKits_ActiveOnlyPaginated(t *testing.T) {
	mock, r := newKitRouter(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM labor_kit k WHERE k.is_active = true")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY k.name ASC, k.id ASC LIMIT $1 OFFSET $2")).
		WithArgs(10, 10).
		WillReturnRows(kitRow(true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/labor-kits?active_only=true&page=2&page_size=10", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	body := getJSON(t, w)
	if body["page"] != float64(2) || body["page_size"] != float64(10) {
		t.Errorf("unexpected paging: %v", body)
	}
	expectationsMet(t, mock)
}

func TestGetKit_NotFound(t *testing.T) {
	mock, r := newKitRouter(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM labor_kit k WHERE k.uuid = $1")).
		WillReturnRows(sqlmock.NewRows(laborKitCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/labor-kits/"+testKitID.String(), nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreateKit_NameRequired(t *testing.T) {
	_, r := newKitRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/labor-kits", `{"category":"Inspection"}`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	details, _ := getJSON(t, w)["details"].(map[string]interface{})
	if details["name"] == nil {
		t.Errorf("details missing name: %v", details)
	}
}

func TestCreateKit_Success(t *testing.T) {
	mock, r := newKitRouter(t)
	mock.ExpectQuery("INSERT INTO labor_kit").
		WithArgs("Annual", nil, nil, true, "lead@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "created_at", "updated_at"}).
			AddRow(int64(5), testKitID.String(), testCreated, testCreated))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/labor-kits", `{"name":"Annual"}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	if body := getJSON(t, w); body["is_active"] != true {
		t.Errorf("is_active = %v", body["is_active"])
	}
	expectationsMet(t, mock)
}

func TestUpdateKit_Deactivate(t *testing.T) {
	mock, r := newKitRouter(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE k.uuid = $1 FOR UPDATE")).WillReturnRows(kitRow(true))
	mock.ExpectQuery("UPDATE labor_kit").
		WithArgs(int64(5), "100 hour inspection", nil, "Inspection", false, "lead@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPut, "/labor-kits/"+testKitID.String(), `{"is_active":false}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if body := getJSON(t, w); body["is_active"] != false {
		t.Errorf("is_active = %v", body["is_active"])
	}
	expectationsMet(t, mock)
}

func TestDeleteKit_NotFound(t *testing.T) {
	mock, r := newKitRouter(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM labor_kit WHERE uuid = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/labor-kits/"+testKitID.String(), nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListKitItems_KitMissing(t *testing.T) {
	mock, r := newKitRouter(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM labor_kit WHERE uuid = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/labor-kits/"+testKitID.String()+"/items", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

func TestApplyKit_InactiveKit(t *testing.T) {
	mock, r := newKitRouter(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM labor_kit k WHERE k.uuid = $1")).WillReturnRows(kitRow(false))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, applyPath(), nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := getJSON(t, w); body["error"] != "labor kit is not active" {
		t.Errorf("error = %v", body["error"])
	}
	expectationsMet(t, mock)
}

func TestApplyKit_WorkOrderMissing(t *testing.T) {
	mock, r := newKitRouter(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM labor_kit k WHERE k.uuid = $1")).WillReturnRows(kitRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM work_order WHERE uuid = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, applyPath(), nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	expectationsMet(t, mock)
}

func TestApplyKit_CopiesItemsAsPrincipal(t *testing.T) {
	mock, r := newKitRouter(t)
	createdID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM labor_kit k WHERE k.uuid = $1")).WillReturnRows(kitRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM work_order WHERE uuid = $1 FOR UPDATE")).
		WithArgs(testWOID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE li.labor_kit_id = $1 ORDER BY li.item_number ASC")).
		WithArgs(int64(5)).
		WillReturnRows(kitItemRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(item_number), 0) + 1 FROM work_order_item")).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectQuery("INSERT INTO work_order_item").
		WithArgs(int64(12), 4, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "lead@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(91)))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.id = $1")).
		WillReturnRows(sqlmock.NewRows(workOrderItemCols).
			AddRow(int64(91), createdID.String(), int64(12), 4, "open", "Inspect item", nil,
				nil, "Inspection", nil, "05-20", "0.50", "hourly", nil,
				nil, false, false, "lead@example.com", nil, testCreated, testCreated, testWOID.String()))
	mock.ExpectQuery("INSERT INTO audit_log").
		WithArgs("work_order_item", createdID, "INSERT", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, applyPath(), nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if body := getJSON(t, w); body["items_created"] != float64(1) {
		t.Errorf("items_created = %v", body["items_created"])
	}
	expectationsMet(t, mock)
}
