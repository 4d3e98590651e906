package fleet

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func newAircraftRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock := newMockDB(t)
	h := NewAircraftHandlers(db)

	r := gin.New()
	r.GET("/aircraft", h.ListAircraftHandler())
	r.GET("/aircraft/:id", h.GetAircraftHandler())

	authed := r.Group("", withPrincipal("lead@example.com"))
	authed.POST("/aircraft", h.CreateAircraftHandler())
	authed.PUT("/aircraft/:id", h.UpdateAircraftHandler())
	authed.DELETE("/aircraft/:id", h.DeleteAircraftHandler())
	return mock, r
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---------------------------------------------------------------------------
// ListAircraftHandler
// ---------------------------------------------------------------------------

func TestListAircraft_Success(t *testing.T) {
	mock, r := newAircraftRouter(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(testCityID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("ORDER BY a.registration_number ASC").
		WillReturnRows(sampleAircraftRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/aircraft?city_id="+testCityID.String(), nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	body := getJSON(t, w)
	if body["total"] != float64(1) || body["page"] != float64(1) || body["page_size"] != float64(20) {
		t.Errorf("unexpected envelope: %v", body)
	}
	items, _ := body["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("items = %v", body["items"])
	}
	if a := items[0].(map[string]interface{}); a["registration_number"] != "N123AB" || a["primary_city_code"] != "KTYS" {
		t.Errorf("unexpected aircraft: %v", a)
	}
	expectationsMet(t, mock)
}

func TestListAircraft_InvalidCityID(t *testing.T) {
	_, r := newAircraftRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/aircraft?city_id=KTYS", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListAircraft_DBError(t *testing.T) {
	mock, r := newAircraftRouter(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/aircraft", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetAircraftHandler
// ---------------------------------------------------------------------------

func TestGetAircraft_WithCustomers(t *testing.T) {
	mock, r := newAircraftRouter(t)

	mock.ExpectQuery("SELECT a.id").WithArgs(testAircraftID).WillReturnRows(sampleAircraftRow())
	cols := append(append([]string{}, customerCols...), "is_primary")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY ac.is_primary DESC")).
		WithArgs(testAircraftID).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(8), testCustomerID.String(), "Acme Aviation", nil, nil, nil,
				nil, nil, nil, nil, nil, nil, nil, true, "admin", nil, testCreated, testCreated, true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/aircraft/"+testAircraftID.String(), nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	body := getJSON(t, w)
	if body["id"] != testAircraftID.String() {
		t.Errorf("id = %v", body["id"])
	}
	customers, _ := body["customers"].([]interface{})
	if len(customers) != 1 || customers[0].(map[string]interface{})["is_primary"] != true {
		t.Errorf("customers = %v", body["customers"])
	}
	expectationsMet(t, mock)
}

func TestGetAircraft_NotFound(t *testing.T) {
	mock, r := newAircraftRouter(t)
	mock.ExpectQuery("SELECT a.id").WillReturnRows(sqlmock.NewRows(aircraftCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/aircraft/"+testAircraftID.String(), nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetAircraft_InvalidID(t *testing.T) {
	_, r := newAircraftRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/aircraft/N123AB", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// CreateAircraftHandler
// ---------------------------------------------------------------------------

func TestCreateAircraft_PrincipalIsCreator(t *testing.T) {
	mock, r := newAircraftRouter(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO aircraft").
		WithArgs("N123AB", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			true, "lead@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow(testAircraftID.String()))
	mock.ExpectQuery("SELECT a.id").WithArgs(testAircraftID).WillReturnRows(sampleAircraftRow())
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/aircraft",
		`{"registration_number":"N123AB","make":"Cessna","created_by":"someone-else"}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	if body := getJSON(t, w); body["registration_number"] != "N123AB" {
		t.Errorf("unexpected body: %v", body)
	}
	expectationsMet(t, mock)
}

func TestCreateAircraft_ValidationFailed(t *testing.T) {
	_, r := newAircraftRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/aircraft", `{"registration_number":"not a tail","year_built":1800}`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	details, _ := getJSON(t, w)["details"].(map[string]interface{})
	if details["registration_number"] == nil || details["year_built"] == nil {
		t.Errorf("details = %v", details)
	}
}

func TestCreateAircraft_UnknownCity(t *testing.T) {
	mock, r := newAircraftRouter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM city WHERE uuid = $1")).
		WithArgs(testCityID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/aircraft",
		`{"registration_number":"N123AB","primary_city_id":"`+testCityID.String()+`"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: body=%s", w.Code, w.Body.String())
	}
	expectationsMet(t, mock)
}

// ---------------------------------------------------------------------------
// UpdateAircraftHandler
// ---------------------------------------------------------------------------

func TestUpdateAircraft_NotFound(t *testing.T) {
	mock, r := newAircraftRouter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF a")).WillReturnRows(sqlmock.NewRows(aircraftCols))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPut, "/aircraft/"+testAircraftID.String(), `{"notes":"annual due"}`))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	expectationsMet(t, mock)
}

func TestUpdateAircraft_SetsUpdatedBy(t *testing.T) {
	mock, r := newAircraftRouter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF a")).WillReturnRows(sampleAircraftRow())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM city WHERE uuid = $1")).
		WithArgs(testCityID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("UPDATE aircraft").
		WithArgs(int64(3), "N123AB", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "annual due", true,
			"lead@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT a.id").WillReturnRows(sampleAircraftRow())
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPut, "/aircraft/"+testAircraftID.String(), `{"notes":"annual due"}`))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	expectationsMet(t, mock)
}

// ---------------------------------------------------------------------------
// DeleteAircraftHandler
// ---------------------------------------------------------------------------

func TestDeleteAircraft_Success(t *testing.T) {
	mock, r := newAircraftRouter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM aircraft WHERE uuid = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM work_order")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM aircraft_customer").WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM aircraft WHERE id = $1")).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/aircraft/"+testAircraftID.String(), nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204: body=%s", w.Code, w.Body.String())
	}
	expectationsMet(t, mock)
}

func TestDeleteAircraft_HasWorkOrders(t *testing.T) {
	mock, r := newAircraftRouter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM aircraft WHERE uuid = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM work_order")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/aircraft/"+testAircraftID.String(), nil))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if msg, _ := getJSON(t, w)["error"].(string); !strings.Contains(msg, "2 associated work order") {
		t.Errorf("error = %q", msg)
	}
}

func TestDeleteAircraft_NotFound(t *testing.T) {
	mock, r := newAircraftRouter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM aircraft WHERE uuid = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/aircraft/"+testAircraftID.String(), nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
