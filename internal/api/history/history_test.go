package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	testWOID   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	testItemID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

type fakeStore struct {
	records  []*models.AuditRecord
	total    int
	err      error
	history  *audit.HistoryQuery
	combined *audit.CombinedQuery
}

func (f *fakeStore) ListEntityHistory(_ context.Context, q audit.HistoryQuery) ([]*models.AuditRecord, int, error) {
	f.history = &q
	return f.records, f.total, f.err
}

func (f *fakeStore) ListCombinedHistory(_ context.Context, q audit.CombinedQuery) ([]*models.AuditRecord, int, error) {
	f.combined = &q
	return f.records, f.total, f.err
}

type fakeParents struct {
	ref *audit.ParentRef
}

func (f fakeParents) LookupAuditParent(context.Context, uuid.UUID) (*audit.ParentRef, error) {
	return f.ref, nil
}

func newHistoryRouter(store *fakeStore, parent *audit.ParentRef) *gin.Engine {
	queries := audit.NewQueryService(store)
	queries.RegisterChildCollection(audit.ChildCollection{
		ParentType: "work_order",
		ChildType:  "work_order_item",
		ForeignKey: "work_order_id",
		LabelField: "item_number",
		Parents:    fakeParents{ref: parent},
	})
	h := NewHandlers(queries)

	r := gin.New()
	r.GET("/audit/:entity_type/:entity_id", h.GetHistoryHandler())
	r.GET("/audit/:entity_type/:entity_id/combined", h.GetCombinedHistoryHandler())
	return r
}

func serve(r *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func getJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return body
}

// ---------------------------------------------------------------------------
// GetHistoryHandler
// ---------------------------------------------------------------------------

func TestGetHistory_PassesFilters(t *testing.T) {
	store := &fakeStore{
		records: []*models.AuditRecord{{ID: 9, EntityType: "work_order", EntityID: testWOID, Action: models.AuditActionUpdate}},
		total:   3,
	}
	r := newHistoryRouter(store, nil)

	w := serve(r, "/audit/work-order/"+testWOID.String()+
		"?action=update&user_id=tech@example.com&from_date=2026-03-01&to_date=2026-03-31&page=1&page_size=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}

	q := store.history
	if q == nil {
		t.Fatal("store was not queried")
	}
	if q.EntityType != "work_order" || q.EntityID != testWOID {
		t.Errorf("entity = %s %s", q.EntityType, q.EntityID)
	}
	if q.Filter.Action != models.AuditActionUpdate || q.Filter.UserID != "tech@example.com" {
		t.Errorf("filter = %+v", q.Filter)
	}
	wantTo := time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC)
	if q.Filter.To == nil || !q.Filter.To.Equal(wantTo) {
		t.Errorf("to = %v, want %v", q.Filter.To, wantTo)
	}
	if q.Limit != 1 || q.Offset != 0 {
		t.Errorf("limit/offset = %d/%d", q.Limit, q.Offset)
	}

	body := getJSON(t, w)
	if body["has_next"] != true || body["total"] != float64(3) {
		t.Errorf("unexpected page: %v", body)
	}
}

func TestGetHistory_UnknownEntityIsEmpty(t *testing.T) {
	r := newHistoryRouter(&fakeStore{}, nil)

	w := serve(r, "/audit/hangar/"+uuid.NewString())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	items, ok := getJSON(t, w)["items"].([]interface{})
	if !ok || len(items) != 0 {
		t.Errorf("items = %v, want []", items)
	}
}

func TestGetHistory_Rejects(t *testing.T) {
	r := newHistoryRouter(&fakeStore{}, nil)
	base := "/audit/work_order/" + testWOID.String()

	tests := []struct {
		name   string
		target string
	}{
		{"bad id", "/audit/work_order/42"},
		{"page zero", base + "?page=0"},
		{"page size too big", base + "?page_size=101"},
		{"page not a number", base + "?page=two"},
		{"bad action", base + "?action=MERGE"},
		{"bad date", base + "?from_date=yesterday"},
		{"inverted range", base + "?from_date=2026-03-02&to_date=2026-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(r, tt.target); w.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422: body=%s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetHistory_StoreError(t *testing.T) {
	r := newHistoryRouter(&fakeStore{err: errors.New("connection refused")}, nil)

	w := serve(r, "/audit/work_order/"+testWOID.String())
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if body := getJSON(t, w); body["error"] != "Failed to query audit history" {
		t.Errorf("error = %v", body["error"])
	}
}

// ---------------------------------------------------------------------------
// GetCombinedHistoryHandler
// ---------------------------------------------------------------------------

func TestGetCombinedHistory_LabelsChildren(t *testing.T) {
	deletedID := uuid.New()
	store := &fakeStore{
		records: []*models.AuditRecord{
			{ID: 3, EntityType: "work_order_item", EntityID: deletedID, Action: models.AuditActionDelete,
				OldValues: models.JSONMap{"item_number": float64(2)}},
			{ID: 2, EntityType: "work_order_item", EntityID: testItemID, Action: models.AuditActionInsert},
			{ID: 1, EntityType: "work_order", EntityID: testWOID, Action: models.AuditActionInsert},
		},
		total: 3,
	}
	parent := &audit.ParentRef{Key: 12, ChildLabels: map[uuid.UUID]int{testItemID: 1}}
	r := newHistoryRouter(store, parent)

	w := serve(r, "/audit/work_order/"+testWOID.String()+"/combined")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if store.combined == nil || store.combined.ParentKey != 12 || store.combined.ChildType != "work_order_item" {
		t.Fatalf("combined query = %+v", store.combined)
	}

	items, _ := getJSON(t, w)["items"].([]interface{})
	if len(items) != 3 {
		t.Fatalf("items = %v", items)
	}
	want := []interface{}{float64(2), float64(1), nil}
	for i, item := range items {
		if got := item.(map[string]interface{})["item_number"]; got != want[i] {
			t.Errorf("items[%d].item_number = %v, want %v", i, got, want[i])
		}
	}
}

func TestGetCombinedHistory_ParentNotFound(t *testing.T) {
	r := newHistoryRouter(&fakeStore{}, nil)

	if w := serve(r, "/audit/work_order/"+testWOID.String()+"/combined"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetCombinedHistory_UnknownChildType(t *testing.T) {
	r := newHistoryRouter(&fakeStore{}, &audit.ParentRef{Key: 12})

	w := serve(r, "/audit/work_order/"+testWOID.String()+"/combined?child_type=labor_kit_item")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
