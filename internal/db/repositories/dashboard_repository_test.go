package repositories

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestOpenWorkOrderCountsByCity(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDashboardRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.is_active = true AND wo.status::text <> ALL($1)")).
		WithArgs("{\"completed\",\"cancelled\",\"invoiced\"}").
		WillReturnRows(sqlmock.NewRows([]string{"city_id", "city_code", "city_name", "open_count"}).
			AddRow(testCityID.String(), "KTYS", "Knoxville", 7).
			AddRow(uuid.New().String(), "KBNA", "Nashville", 3))

	counts, err := repo.OpenWorkOrderCountsByCity(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(counts) != 2 || counts[0].OpenCount != 7 || counts[0].CityID != testCityID {
		t.Errorf("counts = %+v", counts)
	}
	expectationsMet(t, mock)
}

func TestTableCounts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDashboardRepository(db)
	for i := 0; i < 11; i++ {
		mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(i))
	}

	counts, err := repo.TableCounts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(counts) != 11 || counts["city"] != 0 || counts["audit_log"] != 10 {
		t.Errorf("counts = %v", counts)
	}
}
