package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

// DashboardRepository handles dashboard aggregates
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository creates a new DashboardRepository
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// OpenWorkOrderCountsByCity returns the number of open work orders per active city, busiest first
func (r *DashboardRepository) OpenWorkOrderCountsByCity(ctx context.Context) ([]*models.CityWorkOrderCount, error) {
	query := `
		SELECT c.uuid AS city_id, c.code AS city_code, c.name AS city_name, COUNT(wo.id) AS open_count
		FROM city c
		JOIN work_order wo ON wo.city_id = c.id
		WHERE c.is_active = true AND wo.status::text <> ALL($1)
		GROUP BY c.id, c.uuid, c.code, c.name
		ORDER BY open_count DESC, c.code
	`
	counts := make([]*models.CityWorkOrderCount, 0)
	if err := r.db.SelectContext(ctx, &counts, query, pq.Array(models.ClosedWorkOrderStatuses)); err != nil {
		return nil, fmt.Errorf("failed to count open work orders: %w", err)
	}
	return counts, nil
}

// TableCounts returns the row count of each core table
func (r *DashboardRepository) TableCounts(ctx context.Context) (map[string]int, error) {
	tables := []string{
		"city", "tool_room", "aircraft", "customer", "aircraft_customer", "work_order",
		"work_order_item", "labor_kit", "labor_kit_item", "tool", "audit_log",
	}
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		// table names come from the fixed list above
		if err := r.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
