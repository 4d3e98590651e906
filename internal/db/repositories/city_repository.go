package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

const toolRoomColumns = `tr.id, tr.uuid, tr.city_id, tr.code, tr.name, tr.is_active, tr.created_at, tr.updated_at,
		c.uuid AS city_uuid, c.code AS city_code`

// CityRepository handles city and tool room reads
type CityRepository struct {
	db *sqlx.DB
}

// NewCityRepository creates a new CityRepository
func NewCityRepository(db *sqlx.DB) *CityRepository {
	return &CityRepository{db: db}
}

// ListCities returns cities ordered by code
func (r *CityRepository) ListCities(ctx context.Context, activeOnly bool) ([]*models.City, error) {
	query := `SELECT id, uuid, code, name, is_active, created_at, updated_at FROM city`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY code`

	cities := make([]*models.City, 0)
	if err := r.db.SelectContext(ctx, &cities, query); err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}
	return cities, nil
}

// GetCity retrieves a city by its external id
func (r *CityRepository) GetCity(ctx context.Context, id uuid.UUID) (*models.City, error) {
	var city models.City
	query := `SELECT id, uuid, code, name, is_active, created_at, updated_at FROM city WHERE uuid = $1`

	err := r.db.GetContext(ctx, &city, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get city: %w", err)
	}
	return &city, nil
}

// ListToolRooms returns tool rooms ordered by city code and room code, optionally limited to one city
func (r *CityRepository) ListToolRooms(ctx context.Context, cityID *uuid.UUID, activeOnly bool) ([]*models.ToolRoom, error) {
	f := &filter{}
	if cityID != nil {
		f.add("c.uuid = $%d", *cityID)
	}
	if activeOnly {
		f.add("tr.is_active = true")
	}

	query := `SELECT ` + toolRoomColumns + ` FROM tool_room tr JOIN city c ON c.id = tr.city_id` +
		f.where() + ` ORDER BY c.code, tr.code`

	rooms := make([]*models.ToolRoom, 0)
	if err := r.db.SelectContext(ctx, &rooms, query, f.args...); err != nil {
		return nil, fmt.Errorf("failed to list tool rooms: %w", err)
	}
	return rooms, nil
}

// resolveCityID maps a city's external id to its key, returning ErrInvalidReference when
// the city does not exist
func resolveCityID(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (int64, error) {
	var key int64
	err := sqlx.GetContext(ctx, q, &key, `SELECT id FROM city WHERE uuid = $1`, id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: city %s", ErrInvalidReference, id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve city: %w", err)
	}
	return key, nil
}
