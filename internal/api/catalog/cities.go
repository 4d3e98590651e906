// Package catalog implements the read-only reference endpoints: cities, tool rooms, tools and
// the dashboard counts.
package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/api/apiutil"
	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
)

// CityHandlers handles city, tool room and dashboard endpoints
type CityHandlers struct {
	cityRepo      *repositories.CityRepository
	dashboardRepo *repositories.DashboardRepository
}

// NewCityHandlers creates a new CityHandlers instance
func NewCityHandlers(db *sqlx.DB) *CityHandlers {
	return &CityHandlers{
		cityRepo:      repositories.NewCityRepository(db),
		dashboardRepo: repositories.NewDashboardRepository(db),
	}
}

// ListCitiesHandler lists cities, active ones only unless active_only=false
// GET /api/v1/cities
func (h *CityHandlers) ListCitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cities, err := h.cityRepo.ListCities(c.Request.Context(), apiutil.BoolQuery(c, "active_only", true))
		if err != nil {
			apiutil.RespondError(c, err, "list cities")
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": cities, "total": len(cities)})
	}
}

// GetCityHandler retrieves one city
// GET /api/v1/cities/:id
func (h *CityHandlers) GetCityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		city, err := h.cityRepo.GetCity(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve city")
			return
		}
		if city == nil {
			apiutil.NotFound(c, "City")
			return
		}

		c.JSON(http.StatusOK, city)
	}
}

// ListToolRoomsHandler lists tool rooms, optionally of one city
// GET /api/v1/tool-rooms?city_id=&active_only=true
func (h *CityHandlers) ListToolRoomsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cityID, ok := apiutil.UUIDQuery(c, "city_id")
		if !ok {
			return
		}

		rooms, err := h.cityRepo.ListToolRooms(c.Request.Context(), cityID, apiutil.BoolQuery(c, "active_only", true))
		if err != nil {
			apiutil.RespondError(c, err, "list tool rooms")
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rooms, "total": len(rooms)})
	}
}

// @Summary      Open work orders by city
// @Description  Number of open work orders (not completed, cancelled or invoiced) at each active city, highest first.
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "items: []models.CityWorkOrderCount"
// @Router       /api/v1/dashboard/work-order-counts-by-city [get]
// WorkOrderCountsByCityHandler returns the open work order count per city
// GET /api/v1/dashboard/work-order-counts-by-city
func (h *CityHandlers) WorkOrderCountsByCityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := h.dashboardRepo.OpenWorkOrderCountsByCity(c.Request.Context())
		if err != nil {
			apiutil.RespondError(c, err, "count work orders")
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": counts})
	}
}
