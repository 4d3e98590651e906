// Package fleet implements the aircraft and customer endpoints, including the many-to-many
// links between them and the single primary customer of each aircraft.
package fleet

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/api/apiutil"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
)

// AircraftHandlers handles aircraft endpoints
type AircraftHandlers struct {
	aircraftRepo *repositories.AircraftRepository
	customerRepo *repositories.CustomerRepository
}

// NewAircraftHandlers creates a new AircraftHandlers instance
func NewAircraftHandlers(db *sqlx.DB) *AircraftHandlers {
	return &AircraftHandlers{
		aircraftRepo: repositories.NewAircraftRepository(db),
		customerRepo: repositories.NewCustomerRepository(db),
	}
}

// CreateAircraftRequest is the body of POST /aircraft
type CreateAircraftRequest struct {
	RegistrationNumber string     `json:"registration_number" binding:"required,tail_number"`
	SerialNumber       *string    `json:"serial_number" binding:"omitempty,max=50"`
	Make               *string    `json:"make" binding:"omitempty,max=100"`
	Model              *string    `json:"model" binding:"omitempty,max=100"`
	YearBuilt          *int       `json:"year_built" binding:"omitempty,min=1900,max=2100"`
	MeterProfile       *string    `json:"meter_profile" binding:"omitempty,max=50"`
	PrimaryCityID      *uuid.UUID `json:"primary_city_id"`
	AircraftClass      *string    `json:"aircraft_class" binding:"omitempty,max=50"`
	FuelCode           *string    `json:"fuel_code" binding:"omitempty,max=20"`
	Notes              *string    `json:"notes"`
	IsActive           *bool      `json:"is_active"`
	CreatedBy          *string    `json:"created_by"`
}

// UpdateAircraftRequest is the body of PUT /aircraft/:id. Absent fields are left unchanged.
type UpdateAircraftRequest struct {
	RegistrationNumber *string    `json:"registration_number" binding:"omitempty,tail_number"`
	SerialNumber       *string    `json:"serial_number" binding:"omitempty,max=50"`
	Make               *string    `json:"make" binding:"omitempty,max=100"`
	Model              *string    `json:"model" binding:"omitempty,max=100"`
	YearBuilt          *int       `json:"year_built" binding:"omitempty,min=1900,max=2100"`
	MeterProfile       *string    `json:"meter_profile" binding:"omitempty,max=50"`
	PrimaryCityID      *uuid.UUID `json:"primary_city_id"`
	AircraftClass      *string    `json:"aircraft_class" binding:"omitempty,max=50"`
	FuelCode           *string    `json:"fuel_code" binding:"omitempty,max=20"`
	Notes              *string    `json:"notes"`
	IsActive           *bool      `json:"is_active"`
	UpdatedBy          *string    `json:"updated_by"`
}

func (r *UpdateAircraftRequest) applyTo(a *models.Aircraft) {
	if r.RegistrationNumber != nil {
		a.RegistrationNumber = *r.RegistrationNumber
	}
	if r.SerialNumber != nil {
		a.SerialNumber = r.SerialNumber
	}
	if r.Make != nil {
		a.Make = r.Make
	}
	if r.Model != nil {
		a.Model = r.Model
	}
	if r.YearBuilt != nil {
		a.YearBuilt = r.YearBuilt
	}
	if r.MeterProfile != nil {
		a.MeterProfile = r.MeterProfile
	}
	if r.PrimaryCityID != nil {
		a.PrimaryCityUUID = r.PrimaryCityID
	}
	if r.AircraftClass != nil {
		a.AircraftClass = r.AircraftClass
	}
	if r.FuelCode != nil {
		a.FuelCode = r.FuelCode
	}
	if r.Notes != nil {
		a.Notes = r.Notes
	}
	if r.IsActive != nil {
		a.IsActive = *r.IsActive
	}
}

// AircraftDetail is an aircraft with its linked customers, primary first
type AircraftDetail struct {
	*models.Aircraft
	Customers []*models.LinkedCustomer `json:"customers"`
}

// @Summary      List aircraft
// @Description  Paginated aircraft list with search over registration, serial, make and model.
// @Tags         Aircraft
// @Produce      json
// @Param        search       query  string  false  "Search text"
// @Param        city_id      query  string  false  "Primary city UUID"
// @Param        active_only  query  bool    false  "Only active aircraft"
// @Param        sort_by      query  string  false  "registration_number, make, model, year_built or created_at"
// @Param        sort_order   query  string  false  "asc or desc"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        page_size    query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "items, total, page, page_size"
// @Router       /api/v1/aircraft [get]
// ListAircraftHandler lists aircraft
// GET /api/v1/aircraft
func (h *AircraftHandlers) ListAircraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cityID, ok := apiutil.UUIDQuery(c, "city_id")
		if !ok {
			return
		}
		p := apiutil.Pagination(c)

		aircraft, total, err := h.aircraftRepo.List(c.Request.Context(), repositories.AircraftFilter{
			Search:     c.Query("search"),
			CityID:     cityID,
			ActiveOnly: apiutil.BoolQuery(c, "active_only", false),
		}, apiutil.SortFrom(c, "registration_number", "asc"), p)
		if err != nil {
			apiutil.RespondError(c, err, "list aircraft")
			return
		}

		c.JSON(http.StatusOK, apiutil.ListResponse(aircraft, total, p))
	}
}

// @Summary      Get aircraft
// @Description  Retrieve an aircraft with its linked customers.
// @Tags         Aircraft
// @Produce      json
// @Param        id  path  string  true  "Aircraft UUID"
// @Success      200  {object}  AircraftDetail
// @Failure      404  {object}  map[string]interface{}  "Aircraft not found"
// @Router       /api/v1/aircraft/{id} [get]
// GetAircraftHandler retrieves one aircraft
// GET /api/v1/aircraft/:id
func (h *AircraftHandlers) GetAircraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		aircraft, err := h.aircraftRepo.Get(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve aircraft")
			return
		}
		if aircraft == nil {
			apiutil.NotFound(c, "Aircraft")
			return
		}

		customers, err := h.customerRepo.ListForAircraft(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve aircraft customers")
			return
		}

		c.JSON(http.StatusOK, AircraftDetail{Aircraft: aircraft, Customers: customers})
	}
}

// @Summary      Create aircraft
// @Tags         Aircraft
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAircraftRequest  true  "Aircraft"
// @Success      201  {object}  models.Aircraft
// @Failure      400  {object}  map[string]interface{}  "Validation failed or unknown city"
// @Failure      409  {object}  map[string]interface{}  "Registration already exists"
// @Router       /api/v1/aircraft [post]
// CreateAircraftHandler creates an aircraft
// POST /api/v1/aircraft
func (h *AircraftHandlers) CreateAircraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAircraftRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}

		aircraft := &models.Aircraft{
			RegistrationNumber: req.RegistrationNumber,
			SerialNumber:       req.SerialNumber,
			Make:               req.Make,
			Model:              req.Model,
			YearBuilt:          req.YearBuilt,
			MeterProfile:       req.MeterProfile,
			PrimaryCityUUID:    req.PrimaryCityID,
			AircraftClass:      req.AircraftClass,
			FuelCode:           req.FuelCode,
			Notes:              req.Notes,
			IsActive:           req.IsActive == nil || *req.IsActive,
			CreatedBy:          apiutil.Actor(c, req.CreatedBy),
		}

		created, err := h.aircraftRepo.Create(c.Request.Context(), aircraft)
		if err != nil {
			apiutil.RespondError(c, err, "create aircraft")
			return
		}

		c.JSON(http.StatusCreated, created)
	}
}

// @Summary      Update aircraft
// @Description  Partial update; absent fields keep their current value.
// @Tags         Aircraft
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true  "Aircraft UUID"
// @Param        body  body  UpdateAircraftRequest  true  "Fields to change"
// @Success      200  {object}  models.Aircraft
// @Failure      404  {object}  map[string]interface{}  "Aircraft not found"
// @Router       /api/v1/aircraft/{id} [put]
// UpdateAircraftHandler updates an aircraft
// PUT /api/v1/aircraft/:id
func (h *AircraftHandlers) UpdateAircraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		var req UpdateAircraftRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}
		actor := apiutil.Actor(c, req.UpdatedBy)

		updated, err := h.aircraftRepo.Update(c.Request.Context(), id, func(a *models.Aircraft) error {
			req.applyTo(a)
			if actor != "" {
				a.UpdatedBy = &actor
			}
			return nil
		})
		if err != nil {
			apiutil.RespondError(c, err, "update aircraft")
			return
		}
		if updated == nil {
			apiutil.NotFound(c, "Aircraft")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// @Summary      Delete aircraft
// @Description  Removes the aircraft and its customer links. Aircraft with work orders cannot be deleted.
// @Tags         Aircraft
// @Security     Bearer
// @Param        id  path  string  true  "Aircraft UUID"
// @Success      204
// @Failure      404  {object}  map[string]interface{}  "Aircraft not found"
// @Failure      409  {object}  map[string]interface{}  "Aircraft has work orders"
// @Router       /api/v1/aircraft/{id} [delete]
// DeleteAircraftHandler deletes an aircraft
// DELETE /api/v1/aircraft/:id
func (h *AircraftHandlers) DeleteAircraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		if err := h.aircraftRepo.Delete(c.Request.Context(), id); err != nil {
			apiutil.RespondError(c, err, "delete aircraft")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
