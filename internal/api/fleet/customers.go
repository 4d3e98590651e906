package fleet

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/api/apiutil"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
)

// CustomerHandlers handles customer and aircraft link endpoints
type CustomerHandlers struct {
	customerRepo *repositories.CustomerRepository
}

// NewCustomerHandlers creates a new CustomerHandlers instance
func NewCustomerHandlers(db *sqlx.DB) *CustomerHandlers {
	return &CustomerHandlers{customerRepo: repositories.NewCustomerRepository(db)}
}

// CustomerRequest is the body of POST /customers
type CustomerRequest struct {
	Name      string  `json:"name" binding:"required,max=200"`
	Email     *string `json:"email" binding:"omitempty,email,max=255"`
	Phone     *string `json:"phone" binding:"omitempty,max=50"`
	PhoneType *string `json:"phone_type" binding:"omitempty,oneof=mobile work home fax other"`
	Address   *string `json:"address" binding:"omitempty,max=255"`
	Address2  *string `json:"address_2" binding:"omitempty,max=255"`
	City      *string `json:"city" binding:"omitempty,max=100"`
	State     *string `json:"state" binding:"omitempty,max=100"`
	Zip       *string `json:"zip" binding:"omitempty,max=20"`
	Country   *string `json:"country" binding:"omitempty,max=100"`
	Notes     *string `json:"notes"`
	IsActive  *bool   `json:"is_active"`
	CreatedBy *string `json:"created_by"`
}

// UpdateCustomerRequest is the body of PUT /customers/:id. Absent fields are left unchanged.
type UpdateCustomerRequest struct {
	Name      *string `json:"name" binding:"omitempty,min=1,max=200"`
	Email     *string `json:"email" binding:"omitempty,email,max=255"`
	Phone     *string `json:"phone" binding:"omitempty,max=50"`
	PhoneType *string `json:"phone_type" binding:"omitempty,oneof=mobile work home fax other"`
	Address   *string `json:"address" binding:"omitempty,max=255"`
	Address2  *string `json:"address_2" binding:"omitempty,max=255"`
	City      *string `json:"city" binding:"omitempty,max=100"`
	State     *string `json:"state" binding:"omitempty,max=100"`
	Zip       *string `json:"zip" binding:"omitempty,max=20"`
	Country   *string `json:"country" binding:"omitempty,max=100"`
	Notes     *string `json:"notes"`
	IsActive  *bool   `json:"is_active"`
	UpdatedBy *string `json:"updated_by"`
}

func (r *UpdateCustomerRequest) applyTo(cu *models.Customer) {
	if r.Name != nil {
		cu.Name = *r.Name
	}
	for dst, src := range map[**string]*string{
		&cu.Email:     r.Email,
		&cu.Phone:     r.Phone,
		&cu.PhoneType: r.PhoneType,
		&cu.Address:   r.Address,
		&cu.Address2:  r.Address2,
		&cu.City:      r.City,
		&cu.State:     r.State,
		&cu.Zip:       r.Zip,
		&cu.Country:   r.Country,
		&cu.Notes:     r.Notes,
	} {
		if src != nil {
			*dst = src
		}
	}
	if r.IsActive != nil {
		cu.IsActive = *r.IsActive
	}
}

// LinkRequest is the optional body of POST /customers/:id/aircraft/:aircraft_id
type LinkRequest struct {
	CreatedBy *string `json:"created_by"`
}

// ListCustomersHandler lists customers
// GET /api/v1/customers?search=&active_only=&sort_by=name
func (h *CustomerHandlers) ListCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := apiutil.Pagination(c)

		customers, total, err := h.customerRepo.List(c.Request.Context(), repositories.CustomerFilter{
			Search:     c.Query("search"),
			ActiveOnly: apiutil.BoolQuery(c, "active_only", false),
		}, apiutil.SortFrom(c, "name", "asc"), p)
		if err != nil {
			apiutil.RespondError(c, err, "list customers")
			return
		}

		c.JSON(http.StatusOK, apiutil.ListResponse(customers, total, p))
	}
}

// GetCustomerHandler retrieves one customer
// GET /api/v1/customers/:id
func (h *CustomerHandlers) GetCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		customer, err := h.customerRepo.Get(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve customer")
			return
		}
		if customer == nil {
			apiutil.NotFound(c, "Customer")
			return
		}

		c.JSON(http.StatusOK, customer)
	}
}

// CreateCustomerHandler creates a customer
// POST /api/v1/customers
func (h *CustomerHandlers) CreateCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CustomerRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}

		customer := &models.Customer{
			Name:      req.Name,
			Email:     req.Email,
			Phone:     req.Phone,
			PhoneType: req.PhoneType,
			Address:   req.Address,
			Address2:  req.Address2,
			City:      req.City,
			State:     req.State,
			Zip:       req.Zip,
			Country:   req.Country,
			Notes:     req.Notes,
			IsActive:  req.IsActive == nil || *req.IsActive,
			CreatedBy: apiutil.Actor(c, req.CreatedBy),
		}

		created, err := h.customerRepo.Create(c.Request.Context(), customer)
		if err != nil {
			apiutil.RespondError(c, err, "create customer")
			return
		}

		c.JSON(http.StatusCreated, created)
	}
}

// UpdateCustomerHandler updates a customer
// PUT /api/v1/customers/:id
func (h *CustomerHandlers) UpdateCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		var req UpdateCustomerRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}
		actor := apiutil.Actor(c, req.UpdatedBy)

		updated, err := h.customerRepo.Update(c.Request.Context(), id, func(cu *models.Customer) error {
			req.applyTo(cu)
			if actor != "" {
				cu.UpdatedBy = &actor
			}
			return nil
		})
		if err != nil {
			apiutil.RespondError(c, err, "update customer")
			return
		}
		if updated == nil {
			apiutil.NotFound(c, "Customer")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// DeleteCustomerHandler deletes a customer that has no aircraft links or work orders
// DELETE /api/v1/customers/:id
func (h *CustomerHandlers) DeleteCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		if err := h.customerRepo.Delete(c.Request.Context(), id); err != nil {
			apiutil.RespondError(c, err, "delete customer")
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// ListCustomerAircraftHandler lists the aircraft linked to a customer
// GET /api/v1/customers/:id/aircraft
func (h *CustomerHandlers) ListCustomerAircraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		customer, err := h.customerRepo.Get(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve customer")
			return
		}
		if customer == nil {
			apiutil.NotFound(c, "Customer")
			return
		}

		aircraft, err := h.customerRepo.ListAircraft(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "list customer aircraft")
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": aircraft})
	}
}

// LinkAircraftHandler links a customer to an aircraft. The first customer linked to an
// aircraft becomes its primary customer.
// POST /api/v1/customers/:id/aircraft/:aircraft_id
func (h *CustomerHandlers) LinkAircraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		aircraftID, ok := apiutil.UUIDParam(c, "aircraft_id")
		if !ok {
			return
		}

		var req LinkRequest
		if c.Request.ContentLength != 0 && !apiutil.BindJSON(c, &req) {
			return
		}
		actor := apiutil.Actor(c, req.CreatedBy)
		if actor == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "created_by is required"})
			return
		}

		link, err := h.customerRepo.LinkAircraft(c.Request.Context(), customerID, aircraftID, actor)
		if err != nil {
			apiutil.RespondError(c, err, "link customer to aircraft")
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"customer_id": customerID,
			"aircraft_id": aircraftID,
			"is_primary":  link.IsPrimary,
			"created_by":  link.CreatedBy,
			"created_at":  link.CreatedAt,
		})
	}
}

// UnlinkAircraftHandler removes a customer link, promoting the oldest remaining link when the
// primary customer is removed
// DELETE /api/v1/customers/:id/aircraft/:aircraft_id
func (h *CustomerHandlers) UnlinkAircraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		aircraftID, ok := apiutil.UUIDParam(c, "aircraft_id")
		if !ok {
			return
		}

		if err := h.customerRepo.UnlinkAircraft(c.Request.Context(), customerID, aircraftID); err != nil {
			apiutil.RespondError(c, err, "unlink customer from aircraft")
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// SetPrimaryHandler makes a linked customer the aircraft's primary customer
// PUT /api/v1/customers/:id/aircraft/:aircraft_id/primary
func (h *CustomerHandlers) SetPrimaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		aircraftID, ok := apiutil.UUIDParam(c, "aircraft_id")
		if !ok {
			return
		}

		if err := h.customerRepo.SetPrimary(c.Request.Context(), customerID, aircraftID); err != nil {
			apiutil.RespondError(c, err, "set primary customer")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"customer_id": customerID,
			"aircraft_id": aircraftID,
			"is_primary":  true,
		})
	}
}
