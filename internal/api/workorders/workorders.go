// Package workorders implements the work order and work order item endpoints. Every write
// goes through the audited repositories, so each successful create, change or delete leaves
// an audit_log record attributed to the caller's request context.
package workorders

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/api/apiutil"
	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
)

// Handlers handles work order and work order item endpoints
type Handlers struct {
	workOrderRepo *repositories.WorkOrderRepository
	itemRepo      *repositories.WorkOrderItemRepository
}

// NewHandlers creates work order handlers whose writes report to hooks
func NewHandlers(db *sqlx.DB, hooks audit.Hooks) *Handlers {
	return &Handlers{
		workOrderRepo: repositories.NewWorkOrderRepository(db, hooks),
		itemRepo:      repositories.NewWorkOrderItemRepository(db, hooks),
	}
}

// CreateWorkOrderRequest is the body of POST /work-orders. Aircraft and customer snapshot
// fields left empty are copied from the referenced aircraft and customer.
type CreateWorkOrderRequest struct {
	CityID               uuid.UUID    `json:"city_id" binding:"required"`
	AircraftID           *uuid.UUID   `json:"aircraft_id"`
	CustomerID           *uuid.UUID   `json:"customer_id"`
	WorkOrderType        string       `json:"work_order_type" binding:"omitempty,oneof=work_order warranty_claim"`
	Status               string       `json:"status" binding:"omitempty,oneof=created scheduled in_progress on_hold completed cancelled invoiced"`
	StatusNotes          *string      `json:"status_notes"`
	AircraftRegistration *string      `json:"aircraft_registration" binding:"omitempty,max=20"`
	AircraftSerial       *string      `json:"aircraft_serial" binding:"omitempty,max=50"`
	AircraftMake         *string      `json:"aircraft_make" binding:"omitempty,max=100"`
	AircraftModel        *string      `json:"aircraft_model" binding:"omitempty,max=100"`
	AircraftYear         *int         `json:"aircraft_year" binding:"omitempty,min=1900,max=2100"`
	CustomerName         *string      `json:"customer_name" binding:"omitempty,max=200"`
	CustomerPONumber     *string      `json:"customer_po_number" binding:"omitempty,max=50"`
	DueDate              *models.Date `json:"due_date"`
	LeadTechnician       *string      `json:"lead_technician" binding:"omitempty,max=100"`
	SalesPerson          *string      `json:"sales_person" binding:"omitempty,max=100"`
	Priority             string       `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	CreatedBy            *string      `json:"created_by"`
}

// UpdateWorkOrderRequest is the body of PUT /work-orders/:id. Absent fields are left unchanged.
type UpdateWorkOrderRequest struct {
	AircraftID           *uuid.UUID   `json:"aircraft_id"`
	CustomerID           *uuid.UUID   `json:"customer_id"`
	WorkOrderType        *string      `json:"work_order_type" binding:"omitempty,oneof=work_order warranty_claim"`
	Status               *string      `json:"status" binding:"omitempty,oneof=created scheduled in_progress on_hold completed cancelled invoiced"`
	StatusNotes          *string      `json:"status_notes"`
	AircraftRegistration *string      `json:"aircraft_registration" binding:"omitempty,max=20"`
	AircraftSerial       *string      `json:"aircraft_serial" binding:"omitempty,max=50"`
	AircraftMake         *string      `json:"aircraft_make" binding:"omitempty,max=100"`
	AircraftModel        *string      `json:"aircraft_model" binding:"omitempty,max=100"`
	AircraftYear         *int         `json:"aircraft_year" binding:"omitempty,min=1900,max=2100"`
	CustomerName         *string      `json:"customer_name" binding:"omitempty,max=200"`
	CustomerPONumber     *string      `json:"customer_po_number" binding:"omitempty,max=50"`
	DueDate              *models.Date `json:"due_date"`
	LeadTechnician       *string      `json:"lead_technician" binding:"omitempty,max=100"`
	SalesPerson          *string      `json:"sales_person" binding:"omitempty,max=100"`
	Priority             *string      `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	UpdatedBy            *string      `json:"updated_by"`
}

func (r *UpdateWorkOrderRequest) applyTo(wo *models.WorkOrder) {
	if r.AircraftID != nil {
		wo.AircraftUUID = r.AircraftID
	}
	if r.CustomerID != nil {
		wo.CustomerUUID = r.CustomerID
	}
	if r.WorkOrderType != nil {
		wo.WorkOrderType = *r.WorkOrderType
	}
	if r.Status != nil {
		wo.Status = *r.Status
	}
	if r.Priority != nil {
		wo.Priority = *r.Priority
	}
	if r.StatusNotes != nil {
		wo.StatusNotes = r.StatusNotes
	}
	if r.AircraftRegistration != nil {
		wo.AircraftRegistration = r.AircraftRegistration
	}
	if r.AircraftSerial != nil {
		wo.AircraftSerial = r.AircraftSerial
	}
	if r.AircraftMake != nil {
		wo.AircraftMake = r.AircraftMake
	}
	if r.AircraftModel != nil {
		wo.AircraftModel = r.AircraftModel
	}
	if r.AircraftYear != nil {
		wo.AircraftYear = r.AircraftYear
	}
	if r.CustomerName != nil {
		wo.CustomerName = r.CustomerName
	}
	if r.CustomerPONumber != nil {
		wo.CustomerPONumber = r.CustomerPONumber
	}
	if r.DueDate != nil {
		wo.DueDate = r.DueDate
	}
	if r.LeadTechnician != nil {
		wo.LeadTechnician = r.LeadTechnician
	}
	if r.SalesPerson != nil {
		wo.SalesPerson = r.SalesPerson
	}
}

// @Summary      List work orders
// @Description  Paginated work orders of one city with search over number, customer name and registration.
// @Tags         WorkOrders
// @Produce      json
// @Param        city_id     query  string  true   "City UUID"
// @Param        search      query  string  false  "Search text"
// @Param        status      query  string  false  "Status"
// @Param        priority    query  string  false  "Priority"
// @Param        sort_by     query  string  false  "work_order_number, status, priority, due_date or created_at"
// @Param        sort_order  query  string  false  "asc or desc"
// @Param        page        query  int     false  "Page number (default 1)"
// @Param        page_size   query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "items, total, page, page_size"
// @Failure      400  {object}  map[string]interface{}  "city_id missing or invalid"
// @Router       /api/v1/work-orders [get]
// ListWorkOrdersHandler lists a city's work orders
// GET /api/v1/work-orders?city_id=...
func (h *Handlers) ListWorkOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cityID, ok := apiutil.UUIDQuery(c, "city_id")
		if !ok {
			return
		}
		if cityID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "city_id is required"})
			return
		}
		p := apiutil.Pagination(c)

		workOrders, total, err := h.workOrderRepo.List(c.Request.Context(), repositories.WorkOrderFilter{
			CityID:   *cityID,
			Search:   c.Query("search"),
			Status:   c.Query("status"),
			Priority: c.Query("priority"),
		}, apiutil.SortFrom(c, "created_at", "desc"), p)
		if err != nil {
			apiutil.RespondError(c, err, "list work orders")
			return
		}

		c.JSON(http.StatusOK, apiutil.ListResponse(workOrders, total, p))
	}
}

// @Summary      Get work order
// @Tags         WorkOrders
// @Produce      json
// @Param        id  path  string  true  "Work order UUID"
// @Success      200  {object}  models.WorkOrder
// @Failure      404  {object}  map[string]interface{}  "Work order not found"
// @Router       /api/v1/work-orders/{id} [get]
// GetWorkOrderHandler retrieves one work order with its item count
// GET /api/v1/work-orders/:id
func (h *Handlers) GetWorkOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		wo, err := h.workOrderRepo.Get(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve work order")
			return
		}
		if wo == nil {
			apiutil.NotFound(c, "Work order")
			return
		}

		c.JSON(http.StatusOK, wo)
	}
}

// @Summary      Create work order
// @Description  Numbers the work order per city as <CITY><seq>-<MM>-<YYYY> and records an INSERT audit entry.
// @Tags         WorkOrders
// @Accept       json
// @Produce      json
// @Param        body  body  CreateWorkOrderRequest  true  "Work order"
// @Success      201  {object}  models.WorkOrder
// @Failure      400  {object}  map[string]interface{}  "Validation failed or unknown city, aircraft or customer"
// @Router       /api/v1/work-orders [post]
// CreateWorkOrderHandler creates a work order
// POST /api/v1/work-orders
func (h *Handlers) CreateWorkOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateWorkOrderRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}

		wo := &models.WorkOrder{
			CityUUID:             req.CityID,
			AircraftUUID:         req.AircraftID,
			CustomerUUID:         req.CustomerID,
			WorkOrderType:        req.WorkOrderType,
			Status:               req.Status,
			StatusNotes:          req.StatusNotes,
			AircraftRegistration: req.AircraftRegistration,
			AircraftSerial:       req.AircraftSerial,
			AircraftMake:         req.AircraftMake,
			AircraftModel:        req.AircraftModel,
			AircraftYear:         req.AircraftYear,
			CustomerName:         req.CustomerName,
			CustomerPONumber:     req.CustomerPONumber,
			DueDate:              req.DueDate,
			LeadTechnician:       req.LeadTechnician,
			SalesPerson:          req.SalesPerson,
			Priority:             req.Priority,
			CreatedBy:            apiutil.Actor(c, req.CreatedBy),
		}

		created, err := h.workOrderRepo.Create(c.Request.Context(), wo)
		if err != nil {
			apiutil.RespondError(c, err, "create work order")
			return
		}

		c.JSON(http.StatusCreated, created)
	}
}

// @Summary      Update work order
// @Description  Partial update. An UPDATE audit entry is written only when a column changes.
// @Tags         WorkOrders
// @Accept       json
// @Produce      json
// @Param        id    path  string                  true  "Work order UUID"
// @Param        body  body  UpdateWorkOrderRequest  true  "Fields to change"
// @Success      200  {object}  models.WorkOrder
// @Failure      404  {object}  map[string]interface{}  "Work order not found"
// @Router       /api/v1/work-orders/{id} [put]
// UpdateWorkOrderHandler updates a work order
// PUT /api/v1/work-orders/:id
func (h *Handlers) UpdateWorkOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		var req UpdateWorkOrderRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}
		actor := apiutil.Actor(c, req.UpdatedBy)

		updated, err := h.workOrderRepo.Update(c.Request.Context(), id, func(wo *models.WorkOrder) error {
			before := audit.TakeSnapshot(wo)
			aircraftBefore, customerBefore := wo.AircraftUUID, wo.CustomerUUID
			req.applyTo(wo)
			// updated_by only moves with a real change, so a no-op PUT stays a no-op
			changed := len(before.ChangedFields(wo)) > 0 ||
				!sameUUID(aircraftBefore, wo.AircraftUUID) || !sameUUID(customerBefore, wo.CustomerUUID)
			if changed && actor != "" {
				wo.UpdatedBy = &actor
			}
			return nil
		})
		if err != nil {
			apiutil.RespondError(c, err, "update work order")
			return
		}
		if updated == nil {
			apiutil.NotFound(c, "Work order")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// @Summary      Delete work order
// @Description  Deletes the work order and its items in one transaction, auditing each delete.
// @Tags         WorkOrders
// @Param        id  path  string  true  "Work order UUID"
// @Success      204
// @Failure      404  {object}  map[string]interface{}  "Work order not found"
// @Router       /api/v1/work-orders/{id} [delete]
// DeleteWorkOrderHandler deletes a work order and its items
// DELETE /api/v1/work-orders/:id
func (h *Handlers) DeleteWorkOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		if err := h.workOrderRepo.Delete(c.Request.Context(), id); err != nil {
			apiutil.RespondError(c, err, "delete work order")
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
