// Package laborkits implements the labor kit endpoints: kit and kit item CRUD, and applying a
// kit to a work order, which copies every kit item onto the work order as a new audited item.
package laborkits

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/cirrus-mro/cirrus-api/internal/api/apiutil"
	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
)

// Handlers handles labor kit endpoints
type Handlers struct {
	kitRepo *repositories.LaborKitRepository
}

// NewHandlers creates labor kit handlers. hooks receives the work order items created when a
// kit is applied.
func NewHandlers(db *sqlx.DB, hooks audit.Hooks) *Handlers {
	return &Handlers{kitRepo: repositories.NewLaborKitRepository(db, hooks)}
}

// KitRequest is the body of POST /labor-kits
type KitRequest struct {
	Name        string  `json:"name" binding:"required,max=200"`
	Description *string `json:"description"`
	Category    *string `json:"category" binding:"omitempty,max=100"`
	IsActive    *bool   `json:"is_active"`
	CreatedBy   *string `json:"created_by"`
}

// UpdateKitRequest is the body of PUT /labor-kits/:id. Absent fields are left unchanged.
type UpdateKitRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	Category    *string `json:"category" binding:"omitempty,max=100"`
	IsActive    *bool   `json:"is_active"`
	UpdatedBy   *string `json:"updated_by"`
}

// KitItemRequest is the body of POST and PUT /labor-kits/:id/items. On update absent fields
// are left unchanged.
type KitItemRequest struct {
	Discrepancy      *string          `json:"discrepancy"`
	CorrectiveAction *string          `json:"corrective_action"`
	Notes            *string          `json:"notes"`
	Category         *string          `json:"category" binding:"omitempty,max=100"`
	SubCategory      *string          `json:"sub_category" binding:"omitempty,max=100"`
	ATACode          *string          `json:"ata_code" binding:"omitempty,ata_code"`
	HoursEstimate    *decimal.Decimal `json:"hours_estimate" binding:"omitempty,nonneg"`
	BillingMethod    *string          `json:"billing_method" binding:"omitempty,oneof=hourly flat_rate"`
	FlatRate         *decimal.Decimal `json:"flat_rate" binding:"omitempty,nonneg"`
	Department       *string          `json:"department" binding:"omitempty,max=100"`
	DoNotBill        *bool            `json:"do_not_bill"`
	EnableRII        *bool            `json:"enable_rii"`
	CreatedBy        *string          `json:"created_by"`
	UpdatedBy        *string          `json:"updated_by"`
}

func (r *KitItemRequest) applyTo(item *models.LaborKitItem) {
	if r.Discrepancy != nil {
		item.Discrepancy = r.Discrepancy
	}
	if r.CorrectiveAction != nil {
		item.CorrectiveAction = r.CorrectiveAction
	}
	if r.Notes != nil {
		item.Notes = r.Notes
	}
	if r.Category != nil {
		item.Category = r.Category
	}
	if r.SubCategory != nil {
		item.SubCategory = r.SubCategory
	}
	if r.ATACode != nil {
		item.ATACode = r.ATACode
	}
	if r.HoursEstimate != nil {
		item.HoursEstimate = r.HoursEstimate
	}
	if r.BillingMethod != nil {
		item.BillingMethod = *r.BillingMethod
	}
	if r.FlatRate != nil {
		item.FlatRate = r.FlatRate
	}
	if r.Department != nil {
		item.Department = r.Department
	}
	if r.DoNotBill != nil {
		item.DoNotBill = *r.DoNotBill
	}
	if r.EnableRII != nil {
		item.EnableRII = *r.EnableRII
	}
}

// ApplyRequest is the optional body of POST /labor-kits/:id/apply/:work_order_id
type ApplyRequest struct {
	CreatedBy *string `json:"created_by"`
}

// @Summary      List labor kits
// @Tags         LaborKits
// @Produce      json
// @Param        search       query  string  false  "Search over name and description"
// @Param        category     query  string  false  "Category"
// @Param        active_only  query  bool    false  "Only active kits"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        page_size    query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "items, total, page, page_size"
// @Router       /api/v1/labor-kits [get]
// ListKitsHandler lists labor kits
// GET /api/v1/labor-kits
func (h *Handlers) ListKitsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := apiutil.Pagination(c)

		kits, total, err := h.kitRepo.List(c.Request.Context(), repositories.LaborKitFilter{
			Search:     c.Query("search"),
			Category:   c.Query("category"),
			ActiveOnly: apiutil.BoolQuery(c, "active_only", false),
		}, apiutil.SortFrom(c, "name", "asc"), p)
		if err != nil {
			apiutil.RespondError(c, err, "list labor kits")
			return
		}

		c.JSON(http.StatusOK, apiutil.ListResponse(kits, total, p))
	}
}

// GetKitHandler retrieves one labor kit
// GET /api/v1/labor-kits/:id
func (h *Handlers) GetKitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		kit, err := h.kitRepo.Get(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve labor kit")
			return
		}
		if kit == nil {
			apiutil.NotFound(c, "Labor kit")
			return
		}

		c.JSON(http.StatusOK, kit)
	}
}

// CreateKitHandler creates a labor kit
// POST /api/v1/labor-kits
func (h *Handlers) CreateKitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req KitRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}

		kit := &models.LaborKit{
			Name:        req.Name,
			Description: req.Description,
			Category:    req.Category,
			IsActive:    req.IsActive == nil || *req.IsActive,
			CreatedBy:   apiutil.Actor(c, req.CreatedBy),
		}

		created, err := h.kitRepo.Create(c.Request.Context(), kit)
		if err != nil {
			apiutil.RespondError(c, err, "create labor kit")
			return
		}

		c.JSON(http.StatusCreated, created)
	}
}

// UpdateKitHandler updates a labor kit
// PUT /api/v1/labor-kits/:id
func (h *Handlers) UpdateKitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		var req UpdateKitRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}
		actor := apiutil.Actor(c, req.UpdatedBy)

		updated, err := h.kitRepo.Update(c.Request.Context(), id, func(kit *models.LaborKit) error {
			if req.Name != nil {
				kit.Name = *req.Name
			}
			if req.Description != nil {
				kit.Description = req.Description
			}
			if req.Category != nil {
				kit.Category = req.Category
			}
			if req.IsActive != nil {
				kit.IsActive = *req.IsActive
			}
			if actor != "" {
				kit.UpdatedBy = &actor
			}
			return nil
		})
		if err != nil {
			apiutil.RespondError(c, err, "update labor kit")
			return
		}
		if updated == nil {
			apiutil.NotFound(c, "Labor kit")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// DeleteKitHandler deletes a labor kit and its items
// DELETE /api/v1/labor-kits/:id
func (h *Handlers) DeleteKitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		if err := h.kitRepo.Delete(c.Request.Context(), id); err != nil {
			apiutil.RespondError(c, err, "delete labor kit")
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// ListItemsHandler lists a kit's items
// GET /api/v1/labor-kits/:id/items?sort_by=item_number
func (h *Handlers) ListItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		items, err := h.kitRepo.ListItems(c.Request.Context(), id, apiutil.SortFrom(c, "item_number", "asc"))
		if err != nil {
			apiutil.RespondError(c, err, "list labor kit items")
			return
		}
		if items == nil {
			apiutil.NotFound(c, "Labor kit")
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
	}
}

// GetItemHandler retrieves one kit item
// GET /api/v1/labor-kits/:id/items/:item_id
func (h *Handlers) GetItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		itemID, ok := apiutil.UUIDParam(c, "item_id")
		if !ok {
			return
		}

		item, err := h.kitRepo.GetItem(c.Request.Context(), id, itemID)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve labor kit item")
			return
		}
		if item == nil {
			apiutil.NotFound(c, "Labor kit item")
			return
		}

		c.JSON(http.StatusOK, item)
	}
}

// CreateItemHandler adds an item numbered after the kit's last item
// POST /api/v1/labor-kits/:id/items
func (h *Handlers) CreateItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		var req KitItemRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}

		item := &models.LaborKitItem{CreatedBy: apiutil.Actor(c, req.CreatedBy)}
		req.applyTo(item)

		created, err := h.kitRepo.CreateItem(c.Request.Context(), id, item)
		if err != nil {
			apiutil.RespondError(c, err, "create labor kit item")
			return
		}

		c.JSON(http.StatusCreated, created)
	}
}

// UpdateItemHandler updates a kit item
// PUT /api/v1/labor-kits/:id/items/:item_id
func (h *Handlers) UpdateItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		itemID, ok := apiutil.UUIDParam(c, "item_id")
		if !ok {
			return
		}
		var req KitItemRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}
		actor := apiutil.Actor(c, req.UpdatedBy)

		updated, err := h.kitRepo.UpdateItem(c.Request.Context(), id, itemID, func(item *models.LaborKitItem) error {
			req.applyTo(item)
			if actor != "" {
				item.UpdatedBy = &actor
			}
			return nil
		})
		if err != nil {
			apiutil.RespondError(c, err, "update labor kit item")
			return
		}
		if updated == nil {
			apiutil.NotFound(c, "Labor kit item")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// DeleteItemHandler deletes a kit item
// DELETE /api/v1/labor-kits/:id/items/:item_id
func (h *Handlers) DeleteItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		itemID, ok := apiutil.UUIDParam(c, "item_id")
		if !ok {
			return
		}

		if err := h.kitRepo.DeleteItem(c.Request.Context(), id, itemID); err != nil {
			apiutil.RespondError(c, err, "delete labor kit item")
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary      Apply labor kit
// @Description  Copies every item of an active kit onto the work order as new open items, numbered after its last item. Each copy is audited.
// @Tags         LaborKits
// @Security     Bearer
// @Produce      json
// @Param        id             path  string  true  "Labor kit UUID"
// @Param        work_order_id  path  string  true  "Work order UUID"
// @Success      200  {object}  map[string]interface{}  "items_created, labor_kit_id, work_order_id"
// @Failure      400  {object}  map[string]interface{}  "Kit missing or inactive, or work order missing"
// @Router       /api/v1/labor-kits/{id}/apply/{work_order_id} [post]
// ApplyKitHandler applies a labor kit to a work order
// POST /api/v1/labor-kits/:id/apply/:work_order_id
func (h *Handlers) ApplyKitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		kitID, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		workOrderID, ok := apiutil.UUIDParam(c, "work_order_id")
		if !ok {
			return
		}

		var req ApplyRequest
		if c.Request.ContentLength != 0 && !apiutil.BindJSON(c, &req) {
			return
		}

		created, err := h.kitRepo.Apply(c.Request.Context(), kitID, workOrderID, apiutil.Actor(c, req.CreatedBy))
		if err != nil {
			apiutil.RespondError(c, err, "apply labor kit")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"items_created": created,
			"labor_kit_id":  kitID,
			"work_order_id": workOrderID,
		})
	}
}
