package workorders

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cirrus-mro/cirrus-api/internal/api/apiutil"
	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

// CreateItemRequest is the body of POST /work-orders/:id/items. The item number is assigned
// by the server.
type CreateItemRequest struct {
	Status           string           `json:"status" binding:"omitempty,oneof=open waiting_for_parts in_progress tech_review admin_review finished"`
	Discrepancy      *string          `json:"discrepancy"`
	CorrectiveAction *string          `json:"corrective_action"`
	Notes            *string          `json:"notes"`
	Category         *string          `json:"category" binding:"omitempty,max=100"`
	SubCategory      *string          `json:"sub_category" binding:"omitempty,max=100"`
	ATACode          *string          `json:"ata_code" binding:"omitempty,ata_code"`
	HoursEstimate    *decimal.Decimal `json:"hours_estimate" binding:"omitempty,nonneg"`
	BillingMethod    string           `json:"billing_method" binding:"omitempty,oneof=hourly flat_rate"`
	FlatRate         *decimal.Decimal `json:"flat_rate" binding:"omitempty,nonneg"`
	Department       *string          `json:"department" binding:"omitempty,max=100"`
	DoNotBill        bool             `json:"do_not_bill"`
	EnableRII        bool             `json:"enable_rii"`
	CreatedBy        *string          `json:"created_by"`
}

// UpdateItemRequest is the body of PUT /work-orders/:id/items/:item_id. Absent fields are left
// unchanged.
type UpdateItemRequest struct {
	Status           *string          `json:"status" binding:"omitempty,oneof=open waiting_for_parts in_progress tech_review admin_review finished"`
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
	UpdatedBy        *string          `json:"updated_by"`
}

func (r *UpdateItemRequest) applyTo(item *models.WorkOrderItem) {
	if r.Status != nil {
		item.Status = *r.Status
	}
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

// ListItemsHandler lists a work order's items by item number
// GET /api/v1/work-orders/:id/items
func (h *Handlers) ListItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		items, err := h.itemRepo.List(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "list work order items")
			return
		}
		if items == nil {
			apiutil.NotFound(c, "Work order")
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
	}
}

// GetItemHandler retrieves one item
// GET /api/v1/work-orders/:id/items/:item_id
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

		item, err := h.itemRepo.Get(c.Request.Context(), id, itemID)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve work order item")
			return
		}
		if item == nil {
			apiutil.NotFound(c, "Work order item")
			return
		}

		c.JSON(http.StatusOK, item)
	}
}

// CreateItemHandler adds an item numbered after the work order's last item
// POST /api/v1/work-orders/:id/items
func (h *Handlers) CreateItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreateItemRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}

		item := &models.WorkOrderItem{
			Status:           req.Status,
			Discrepancy:      req.Discrepancy,
			CorrectiveAction: req.CorrectiveAction,
			Notes:            req.Notes,
			Category:         req.Category,
			SubCategory:      req.SubCategory,
			ATACode:          req.ATACode,
			HoursEstimate:    req.HoursEstimate,
			BillingMethod:    req.BillingMethod,
			FlatRate:         req.FlatRate,
			Department:       req.Department,
			DoNotBill:        req.DoNotBill,
			EnableRII:        req.EnableRII,
			CreatedBy:        apiutil.Actor(c, req.CreatedBy),
		}

		created, err := h.itemRepo.Create(c.Request.Context(), id, item)
		if err != nil {
			apiutil.RespondError(c, err, "create work order item")
			return
		}

		c.JSON(http.StatusCreated, created)
	}
}

// UpdateItemHandler updates an item
// PUT /api/v1/work-orders/:id/items/:item_id
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
		var req UpdateItemRequest
		if !apiutil.BindJSON(c, &req) {
			return
		}
		actor := apiutil.Actor(c, req.UpdatedBy)

		updated, err := h.itemRepo.Update(c.Request.Context(), id, itemID, func(item *models.WorkOrderItem) error {
			before := audit.TakeSnapshot(item)
			req.applyTo(item)
			if actor != "" && len(before.ChangedFields(item)) > 0 {
				item.UpdatedBy = &actor
			}
			return nil
		})
		if err != nil {
			apiutil.RespondError(c, err, "update work order item")
			return
		}
		if updated == nil {
			apiutil.NotFound(c, "Work order item")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

// DeleteItemHandler deletes an item
// DELETE /api/v1/work-orders/:id/items/:item_id
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

		if err := h.itemRepo.Delete(c.Request.Context(), id, itemID); err != nil {
			apiutil.RespondError(c, err, "delete work order item")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
