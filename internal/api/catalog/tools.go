package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/api/apiutil"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
)

// Tool list paging and calibration windows offered to clients
var (
	toolPageSizes       = map[int]bool{25: true, 50: true, 100: true}
	calibrationWindows  = map[int]bool{60: true, 90: true}
	defaultToolPageSize = 25
)

// ToolHandlers handles the read-only tool endpoints
type ToolHandlers struct {
	toolRepo *repositories.ToolRepository
	today    func() models.Date
}

// NewToolHandlers creates a new ToolHandlers instance
func NewToolHandlers(db *sqlx.DB) *ToolHandlers {
	return &ToolHandlers{
		toolRepo: repositories.NewToolRepository(db),
		today:    models.Today,
	}
}

// Ref is the short form of a related row
type Ref struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

// ToolView is a tool as returned by the API, with its display code, calibration countdown
// and the tool room, city and kit it belongs to
type ToolView struct {
	*models.Tool
	ToolTypeCode       string            `json:"tool_type_code"`
	CalibrationDueDays *int              `json:"calibration_due_days"`
	ToolRoom           Ref               `json:"tool_room"`
	City               Ref               `json:"city"`
	ParentKit          *models.ToolBrief `json:"parent_kit"`
}

// ToolDetailView adds the contents of a kit
type ToolDetailView struct {
	ToolView
	KitContents []*models.ToolBrief `json:"kit_contents"`
}

func newToolView(t *models.Tool, today models.Date) ToolView {
	return ToolView{
		Tool:               t,
		ToolTypeCode:       models.ToolTypeCode(t.ToolType),
		CalibrationDueDays: t.CalibrationDueDays(today),
		ToolRoom:           Ref{ID: t.ToolRoomUUID, Code: t.ToolRoomCode, Name: t.ToolRoomName},
		City:               Ref{ID: t.CityUUID, Code: t.CityCode, Name: t.CityName},
		ParentKit:          t.ParentKit(),
	}
}

// @Summary      List tools
// @Description  Tools of one city. kit_filter=hide drops tools held in a kit; calib_due_days keeps certified tools due within 60 or 90 days.
// @Tags         Tools
// @Produce      json
// @Param        city_id         query  string  true   "City UUID"
// @Param        tool_room_id    query  string  false  "Tool room UUID"
// @Param        kit_filter      query  string  false  "show or hide"
// @Param        calib_due_days  query  int     false  "60 or 90"
// @Param        sort_by         query  string  false  "name, tool_type, description, make, model, serial_number, tool_room, calibration_due or created_at"
// @Param        sort_order      query  string  false  "asc or desc"
// @Param        page            query  int     false  "Page number (default 1)"
// @Param        page_size       query  int     false  "25, 50 or 100 (default 25)"
// @Success      200  {object}  map[string]interface{}  "items, total, page, page_size"
// @Router       /api/v1/tools [get]
// ListToolsHandler lists a city's tools
// GET /api/v1/tools?city_id=...
func (h *ToolHandlers) ListToolsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cityID, ok := apiutil.UUIDQuery(c, "city_id")
		if !ok {
			return
		}
		if cityID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "city_id is required"})
			return
		}
		roomID, ok := apiutil.UUIDQuery(c, "tool_room_id")
		if !ok {
			return
		}

		kitFilter := c.DefaultQuery("kit_filter", "show")
		if kitFilter != "show" && kitFilter != "hide" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kit_filter must be show or hide"})
			return
		}

		today := h.today()
		tf := repositories.ToolFilter{
			CityID:          *cityID,
			ToolRoomID:      roomID,
			HideKitContents: kitFilter == "hide",
		}
		if v := c.Query("calib_due_days"); v != "" {
			days, err := strconv.Atoi(v)
			if err != nil || !calibrationWindows[days] {
				c.JSON(http.StatusBadRequest, gin.H{"error": "calib_due_days must be 60 or 90"})
				return
			}
			due := models.Date{Date: today.AddDays(days)}
			tf.CalibrationDueBy = &due
		}

		p := apiutil.Pagination(c)
		if !toolPageSizes[p.PageSize] {
			p.PageSize = defaultToolPageSize
		}
		if _, set := c.GetQuery("page_size"); !set {
			p.PageSize = defaultToolPageSize
		}

		tools, total, err := h.toolRepo.List(c.Request.Context(), tf, apiutil.SortFrom(c, "name", "asc"), p)
		if err != nil {
			apiutil.RespondError(c, err, "list tools")
			return
		}

		views := make([]ToolView, 0, len(tools))
		for _, t := range tools {
			views = append(views, newToolView(t, today))
		}

		c.JSON(http.StatusOK, apiutil.ListResponse(views, total, p))
	}
}

// @Summary      Get tool
// @Description  Retrieve a tool with its tool room, parent kit and, for kits, the tools it holds.
// @Tags         Tools
// @Produce      json
// @Param        id  path  string  true  "Tool UUID"
// @Success      200  {object}  ToolDetailView
// @Failure      404  {object}  map[string]interface{}  "Tool not found"
// @Router       /api/v1/tools/{id} [get]
// GetToolHandler retrieves one tool
// GET /api/v1/tools/:id
func (h *ToolHandlers) GetToolHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apiutil.UUIDParam(c, "id")
		if !ok {
			return
		}

		detail, err := h.toolRepo.Get(c.Request.Context(), id)
		if err != nil {
			apiutil.RespondError(c, err, "retrieve tool")
			return
		}
		if detail == nil {
			apiutil.NotFound(c, "Tool")
			return
		}

		c.JSON(http.StatusOK, ToolDetailView{
			ToolView:    newToolView(detail.Tool, h.today()),
			KitContents: detail.KitContents,
		})
	}
}
