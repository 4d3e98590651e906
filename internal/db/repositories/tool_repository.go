package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

const toolColumns = `t.id, t.uuid, t.name, t.tool_type, t.description, t.details, t.tool_room_id, t.tool_group,
		t.parent_kit_id, t.make, t.model, t.serial_number, t.location, t.location_notes, t.tool_cost,
		t.purchase_date, t.date_labeled, t.calibration_days, t.calibration_notes, t.calibration_cost,
		t.last_calibration_date, t.next_calibration_due, t.vendor_name, t.media_count, t.created_by,
		t.updated_by, t.created_at, t.updated_at,
		tr.uuid AS tool_room_uuid, tr.code AS tool_room_code, tr.name AS tool_room_name,
		c.uuid AS city_uuid, c.code AS city_code, c.name AS city_name,
		pk.uuid AS parent_kit_uuid, pk.name AS parent_kit_name, pk.tool_type AS parent_kit_type`

const toolFrom = ` FROM tool t
		JOIN tool_room tr ON tr.id = t.tool_room_id
		JOIN city c ON c.id = tr.city_id
		LEFT JOIN tool pk ON pk.id = t.parent_kit_id`

var toolSortColumns = map[string]string{
	"name":            "t.name",
	"tool_type":       "t.tool_type",
	"description":     "t.description",
	"make":            "t.make",
	"model":           "t.model",
	"serial_number":   "t.serial_number",
	"tool_room":       "tr.code",
	"calibration_due": "t.next_calibration_due",
	"created_at":      "t.created_at",
}

// ToolFilter narrows a tool listing. CityID is required; CalibrationDueBy, when set, keeps
// certified tools whose next calibration is due on or before that date.
type ToolFilter struct {
	CityID           uuid.UUID
	ToolRoomID       *uuid.UUID
	HideKitContents  bool
	CalibrationDueBy *models.Date
}

// ToolDetail is a tool together with the tools it holds when it is a kit
type ToolDetail struct {
	*models.Tool
	KitContents []*models.ToolBrief
}

// ToolRepository handles tool reads
type ToolRepository struct {
	db *sqlx.DB
}

// NewToolRepository creates a new ToolRepository
func NewToolRepository(db *sqlx.DB) *ToolRepository {
	return &ToolRepository{db: db}
}

// List returns one page of a city's tools and the total number matching the filter
func (r *ToolRepository) List(ctx context.Context, tf ToolFilter, s Sort, p Pagination) ([]*models.Tool, int, error) {
	f := &filter{}
	f.add("c.uuid = $%d", tf.CityID)
	if tf.ToolRoomID != nil {
		f.add("tr.uuid = $%d", *tf.ToolRoomID)
	}
	if tf.HideKitContents {
		f.add("t.parent_kit_id IS NULL")
	}
	if tf.CalibrationDueBy != nil {
		f.add("t.tool_type = $%d AND t.next_calibration_due <= $%d", models.ToolTypeCertified, *tf.CalibrationDueBy)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+toolFrom+f.where(), f.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count tools: %w", err)
	}

	pageClause, args := f.page(p.Limit(), p.Offset())
	query := `SELECT ` + toolColumns + toolFrom + f.where() +
		orderBy(s, toolSortColumns, "name", "t.id") + pageClause

	tools := make([]*models.Tool, 0)
	if err := r.db.SelectContext(ctx, &tools, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list tools: %w", err)
	}
	return tools, total, nil
}

// Get retrieves a tool with its kit contents by external id
func (r *ToolRepository) Get(ctx context.Context, id uuid.UUID) (*ToolDetail, error) {
	var tool models.Tool
	err := r.db.GetContext(ctx, &tool, `SELECT `+toolColumns+toolFrom+` WHERE t.uuid = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tool: %w", err)
	}

	contents := make([]*models.ToolBrief, 0)
	err = r.db.SelectContext(ctx, &contents,
		`SELECT id, uuid, name, tool_type FROM tool WHERE parent_kit_id = $1 ORDER BY name, id`, tool.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list kit contents: %w", err)
	}
	for _, c := range contents {
		c.ToolTypeCode = models.ToolTypeCode(c.ToolType)
	}

	return &ToolDetail{Tool: &tool, KitContents: contents}, nil
}
