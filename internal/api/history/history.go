// Package history exposes the audit log over HTTP: the change history of a single entity and
// the combined history of a parent entity together with its child items.
package history

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cirrus-mro/cirrus-api/internal/api/apiutil"
	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

// Handlers serves audit history queries
type Handlers struct {
	queries *audit.QueryService
}

// NewHandlers creates history handlers backed by queries
func NewHandlers(queries *audit.QueryService) *Handlers {
	return &Handlers{queries: queries}
}

// @Summary      Entity audit history
// @Description  Audit records of one entity, newest first. Unknown entities return an empty page.
// @Tags         Audit
// @Produce      json
// @Param        entity_type  path   string  true   "Entity type, e.g. work_order"
// @Param        entity_id    path   string  true   "Entity UUID"
// @Param        from_date    query  string  false  "Inclusive lower bound, RFC 3339 or YYYY-MM-DD"
// @Param        to_date      query  string  false  "Inclusive upper bound, RFC 3339 or YYYY-MM-DD"
// @Param        action       query  string  false  "INSERT, UPDATE or DELETE"
// @Param        user_id      query  string  false  "Acting user"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        page_size    query  int     false  "Items per page, 1-100 (default 50)"
// @Success      200  {object}  map[string]interface{}  "items, total, page, page_size, has_next"
// @Failure      422  {object}  map[string]interface{}  "Invalid id, filter or page"
// @Router       /api/v1/audit/{entity_type}/{entity_id} [get]
// GetHistoryHandler returns the audit history of one entity
// GET /api/v1/audit/:entity_type/:entity_id
func (h *Handlers) GetHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entityID, ok := apiutil.UUIDParamStatus(c, "entity_id", http.StatusUnprocessableEntity)
		if !ok {
			return
		}
		page, ok := pageRequest(c)
		if !ok {
			return
		}
		filter, ok := historyFilter(c)
		if !ok {
			return
		}

		result, err := h.queries.GetHistory(c.Request.Context(), entityType(c.Param("entity_type")), entityID, filter, page)
		if err != nil {
			respondQueryError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Combined audit history
// @Description  Audit records of a parent entity and of its child items, including deleted children, newest first. Child records carry item_number.
// @Tags         Audit
// @Produce      json
// @Param        entity_type  path   string  true   "Parent entity type, e.g. work_order"
// @Param        entity_id    path   string  true   "Parent UUID"
// @Param        child_type   query  string  false  "Child entity type; defaults to the one registered for the parent"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        page_size    query  int     false  "Items per page, 1-100 (default 50)"
// @Success      200  {object}  map[string]interface{}  "items, total, page, page_size, has_next"
// @Failure      404  {object}  map[string]interface{}  "Parent not found"
// @Failure      422  {object}  map[string]interface{}  "Invalid id or page"
// @Router       /api/v1/audit/{entity_type}/{entity_id}/combined [get]
// GetCombinedHistoryHandler returns the combined history of a parent and its children
// GET /api/v1/audit/:entity_type/:entity_id/combined
func (h *Handlers) GetCombinedHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		parentID, ok := apiutil.UUIDParamStatus(c, "entity_id", http.StatusUnprocessableEntity)
		if !ok {
			return
		}
		page, ok := pageRequest(c)
		if !ok {
			return
		}

		parentType := entityType(c.Param("entity_type"))
		childType := entityType(c.Query("child_type"))
		if childType == "" {
			if children := h.queries.ChildTypes(parentType); len(children) == 1 {
				childType = children[0]
			}
		}

		result, err := h.queries.GetCombinedHistory(c.Request.Context(), parentType, parentID, childType, page)
		if err != nil {
			respondQueryError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// entityType accepts the URL form work-order for work_order
func entityType(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "-", "_")
}

// pageRequest parses page and page_size. Unlike the CRUD lists, out-of-range values are
// rejected rather than clamped; the query service does the range check.
func pageRequest(c *gin.Context) (audit.PageRequest, bool) {
	page := audit.DefaultPageRequest()
	for name, dst := range map[string]*int{"page": &page.Page, "page_size": &page.PageSize} {
		v, set := c.GetQuery(name)
		if !set {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": name + " must be an integer"})
			return page, false
		}
		*dst = n
	}
	return page, true
}

func historyFilter(c *gin.Context) (audit.HistoryFilter, bool) {
	f := audit.HistoryFilter{
		Action: models.AuditAction(strings.ToUpper(c.Query("action"))),
		UserID: c.Query("user_id"),
	}

	if v := c.Query("from_date"); v != "" {
		from, err := parseBound(v, false)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "from_date must be RFC 3339 or YYYY-MM-DD"})
			return f, false
		}
		f.From = &from
	}
	if v := c.Query("to_date"); v != "" {
		to, err := parseBound(v, true)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "to_date must be RFC 3339 or YYYY-MM-DD"})
			return f, false
		}
		f.To = &to
	}
	return f, true
}

// parseBound parses a timestamp bound. A bare date as an upper bound covers the whole day.
func parseBound(v string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	d, err := models.ParseDate(v)
	if err != nil {
		return time.Time{}, err
	}
	t := d.In(time.UTC)
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func respondQueryError(c *gin.Context, err error) {
	var (
		invalidPage   *audit.InvalidPageError
		invalidFilter *audit.InvalidFilterError
		notFound      *audit.ParentNotFoundError
		unknownChild  *audit.UnknownChildCollectionError
	)
	switch {
	case errors.As(err, &invalidPage), errors.As(err, &invalidFilter):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &unknownChild):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "audit query failed", "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query audit history"})
	}
}
