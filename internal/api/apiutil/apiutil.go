// Package apiutil holds the request parsing and error mapping shared by the API handler
// packages: pagination and sort parameters, UUID path parameters, JSON body binding with
// per-field validation details, and the repository error to HTTP status mapping.
package apiutil

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cirrus-mro/cirrus-api/internal/db/repositories"
	"github.com/cirrus-mro/cirrus-api/internal/middleware"
	"github.com/cirrus-mro/cirrus-api/internal/validation"
)

// List paging bounds
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination parses page and page_size, falling back to the defaults for missing or
// out-of-range values
func Pagination(c *gin.Context) repositories.Pagination {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(DefaultPageSize)))
	if err != nil || pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	return repositories.Pagination{Page: page, PageSize: pageSize}
}

// SortFrom parses sort_by and sort_order. Columns are checked against each repository's
// whitelist, so any value is safe to pass through.
func SortFrom(c *gin.Context, defaultBy, defaultOrder string) repositories.Sort {
	return repositories.Sort{
		By:    c.DefaultQuery("sort_by", defaultBy),
		Order: c.DefaultQuery("sort_order", defaultOrder),
	}
}

// BoolQuery parses a boolean query parameter, returning def when it is missing or malformed
func BoolQuery(c *gin.Context, name string, def bool) bool {
	v, ok := c.GetQuery(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// ListResponse is the envelope of every paginated list
func ListResponse(items any, total int, p repositories.Pagination) gin.H {
	return gin.H{
		"items":     items,
		"total":     total,
		"page":      p.Page,
		"page_size": p.PageSize,
	}
}

// UUIDParam parses a UUID path parameter. On failure it writes a 400 response and returns
// false.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	return uuidParam(c, name, http.StatusBadRequest)
}

// UUIDParamStatus parses a UUID path parameter, rejecting malformed values with status
func UUIDParamStatus(c *gin.Context, name string, status int) (uuid.UUID, bool) {
	return uuidParam(c, name, status)
}

func uuidParam(c *gin.Context, name string, status int) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(status, gin.H{"error": "Invalid " + name + ": must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// UUIDQuery parses an optional UUID query parameter. A malformed value writes a 400 response
// and returns ok false.
func UUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + ": must be a UUID"})
		return nil, false
	}
	return &id, true
}

// BindJSON binds and validates the request body. Validation failures produce a 400 response
// with one message per offending field.
func BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if fields, ok := validation.FieldErrors(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Validation failed",
				"details": fields,
			})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

// Actor returns the identity recorded in created_by and updated_by. An authenticated
// principal always wins over the value supplied in the body.
func Actor(c *gin.Context, fromBody *string) string {
	if p := middleware.GetPrincipal(c); p != nil {
		return p.Identity()
	}
	if fromBody != nil {
		return strings.TrimSpace(*fromBody)
	}
	return ""
}

// RespondError maps a repository error to a status code. Unexpected errors are logged and
// reported as a generic 500 naming the failed action.
func RespondError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": message(err, repositories.ErrNotFound)})
	case errors.Is(err, repositories.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": message(err, repositories.ErrConflict)})
	case errors.Is(err, repositories.ErrInvalidReference):
		c.JSON(http.StatusBadRequest, gin.H{"error": message(err, repositories.ErrInvalidReference)})
	case errors.Is(err, repositories.ErrNotApplicable):
		c.JSON(http.StatusBadRequest, gin.H{"error": message(err, repositories.ErrNotApplicable)})
	default:
		slog.ErrorContext(c.Request.Context(), "request failed", "action", action, "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}

// message strips the sentinel prefix so clients see only the detail, e.g. "conflict: x" -> "x"
func message(err, sentinel error) string {
	msg := err.Error()
	if detail, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok && detail != "" {
		return detail
	}
	return msg
}

// NotFound writes a 404 for the named resource
func NotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, gin.H{"error": resource + " not found"})
}
