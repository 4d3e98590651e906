package audit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cirrus-mro/cirrus-api/internal/db/models"
)

// Paging bounds for history queries
const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// PageRequest selects one page of a history query
type PageRequest struct {
	Page     int
	PageSize int
}

// DefaultPageRequest returns the first page at the default size
func DefaultPageRequest() PageRequest {
	return PageRequest{Page: DefaultPage, PageSize: DefaultPageSize}
}

// Validate checks the page bounds
func (p PageRequest) Validate() error {
	if p.Page < 1 {
		return &InvalidPageError{Field: "page", Value: p.Page}
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return &InvalidPageError{Field: "page_size", Value: p.PageSize}
	}
	return nil
}

// Offset is the number of rows skipped before this page
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is one page of a history query
type Page[T any] struct {
	Items    []T  `json:"items"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

func newPage[T any](items []T, total int, req PageRequest) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		HasNext:  req.Offset()+len(items) < total,
	}
}

// HistoryFilter narrows an entity history. Zero values apply no constraint.
type HistoryFilter struct {
	From   *time.Time
	To     *time.Time
	Action models.AuditAction
	UserID string
}

// Validate checks the action and the date range
func (f HistoryFilter) Validate() error {
	if f.Action != "" && !f.Action.Valid() {
		return &InvalidFilterError{Field: "action", Reason: fmt.Sprintf("must be one of INSERT, UPDATE, DELETE; got %q", f.Action)}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return &InvalidFilterError{Field: "to_date", Reason: "must not be before from_date"}
	}
	return nil
}

// HistoryQuery is a validated entity history request passed to the store
type HistoryQuery struct {
	EntityType string
	EntityID   uuid.UUID
	Filter     HistoryFilter
	Limit      int
	Offset     int
}

// CombinedQuery is a validated combined history request passed to the store. Child records
// match when their parent_entity_id equals ParentKey, or when their new or old values contain
// {ForeignKey: ParentKey}.
type CombinedQuery struct {
	ParentType string
	ParentID   uuid.UUID
	ChildType  string
	ForeignKey string
	ParentKey  int64
	Limit      int
	Offset     int
}

// HistoryStore reads audit records, newest first (created_at DESC, id DESC)
type HistoryStore interface {
	ListEntityHistory(ctx context.Context, q HistoryQuery) ([]*models.AuditRecord, int, error)
	ListCombinedHistory(ctx context.Context, q CombinedQuery) ([]*models.AuditRecord, int, error)
}

// ParentRef is a live parent entity: its internal key and the current label of each of its
// children, keyed by child external id.
type ParentRef struct {
	Key         int64
	ChildLabels map[uuid.UUID]int
}

// ParentLookup resolves a parent's external id. It returns nil, nil when the parent does not
// exist.
type ParentLookup interface {
	LookupAuditParent(ctx context.Context, id uuid.UUID) (*ParentRef, error)
}

// ChildCollection declares that records of ChildType belong to a ParentType entity through
// the ForeignKey column, and are labelled by the LabelField column.
type ChildCollection struct {
	ParentType string
	ChildType  string
	ForeignKey string
	LabelField string
	Parents    ParentLookup
}

// CombinedItem is an audit record in a combined history. ItemNumber is the child's label and is
// absent for the parent's own records.
type CombinedItem struct {
	*models.AuditRecord
	ItemNumber *int `json:"item_number,omitempty"`
}

// QueryService answers audit history queries. It holds no cache; every call reads the store.
type QueryService struct {
	store HistoryStore

	mu       sync.RWMutex
	children map[[2]string]ChildCollection
}

// NewQueryService creates a query service reading from store
func NewQueryService(store HistoryStore) *QueryService {
	return &QueryService{
		store:    store,
		children: make(map[[2]string]ChildCollection),
	}
}

// RegisterChildCollection declares a parent/child relation for GetCombinedHistory
func (s *QueryService) RegisterChildCollection(cc ChildCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children[[2]string{cc.ParentType, cc.ChildType}] = cc
}

// ChildTypes returns the child types registered for parentType, sorted
func (s *QueryService) ChildTypes(parentType string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var types []string
	for key := range s.children {
		if key[0] == parentType {
			types = append(types, key[1])
		}
	}
	sort.Strings(types)
	return types
}

// GetHistory returns the audit records of one entity, newest first. An entity with no records
// yields an empty page.
func (s *QueryService) GetHistory(ctx context.Context, entityType string, entityID uuid.UUID, filter HistoryFilter, page PageRequest) (*Page[*models.AuditRecord], error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	records, total, err := s.store.ListEntityHistory(ctx, HistoryQuery{
		EntityType: entityType,
		EntityID:   entityID,
		Filter:     filter,
		Limit:      page.PageSize,
		Offset:     page.Offset(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit history: %w", err)
	}
	return newPage(records, total, page), nil
}

// GetCombinedHistory returns the records of a parent entity together with those of its
// children, including children that have since been deleted, newest first. Each child record
// is labelled from the live child first, then from its new values, then its old values.
func (s *QueryService) GetCombinedHistory(ctx context.Context, parentType string, parentID uuid.UUID, childType string, page PageRequest) (*Page[*CombinedItem], error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	cc, ok := s.children[[2]string{parentType, childType}]
	s.mu.RUnlock()
	if !ok {
		return nil, &UnknownChildCollectionError{ParentType: parentType, ChildType: childType}
	}

	parent, err := cc.Parents.LookupAuditParent(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", parentType, err)
	}
	if parent == nil {
		return nil, &ParentNotFoundError{EntityType: parentType, EntityID: parentID}
	}

	records, total, err := s.store.ListCombinedHistory(ctx, CombinedQuery{
		ParentType: parentType,
		ParentID:   parentID,
		ChildType:  childType,
		ForeignKey: cc.ForeignKey,
		ParentKey:  parent.Key,
		Limit:      page.PageSize,
		Offset:     page.Offset(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list combined audit history: %w", err)
	}

	items := make([]*CombinedItem, 0, len(records))
	for _, rec := range records {
		item := &CombinedItem{AuditRecord: rec}
		if rec.EntityType == childType {
			item.ItemNumber = childLabel(rec, parent, cc.LabelField)
		}
		items = append(items, item)
	}
	return newPage(items, total, page), nil
}

func childLabel(rec *models.AuditRecord, parent *ParentRef, labelField string) *int {
	if n, ok := parent.ChildLabels[rec.EntityID]; ok {
		return &n
	}
	if n, ok := intValue(rec.NewValues[labelField]); ok {
		return &n
	}
	if n, ok := intValue(rec.OldValues[labelField]); ok {
		return &n
	}
	return nil
}

// intValue reads a label decoded from JSONB, where numbers arrive as float64
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
