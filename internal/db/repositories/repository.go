// Package repositories implements the PostgreSQL data access layer of the MRO API. Each
// repository wraps a *sqlx.DB; writes that touch audited entities run in a transaction and
// report each change to audit.Hooks inside that transaction.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Sentinel errors returned by repositories. Handlers map them to HTTP status codes.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidReference = errors.New("invalid reference")
	ErrNotApplicable    = errors.New("labor kit cannot be applied")
)

// PostgreSQL error codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapPQError translates constraint violations into ErrConflict and ErrInvalidReference
func mapPQError(err error, format string, args ...interface{}) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Detail)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrInvalidReference, pqErr.Detail)
		}
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// withTx runs fn inside a transaction, committing when fn returns nil
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Pagination is a LIMIT/OFFSET window
type Pagination struct {
	Page     int
	PageSize int
}

// Limit is the page size
func (p Pagination) Limit() int { return p.PageSize }

// Offset is the number of rows skipped before the page
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Sort is a requested ordering, resolved against a per-resource whitelist
type Sort struct {
	By    string
	Order string
}

// orderBy builds an ORDER BY clause. Unknown columns fall back to def; the id tie-break keeps
// paging stable.
func orderBy(s Sort, allowed map[string]string, def string, tieBreak string) string {
	column, ok := allowed[s.By]
	if !ok {
		column = allowed[def]
	}
	direction := "ASC"
	if strings.EqualFold(s.Order, "desc") {
		direction = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, %s %s", column, direction, tieBreak, direction)
}

// filter accumulates WHERE conditions with positional parameters. Each %d in a condition is
// replaced by the position of the matching argument.
type filter struct {
	conditions []string
	args       []interface{}
}

func (f *filter) add(condition string, args ...interface{}) {
	positions := make([]interface{}, len(args))
	for i := range args {
		positions[i] = len(f.args) + i + 1
	}
	f.conditions = append(f.conditions, fmt.Sprintf(condition, positions...))
	f.args = append(f.args, args...)
}

func (f *filter) where() string {
	if len(f.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conditions, " AND ")
}

// page appends LIMIT and OFFSET parameters and returns the clause with the full argument list
func (f *filter) page(limit, offset int) (string, []interface{}) {
	n := len(f.args)
	args := append(append([]interface{}(nil), f.args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), args
}

// likePattern wraps s for a substring ILIKE match, escaping LIKE wildcards
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
