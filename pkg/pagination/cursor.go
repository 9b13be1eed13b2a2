// Package pagination provides cursor-based pagination utilities.
// Keyset cursors hold a stable position as sort key + ID for SQL scans;
// Pager walks opaque, server-issued cursors one page at a time.
package pagination

import (
	"fmt"
	"time"
)

const (
	// DefaultLimit is the default page size if not specified
	DefaultLimit = 50
	// MaxLimit is the maximum allowed page size
	MaxLimit = 500
)

// Cursor represents a stable pagination position.
// Uses timestamp (or an explicit sort key) + ID for keyset pagination.
type Cursor struct {
	Timestamp time.Time
	ID        string
	// SortKey is used instead of Timestamp when IsSortKey is set, e.g. for
	// unix-second columns.
	SortKey   int64
	IsSortKey bool
}

// ClampLimit ensures limit is within valid bounds.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Direction indicates the pagination direction.
type Direction int

const (
	// Forward pagination: newest first, navigate to older items
	Forward Direction = iota
	// Backward pagination: oldest first, navigate to newer items
	Backward
)

// Params holds parsed pagination parameters.
type Params struct {
	Limit     int
	Cursor    *Cursor
	Direction Direction
}

// KeysetBuilder helps construct keyset pagination SQL queries.
type KeysetBuilder struct {
	// SortColumn is the ordering column (e.g., "entry_created_at")
	SortColumn string
	// IDColumn is the tie-breaking unique column (e.g., "address")
	IDColumn string
}

// Condition returns a SQL WHERE clause fragment for keyset pagination.
// Returns empty string and nil args if no cursor is provided.
// The placeholder style uses $N for PostgreSQL.
func (b *KeysetBuilder) Condition(params *Params, startArgIdx int) (string, []interface{}) {
	if params == nil || params.Cursor == nil {
		return "", nil
	}

	var key interface{} = params.Cursor.Timestamp
	if params.Cursor.IsSortKey {
		key = params.Cursor.SortKey
	}

	op := "<"
	if params.Direction == Backward {
		op = ">"
	}
	return fmt.Sprintf("(%s, %s) %s ($%d, $%d)",
			b.SortColumn, b.IDColumn, op, startArgIdx, startArgIdx+1),
		[]interface{}{key, params.Cursor.ID}
}

// OrderBy returns a SQL ORDER BY clause for keyset pagination.
func (b *KeysetBuilder) OrderBy(params *Params) string {
	if params == nil || params.Direction == Forward {
		return fmt.Sprintf("ORDER BY %s DESC, %s DESC", b.SortColumn, b.IDColumn)
	}
	return fmt.Sprintf("ORDER BY %s ASC, %s ASC", b.SortColumn, b.IDColumn)
}
