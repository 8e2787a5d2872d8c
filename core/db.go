package core

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		Close() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	if ord.Ascending {
		return ord.Field + " ASC"
	}
	return ord.Field + " DESC"
}

// ParseOrdering reads "name,-total_credits": fields in priority order, a leading "-" for descending.
func ParseOrdering(s string) []DBOrdering {
	var orderings []DBOrdering
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		if field == "" {
			continue
		}
		orderings = append(orderings, DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}

// RestrictOrdering keeps the orderings on allowed fields, or returns fallback when none is left.
func RestrictOrdering(orderings []DBOrdering, allowed map[string]bool, fallback DBOrdering) []DBOrdering {
	kept := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if allowed[ord.Field] {
			kept = append(kept, ord)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, fallback)
	}
	return kept
}

// OrderByClause renders orderings as the list following ORDER BY.
func OrderByClause(orderings []DBOrdering) string {
	parts := make([]string, len(orderings))
	for i, ord := range orderings {
		parts[i] = ord.String()
	}
	return strings.Join(parts, ", ")
}
