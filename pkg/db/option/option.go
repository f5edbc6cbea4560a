package option

import (
	"fmt"
	"strings"
	"time"

	"creatorpay/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it is executed.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

func (o Operator) valid() bool {
	switch o {
	case EQ, NEQ, GT, GTE, LT, LTE, IN:
		return true
	default:
		return false
	}
}

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// LockingUpdate is a scope that appends FOR UPDATE to the query.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

// WithSortBy orders by SortBy when it is in the allow list, falling back to
// created_at. OrderBy accepts asc or desc in any case.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := "created_at"
		if s.SortBy != "" && s.Allow[s.SortBy] {
			column = s.SortBy
		}

		desc := strings.EqualFold(s.OrderBy, "desc")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
	}
}

// ApplyOperator adds a where condition. Unknown operators are ignored.
func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if !c.Operator.valid() || c.Field == "" {
			return db
		}

		if c.Operator == IN {
			return db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
		}

		return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

func WithOffset(offset int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if offset <= 0 {
			return db
		}
		return db.Offset(offset)
	}
}

// ApplyPagination fetches one row more than the limit so callers can tell
// whether another page exists. Cursor pages are keyed on (created_at, id).
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		limit := p.Limit
		if limit <= 0 {
			limit = 10
		}

		if p.Cursor != "" {
			if cursor, err := pagination.DecodeCursor(p.Cursor); err == nil {
				if createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt); err == nil {
					db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursor.ID)
				}
			}
		}

		return db.Order("created_at DESC").Order("id DESC").Limit(limit + 1)
	}
}
