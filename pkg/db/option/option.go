package option

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption narrows or orders a gorm statement.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{SortBy: sortBy, OrderBy: orderBy, Allow: allow}
}

// WithSortBy orders by SortBy when it is allowed, falling back to
// created_at. Direction defaults to descending.
func WithSortBy(s QuerySortBy) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.ToLower(strings.TrimSpace(s.SortBy))
		if !s.Allow[column] {
			column = "created_at"
			if !s.Allow[column] {
				return db
			}
		}
		desc := !strings.EqualFold(strings.TrimSpace(s.OrderBy), "asc")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
	})
}

func ApplyPagination(limit, offset int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	})
}

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(c Condition) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		switch c.Operator {
		case EQ, GT, GTE, LT, LTE:
		default:
			return db
		}
		return db.Where(clause.Expr{
			SQL:  "? " + string(c.Operator) + " ?",
			Vars: []any{clause.Column{Name: c.Field}, c.Value},
		})
	})
}
