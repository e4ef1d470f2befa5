package record

import (
	"fmt"
	"strings"

	"egovportal.org/internal/apperr"
)

// Op is a comparison operator a filter may use.
type Op string

const (
	OpEq    Op = "="
	OpILike Op = "ILIKE"
)

// Filter constrains one column. A nil Value compiles to IS NULL and sends no
// parameter. Filters in a set are AND-combined.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Filters is an ordered set of AND-combined constraints.
type Filters []Filter

// Eq matches rows whose column equals value; a nil value matches NULL.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// ILike matches rows case-insensitively against a SQL pattern.
func ILike(column, pattern string) Filter {
	return Filter{Column: column, Op: OpILike, Value: pattern}
}

// Null matches rows whose column is NULL.
func Null(column string) Filter {
	return Filter{Column: column, Op: OpEq, Value: nil}
}

// buildWhere compiles filters into a WHERE clause with positional
// placeholders starting at next. Columns outside the table allow-list are
// rejected before any SQL is issued.
func (s *Service) buildWhere(filters Filters, next int) (clause string, params []any, err error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		if !s.allowed(f.Column) {
			return "", nil, apperr.BadRequest(fmt.Sprintf("unknown column %q for table %s", f.Column, s.table.Name))
		}
		if f.Value == nil {
			conds = append(conds, f.Column+" is null")
			continue
		}
		op := f.Op
		if op == "" {
			op = OpEq
		}
		conds = append(conds, fmt.Sprintf("%s %s $%d", f.Column, op, next))
		params = append(params, f.Value)
		next++
	}
	return " where " + strings.Join(conds, " and "), params, nil
}
