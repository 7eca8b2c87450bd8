package store

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Cond is a single typed predicate. Query composition builds a list of these
// from optional request parameters instead of passing opaque condition slices
// around.
type Cond struct {
	expr string
	args []any
}

// Equals matches column = value.
func Equals(column string, value any) Cond {
	return Cond{expr: column + " = ?", args: []any{value}}
}

// Contains matches a case-insensitive substring.
func Contains(column, substring string) Cond {
	return Cond{expr: column + " ILIKE ?", args: []any{"%" + substring + "%"}}
}

// Before matches column < bound, After matches column > bound. Together they
// implement the exclusive cursor range.
func Before(column string, bound any) Cond {
	return Cond{expr: column + " < ?", args: []any{bound}}
}

func After(column string, bound any) Cond {
	return Cond{expr: column + " > ?", args: []any{bound}}
}

// InSet matches column IN (values...).
func InSet[T any](column string, values []T) Cond {
	anyVals := make([]any, len(values))
	for i, v := range values {
		anyVals[i] = v
	}
	return Cond{expr: column + " IN ?", args: []any{anyVals}}
}

// IsNull matches column IS NULL.
func IsNull(column string) Cond {
	return Cond{expr: column + " IS NULL"}
}

// Or combines predicates with OR, parenthesized so it nests under apply's AND.
func Or(conds ...Cond) Cond {
	exprs := make([]string, len(conds))
	var args []any
	for i, c := range conds {
		exprs[i] = c.expr
		args = append(args, c.args...)
	}
	return Cond{expr: fmt.Sprintf("(%s)", strings.Join(exprs, " OR ")), args: args}
}

// apply ANDs all predicates onto tx.
func apply(tx *gorm.DB, conds ...Cond) *gorm.DB {
	for _, c := range conds {
		tx = tx.Where(c.expr, c.args...)
	}
	return tx
}
