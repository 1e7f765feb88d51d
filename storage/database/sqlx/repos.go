// Package sqlxrepos implements the domain repositories on PostgreSQL via sqlx.
package sqlxrepos

import (
	"fmt"
	"strings"

	"github.com/trezcool/academia/core"
)

// queryBuilder accumulates WHERE conditions with positional ($n) placeholders.
type queryBuilder struct {
	base     string
	conds    []string
	ordering string
	args     []interface{}
}

func newQueryBuilder(base string) *queryBuilder {
	return &queryBuilder{base: base}
}

// placeholder rewrites each ? in cond to the next $n, registering the args.
func (qb *queryBuilder) placeholder(cond string, args ...interface{}) string {
	for _, arg := range args {
		qb.args = append(qb.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(qb.args)), 1)
	}
	return cond
}

func (qb *queryBuilder) where(cond string, args ...interface{}) {
	qb.conds = append(qb.conds, qb.placeholder(cond, args...))
}

// and appends a condition whose placeholders were already resolved.
func (qb *queryBuilder) and(cond string) {
	qb.conds = append(qb.conds, cond)
}

func (qb *queryBuilder) orderBy(orderings []core.DBOrdering, fallback string) {
	if len(orderings) == 0 {
		qb.ordering = fallback
		return
	}
	list := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		list = append(list, ord.String())
	}
	qb.ordering = strings.Join(list, ", ")
}

func (qb *queryBuilder) query() string {
	q := qb.base
	if len(qb.conds) > 0 {
		q += " WHERE " + strings.Join(qb.conds, " AND ")
	}
	if qb.ordering != "" {
		q += " ORDER BY " + qb.ordering
	}
	return q
}
