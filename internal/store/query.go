package store

import (
	"fmt"
	"strings"
)

// args accumulates positional query arguments and hands out their $n
// placeholders.
type args []any

func (a *args) add(value any) string {
	*a = append(*a, value)
	return fmt.Sprintf("$%d", len(*a))
}

// assignments builds the SET list of a partial UPDATE.
type assignments struct {
	args    *args
	clauses []string
}

func (s *assignments) set(column string, value any) {
	s.clauses = append(s.clauses, column+" = "+s.args.add(value))
}

func (s *assignments) setRaw(clause string) {
	s.clauses = append(s.clauses, clause)
}

func (s *assignments) String() string {
	return strings.Join(s.clauses, ", ")
}

// conditions builds an AND-joined WHERE clause.
type conditions struct {
	args    *args
	clauses []string
}

func (c *conditions) eq(column string, value any) {
	c.clauses = append(c.clauses, column+" = "+c.args.add(value))
}

func (c *conditions) String() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(c.clauses, " AND ")
}

// paginate appends LIMIT/OFFSET when limit is positive.
func paginate(a *args, limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	clause := " LIMIT " + a.add(limit)
	if offset > 0 {
		clause += " OFFSET " + a.add(offset)
	}
	return clause
}
