// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package query builds parameterized WHERE clauses for the database package.
package query

import (
	"strconv"
	"strings"
)

// WhereBuilder collects AND-ed conditions and their positional arguments.
// Optional filters are passed through unconditionally and skipped when
// empty:
//
//	wb := query.NewWhereBuilder().AddEquals("user_id", userID)
//	query.AddIn(wb, "status", statuses)
//	wb.AddEquals("media_type", mediaType) // "" adds nothing
//	where, args := wb.BuildWithPrefix()
type WhereBuilder struct {
	conds []string
	args  []any
}

func NewWhereBuilder() *WhereBuilder { return &WhereBuilder{} }

func (wb *WhereBuilder) add(cond string, args ...any) *WhereBuilder {
	wb.conds = append(wb.conds, cond)
	wb.args = append(wb.args, args...)
	return wb
}

// AddEquals adds "column = ?" unless value is the empty string.
func (wb *WhereBuilder) AddEquals(column string, value any) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.add(column+" = ?", value)
}

// AddIn adds "column IN (?, ...)" unless values is empty. It is a function
// because methods cannot take type parameters.
func AddIn[T any](wb *WhereBuilder, column string, values []T) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	return wb.add(column+" IN ("+marks+")", args...)
}

// Build returns the conditions joined by AND, or "1=1" when there are none.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(wb.conds, " AND "), wb.args
}

func (wb *WhereBuilder) BuildWithPrefix() (string, []any) {
	where, args := wb.Build()
	return "WHERE " + where, args
}

// Limit appends LIMIT n to sql for positive n.
func Limit(sql string, n int) string {
	if n <= 0 {
		return sql
	}
	return sql + " LIMIT " + strconv.Itoa(n)
}
