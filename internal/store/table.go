package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Filter is a single column predicate. Op defaults to "=".
type Filter struct {
	Column string
	Op     string
	Value  any
}

// Eq is shorthand for an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: "=", Value: value}
}

// Order sorts a Select by one column.
type Order struct {
	Column string
	Desc   bool
}

var allowedOps = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func buildWhere(pb ParamBuilder, filters []Filter) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		if err := checkIdent(f.Column); err != nil {
			return "", err
		}
		op := f.Op
		if op == "" {
			op = "="
		}
		if !allowedOps[op] {
			return "", fmt.Errorf("unsupported operator %q", op)
		}
		if f.Value == nil {
			if op == "=" {
				clauses = append(clauses, f.Column+" IS NULL")
				continue
			}
			if op == "!=" {
				clauses = append(clauses, f.Column+" IS NOT NULL")
				continue
			}
		}
		clauses = append(clauses, fmt.Sprintf("%s %s %s", f.Column, op, pb.Add(f.Value)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func sortedColumns(row map[string]any) ([]string, error) {
	cols := make([]string, 0, len(row))
	for c := range row {
		if err := checkIdent(c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, nil
}

// Select returns the rows of table matching every filter, in the given order.
func Select(ctx context.Context, q Querier, d Dialect, table string, filters []Filter, order ...Order) ([]map[string]any, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	pb := d.NewParamBuilder()
	where, err := buildWhere(pb, filters)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)
	b.WriteString(where)
	if len(order) > 0 {
		parts := make([]string, 0, len(order))
		for _, o := range order {
			if err := checkIdent(o.Column); err != nil {
				return nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, o.Column+" "+dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	rows, err := QueryRows(ctx, q, b.String(), pb.Params()...)
	if err != nil {
		return nil, d.MapError(err)
	}
	return rows, nil
}

// SelectOne returns the single row matching the filters or ErrNotFound.
func SelectOne(ctx context.Context, q Querier, d Dialect, table string, filters ...Filter) (map[string]any, error) {
	rows, err := Select(ctx, q, d, table, filters)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Insert writes one row and returns it as stored, including server defaults.
func Insert(ctx context.Context, q Querier, d Dialect, table string, row map[string]any) (map[string]any, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	cols, err := sortedColumns(row)
	if err != nil {
		return nil, err
	}
	pb := d.NewParamBuilder()
	phs := make([]string, len(cols))
	for i, c := range cols {
		phs[i] = pb.Add(row[c])
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(cols, ", "), strings.Join(phs, ", "))

	out, err := QueryRow(ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return nil, d.MapError(err)
	}
	return out, nil
}

// Update applies patch to every row matching the filters and returns the
// updated rows. An empty match returns ErrNotFound.
func Update(ctx context.Context, q Querier, d Dialect, table string, patch map[string]any, filters []Filter) ([]map[string]any, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("update %s: empty patch", table)
	}
	cols, err := sortedColumns(patch)
	if err != nil {
		return nil, err
	}
	pb := d.NewParamBuilder()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = " + pb.Add(patch[c])
	}
	where, err := buildWhere(pb, filters)
	if err != nil {
		return nil, err
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", table, strings.Join(sets, ", "), where)

	rows, err := QueryRows(ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return nil, d.MapError(err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows, nil
}

// Delete removes every row matching the filters. Deleting nothing returns ErrNotFound.
func Delete(ctx context.Context, q Querier, d Dialect, table string, filters []Filter) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, fmt.Errorf("delete %s: refusing unfiltered delete", table)
	}
	pb := d.NewParamBuilder()
	where, err := buildWhere(pb, filters)
	if err != nil {
		return 0, err
	}
	n, err := Exec(ctx, q, "DELETE FROM "+table+where, pb.Params()...)
	if err != nil {
		return 0, d.MapError(err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}
