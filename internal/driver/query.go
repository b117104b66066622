package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidParams is returned when query parameters fail validation before
// any SQL is built.
var ErrInvalidParams = errors.New("invalid query parameters")

var operatorSQL = map[Operator]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// Query builds a COUNT(*) statement and a SELECT statement sharing one WHERE
// clause, runs both, and returns the page together with the introspected
// columns for the table. Filter values are always bound parameters.
func (c *conn) Query(ctx context.Context, params QueryParams) (*QueryResult, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	schema, err := c.tableSchema(ctx, params.Table, params.Schema)
	if err != nil {
		return nil, err
	}

	countSQL, selectSQL, args := buildStatements(c.dialect, schema.Schema, params)

	var total int64
	if err := c.db.QueryRowxContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count query failed: %w", err)
	}

	rows, err := c.db.QueryxContext(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("select query failed: %w", err)
	}
	defer rows.Close()

	result := &QueryResult{
		Rows:       make([]map[string]any, 0, params.PageSize),
		TotalCount: total,
		Columns:    schema.Columns,
	}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Rows = append(result.Rows, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return result, nil
}

func validateParams(params QueryParams) error {
	if params.Table == "" {
		return fmt.Errorf("%w: table is required", ErrInvalidParams)
	}
	if params.Page < 1 {
		return fmt.Errorf("%w: page must be >= 1", ErrInvalidParams)
	}
	if params.PageSize < 1 {
		return fmt.Errorf("%w: pageSize must be >= 1", ErrInvalidParams)
	}
	if params.SortColumn != "" &&
		params.SortDirection != SortAsc && params.SortDirection != SortDesc {
		return fmt.Errorf("%w: sortDirection must be asc or desc", ErrInvalidParams)
	}
	for _, f := range params.Filters {
		if f.Column == "" {
			return fmt.Errorf("%w: filter column is required", ErrInvalidParams)
		}
		if _, ok := operatorSQL[f.Operator]; !ok && f.Operator != OpLike && f.Operator != OpILike {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidParams, f.Operator)
		}
	}
	return nil
}

// buildStatements renders the count and select statements. Pagination values
// are integers computed here; only filter values become bind arguments.
func buildStatements(d dialect, schema string, params QueryParams) (countSQL, selectSQL string, args []any) {
	target := d.quoteIdent(schema) + "." + d.quoteIdent(params.Table)

	where, args := buildWhere(d, params.Filters)

	countSQL = "SELECT COUNT(*) FROM " + target + where

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(target)
	b.WriteString(where)
	if params.SortColumn != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(d.quoteIdent(params.SortColumn))
		if params.SortDirection == SortDesc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", params.PageSize, (params.Page-1)*params.PageSize)

	return countSQL, b.String(), args
}

func buildWhere(d dialect, filters []QueryFilter) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}

	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for i, f := range filters {
		col := d.quoteIdent(f.Column)
		ph := d.placeholder(i + 1)

		switch f.Operator {
		case OpLike:
			clauses = append(clauses, fmt.Sprintf("%s LIKE %s", col, ph))
		case OpILike:
			if d.hasILIKE {
				clauses = append(clauses, fmt.Sprintf("%s ILIKE %s", col, ph))
			} else {
				clauses = append(clauses, fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", col, ph))
			}
		default:
			clauses = append(clauses, fmt.Sprintf("%s %s %s", col, operatorSQL[f.Operator], ph))
		}
		args = append(args, f.Value)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// normalizeRow converts driver byte slices to strings so rows serialize as
// text instead of base64.
func normalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}
