package driver

import (
	"context"
	"database/sql"
	"fmt"
)

// columnRef identifies one column across the whole catalog.
type columnRef struct {
	schema string
	table  string
	column string
}

// Schema introspects the reachable catalog in two round-trips: one query for
// all columns, one for all foreign-key edges. Columns are grouped by
// (schema, table) preserving catalog ordinal order, and each column picks up
// its foreign key from a map keyed by (schema, table, column). No per-table
// queries are issued.
func (c *conn) Schema(ctx context.Context) ([]TableSchema, error) {
	fks, err := c.foreignKeys(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryxContext(ctx, c.dialect.columnsQuery, c.dialect.catalogArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect columns: %w", err)
	}
	defer rows.Close()

	var (
		tables  []TableSchema
		indexOf = make(map[columnRef]int)
	)
	for rows.Next() {
		var (
			schema, table, column, dataType, nullable string
			defaultValue                              sql.NullString
			primary                                   int
		)
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable, &defaultValue, &primary); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}

		col := ColumnInfo{
			Name:       column,
			Type:       dataType,
			Nullable:   nullable == "YES",
			PrimaryKey: primary == 1,
		}
		if defaultValue.Valid {
			v := defaultValue.String
			col.DefaultValue = &v
		}
		if fk, ok := fks[columnRef{schema, table, column}]; ok {
			col.ForeignKey = &fk
		}

		key := columnRef{schema: schema, table: table}
		idx, ok := indexOf[key]
		if !ok {
			idx = len(tables)
			indexOf[key] = idx
			tables = append(tables, TableSchema{Name: table, Schema: schema})
		}
		tables[idx].Columns = append(tables[idx].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read column rows: %w", err)
	}

	return tables, nil
}

func (c *conn) foreignKeys(ctx context.Context) (map[columnRef]ForeignKey, error) {
	rows, err := c.db.QueryxContext(ctx, c.dialect.foreignKeysQuery, c.dialect.catalogArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect foreign keys: %w", err)
	}
	defer rows.Close()

	fks := make(map[columnRef]ForeignKey)
	for rows.Next() {
		var srcSchema, srcTable, srcColumn, dstSchema, dstTable, dstColumn string
		if err := rows.Scan(&srcSchema, &srcTable, &srcColumn, &dstSchema, &dstTable, &dstColumn); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key row: %w", err)
		}
		fks[columnRef{srcSchema, srcTable, srcColumn}] = ForeignKey{
			Schema: dstSchema,
			Table:  dstTable,
			Column: dstColumn,
		}
	}
	return fks, rows.Err()
}

// tableSchema resolves the introspected schema for one table, falling back to
// the dialect's default schema when the caller did not name one.
func (c *conn) tableSchema(ctx context.Context, table, schema string) (*TableSchema, error) {
	if schema == "" {
		schema = c.dialect.defaultSchema
	}

	all, err := c.Schema(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == table && all[i].Schema == schema {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("table %s.%s not found", schema, table)
}
