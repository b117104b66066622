// Package driver gives the engine one uniform contract over PostgreSQL,
// MySQL, and MariaDB. Dialect differences (identifier quoting, placeholder
// style, catalog queries, ILIKE support) live in a per-provider dialect
// selected once at construction; shared logic never branches on the provider.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// ErrUnknownProvider is returned when a descriptor names a dialect this
// package does not implement.
var ErrUnknownProvider = errors.New("unknown database provider")

// Driver is the capability set every provider implements. Connections open
// lazily and are scoped to a single request; Close is idempotent and always
// releases the pool.
type Driver interface {
	// TestConnection runs a trivial version query. It reports failure in the
	// result instead of returning an error.
	TestConnection(ctx context.Context) TestConnectionResult

	// ListTables lists base tables outside system schemas with estimated row
	// counts from catalog statistics.
	ListTables(ctx context.Context) ([]TableInfo, error)

	// Schema introspects all columns and foreign keys in two catalog
	// round-trips and returns provider-agnostic table schemas.
	Schema(ctx context.Context) ([]TableSchema, error)

	// Query runs a paginated, filtered, sorted read against one table.
	Query(ctx context.Context, params QueryParams) (*QueryResult, error)

	// ExecuteRaw validates that the statement is read-only and executes it
	// verbatim, measuring wall-clock time.
	ExecuteRaw(ctx context.Context, query string) (*RawQueryResult, error)

	// Close releases the underlying pool.
	Close() error
}

// Interactive browsing needs one live connection per request; the pool is
// capped accordingly and never reused across requests.
const maxOpenConns = 2

// New constructs the driver for the given provider. The provider is resolved
// exactly once here.
func New(provider Provider, cfg Config) (Driver, error) {
	switch provider {
	case ProviderPostgres:
		return open(postgresDialect(), cfg)
	case ProviderMySQL, ProviderMariaDB:
		return open(mysqlDialect(cfg.Database), cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// conn implements Driver generically; everything provider-specific is
// carried by the dialect.
type conn struct {
	db       *sqlx.DB
	dialect  dialect
	database string
}

func open(d dialect, cfg Config) (*conn, error) {
	db, err := sqlx.Open(d.driverName, d.dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.driverName, err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(1)

	return &conn{db: db, dialect: d, database: cfg.Database}, nil
}

func (c *conn) TestConnection(ctx context.Context) TestConnectionResult {
	var version string
	if err := c.db.QueryRowxContext(ctx, c.dialect.versionQuery).Scan(&version); err != nil {
		return TestConnectionResult{Success: false, Error: err.Error()}
	}
	return TestConnectionResult{Success: true, Version: version}
}

func (c *conn) ListTables(ctx context.Context) ([]TableInfo, error) {
	rows, err := c.db.QueryxContext(ctx, c.dialect.listTablesQuery, c.dialect.catalogArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]TableInfo, 0)
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.EstimatedRows); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (c *conn) Close() error {
	return c.db.Close()
}
