package driver

import (
	"fmt"
	"net/url"
	"strings"
)

// dialect carries everything that differs between providers. It is picked
// once in New; nothing downstream inspects the provider tag again.
type dialect struct {
	driverName string

	dsn func(Config) string

	// quoteIdent wraps an identifier in the dialect's quote character,
	// doubling any embedded quotes.
	quoteIdent func(string) string

	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string

	// hasILIKE reports native ILIKE support; without it the builder emits
	// LOWER(col) LIKE LOWER(?).
	hasILIKE bool

	// defaultSchema is used when query params omit an explicit schema.
	defaultSchema string

	versionQuery     string
	listTablesQuery  string
	columnsQuery     string
	foreignKeysQuery string

	// catalogArgs are the bind arguments shared by the three catalog queries
	// (the database name where the dialect scopes by it).
	catalogArgs []any
}

func postgresDialect() dialect {
	return dialect{
		driverName: "postgres",
		dsn: func(cfg Config) string {
			sslmode := "disable"
			if cfg.SSL {
				sslmode = "require"
			}
			return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password),
				cfg.Host, cfg.Port, cfg.Database, sslmode)
		},
		quoteIdent: func(ident string) string {
			return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
		},
		placeholder:   func(n int) string { return fmt.Sprintf("$%d", n) },
		hasILIKE:      true,
		defaultSchema: "public",
		versionQuery:  "SELECT version()",
		listTablesQuery: `
			SELECT n.nspname, c.relname, GREATEST(c.reltuples::bigint, 0)
			FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relkind = 'r'
			  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
			ORDER BY n.nspname, c.relname`,
		columnsQuery: `
			SELECT c.table_schema, c.table_name, c.column_name, c.data_type,
			       c.is_nullable, c.column_default,
			       CASE WHEN pk.column_name IS NULL THEN 0 ELSE 1 END
			FROM information_schema.columns c
			LEFT JOIN (
			    SELECT kcu.table_schema, kcu.table_name, kcu.column_name
			    FROM information_schema.table_constraints tc
			    JOIN information_schema.key_column_usage kcu
			      ON kcu.constraint_name = tc.constraint_name
			     AND kcu.table_schema = tc.table_schema
			    WHERE tc.constraint_type = 'PRIMARY KEY'
			) pk ON pk.table_schema = c.table_schema
			    AND pk.table_name = c.table_name
			    AND pk.column_name = c.column_name
			WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
			ORDER BY c.table_schema, c.table_name, c.ordinal_position`,
		foreignKeysQuery: `
			SELECT kcu.table_schema, kcu.table_name, kcu.column_name,
			       ccu.table_schema, ccu.table_name, ccu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON kcu.constraint_name = tc.constraint_name
			 AND kcu.table_schema = tc.table_schema
			JOIN information_schema.constraint_column_usage ccu
			  ON ccu.constraint_name = tc.constraint_name
			 AND ccu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
			  AND kcu.table_schema NOT IN ('pg_catalog', 'information_schema')`,
	}
}

// mysqlDialect serves both MySQL and MariaDB; the wire protocol and catalog
// layout are shared.
func mysqlDialect(database string) dialect {
	return dialect{
		driverName: "mysql",
		dsn: func(cfg Config) string {
			tls := "false"
			if cfg.SSL {
				tls = "true"
			}
			return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s",
				cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, tls)
		},
		quoteIdent: func(ident string) string {
			return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
		},
		placeholder:   func(int) string { return "?" },
		hasILIKE:      false,
		defaultSchema: database,
		versionQuery:  "SELECT VERSION()",
		listTablesQuery: `
			SELECT table_schema, table_name, COALESCE(table_rows, 0)
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE' AND table_schema = ?
			ORDER BY table_name`,
		columnsQuery: `
			SELECT c.table_schema, c.table_name, c.column_name, c.data_type,
			       c.is_nullable, c.column_default,
			       CASE WHEN c.column_key = 'PRI' THEN 1 ELSE 0 END
			FROM information_schema.columns c
			WHERE c.table_schema = ?
			ORDER BY c.table_schema, c.table_name, c.ordinal_position`,
		foreignKeysQuery: `
			SELECT kcu.table_schema, kcu.table_name, kcu.column_name,
			       kcu.referenced_table_schema, kcu.referenced_table_name,
			       kcu.referenced_column_name
			FROM information_schema.key_column_usage kcu
			WHERE kcu.table_schema = ?
			  AND kcu.referenced_table_name IS NOT NULL`,
		catalogArgs: []any{database},
	}
}
